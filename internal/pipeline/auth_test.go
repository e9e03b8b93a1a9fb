package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/source-cooperative/data.source.coop/internal/options"
	"github.com/source-cooperative/data.source.coop/internal/resolve"
	"github.com/source-cooperative/data.source.coop/internal/sigv4"
)

func newTestPipeline(t *testing.T, metadataHandler http.Handler) *Pipeline {
	t.Helper()
	srv := httptest.NewServer(metadataHandler)
	t.Cleanup(srv.Close)

	client, err := resolve.NewClient(srv.URL, options.NewSecretString(""), "")
	if err != nil {
		t.Fatalf("resolve.NewClient() error = %v", err)
	}
	return New(resolve.NewResolvers(client), http.DefaultTransport)
}

func signedRequest(t *testing.T, accessKeyID, secretAccessKey, method, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Host = "proxy.example.com"
	req.Header.Set("Host", req.Host)

	amzDate := time.Now().UTC().Format("20060102T150405Z")
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", sigv4.UnsignedPayload)

	signedHeaders := []string{"host", "x-amz-date", "x-amz-content-sha256"}
	date := amzDate[:8]
	canonical := sigv4.CanonicalRequest(method, req.URL, req.Host, req.Header, signedHeaders, sigv4.UnsignedPayload)
	sts := sigv4.StringToSign(amzDate, date, sigv4.Region, sigv4.Service, canonical)
	signature := sigv4.Sign(secretAccessKey, date, sigv4.Region, sigv4.Service, sts)

	req.Header.Set("Authorization",
		"AWS4-HMAC-SHA256 Credential="+accessKeyID+"/"+date+"/"+sigv4.Region+"/"+sigv4.Service+"/aws4_request, "+
			"SignedHeaders="+joinSemicolon(signedHeaders)+", Signature="+signature)
	return req
}

func joinSemicolon(ss []string) string {
	out := ss[0]
	for _, s := range ss[1:] {
		out += ";" + s
	}
	return out
}

func identityHandler(t *testing.T, accessKeyID, secretAccessKey string, repos []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/identities/"+accessKeyID {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_key_id":          accessKeyID,
			"secret_access_key":      secretAccessKey,
			"principal_id":           "user-1",
			"permitted_repositories": repos,
		})
	}
}

func TestAuthenticateSucceeds(t *testing.T) {
	p := newTestPipeline(t, identityHandler(t, "AKIDEXAMPLE", "secret123", []string{"acme/photos"}))

	req := signedRequest(t, "AKIDEXAMPLE", "secret123", http.MethodGet, "http://proxy.example.com/acme/photos/img.tif")
	cred, apiErr := p.authenticate(req)
	if apiErr != nil {
		t.Fatalf("authenticate() error = %+v", apiErr)
	}
	if cred.PrincipalID != "user-1" {
		t.Fatalf("cred.PrincipalID = %q", cred.PrincipalID)
	}
	if !cred.Permits(resolve.RepositoryKey{AccountID: "acme", RepositoryID: "photos"}) {
		t.Fatal("cred does not permit acme/photos")
	}
}

func TestAuthenticateWrongSecretIsSignatureDoesNotMatch(t *testing.T) {
	p := newTestPipeline(t, identityHandler(t, "AKIDEXAMPLE", "secret123", nil))

	req := signedRequest(t, "AKIDEXAMPLE", "wrong-secret", http.MethodGet, "http://proxy.example.com/acme/photos/img.tif")
	_, apiErr := p.authenticate(req)
	if apiErr == nil || apiErr.Code != "SignatureDoesNotMatch" {
		t.Fatalf("authenticate() error = %+v, want SignatureDoesNotMatch", apiErr)
	}
}

func TestAuthenticateUnknownAccessKeyIsInvalidAccessKeyId(t *testing.T) {
	p := newTestPipeline(t, identityHandler(t, "AKIDEXAMPLE", "secret123", nil))

	req := signedRequest(t, "AKIDOTHER", "secret123", http.MethodGet, "http://proxy.example.com/acme/photos/img.tif")
	_, apiErr := p.authenticate(req)
	if apiErr == nil || apiErr.Code != "InvalidAccessKeyId" {
		t.Fatalf("authenticate() error = %+v, want InvalidAccessKeyId", apiErr)
	}
}

func TestAuthenticateMissingAuthorizationIsInvalidRequest(t *testing.T) {
	p := newTestPipeline(t, identityHandler(t, "AKIDEXAMPLE", "secret123", nil))

	req, _ := http.NewRequest(http.MethodGet, "http://proxy.example.com/acme/photos/img.tif", nil)
	req.Host = "proxy.example.com"
	_, apiErr := p.authenticate(req)
	if apiErr == nil || apiErr.Code != "InvalidRequest" {
		t.Fatalf("authenticate() error = %+v, want InvalidRequest", apiErr)
	}
}
