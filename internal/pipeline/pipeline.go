// Package pipeline implements the request pipeline (spec §4.6): routing,
// SigV4 authentication, repository resolution, backend dispatch, and
// S3-shaped response rendering. Routing is explicit net/http dispatch
// rather than a router library, matching the absence of any HTTP router in
// the teacher's own dependency graph.
package pipeline

import (
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/source-cooperative/data.source.coop/internal/backend"
	azurebackend "github.com/source-cooperative/data.source.coop/internal/backend/azure"
	s3backend "github.com/source-cooperative/data.source.coop/internal/backend/s3"
	"github.com/source-cooperative/data.source.coop/internal/resolve"
	"github.com/source-cooperative/data.source.coop/internal/sigv4"
)

// idleTimeout is the between-bytes timeout for a streamed GET (spec §5).
const idleTimeout = 60 * time.Second

// backendCallTimeout bounds HEAD and LIST calls against a backend (spec §5).
const backendCallTimeout = 30 * time.Second

// Pipeline is the proxy's single http.Handler, wiring authentication,
// resolution, and backend dispatch together.
type Pipeline struct {
	resolvers        *resolve.Resolvers
	backendTransport http.RoundTripper
}

// New builds a Pipeline against resolvers. backendTransport is shared by
// every S3/Azure backend client the pipeline constructs, giving connection
// pooling parity with spec §5's "HTTP client pools ... are shared" even
// though a fresh lightweight backend.Backend value is built per request
// (construction does no I/O; only the RoundTripper beneath it is reused).
func New(resolvers *resolve.Resolvers, backendTransport http.RoundTripper) *Pipeline {
	return &Pipeline{resolvers: resolvers, backendTransport: backendTransport}
}

// ServeHTTP implements http.Handler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := newRequestID()
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD")
	w.Header().Set("Access-Control-Expose-Headers", "ETag, Content-Length, Content-Range, Last-Modified, x-amz-*")

	if r.URL.Path == "/health" {
		p.handleHealth(w, r)
		return
	}

	segments := splitPath(r.URL.Path)
	switch {
	case len(segments) == 1 && r.URL.Query().Get("list-type") == "2":
		p.handleList(w, r, requestID, segments[0])
	case len(segments) >= 2 && (r.Method == http.MethodGet || r.Method == http.MethodHead):
		account, repo, key := segments[0], segments[1], strings.Join(segments[2:], "/")
		if key == "" {
			writeError(w, requestID, r.URL.Path, errInvalidRequest("object key is empty"))
			return
		}
		p.handleObject(w, r, requestID, account, repo, key)
	default:
		writeError(w, requestID, r.URL.Path, errInvalidRequest("unrecognized route"))
	}
}

func (p *Pipeline) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// newRequestID returns a random 16-hex-character request id (spec §7),
// derived from the first 8 bytes of a random UUIDv4 rather than a second
// random-byte source, since github.com/google/uuid is already pulled in
// by the Azure SDK's dependency graph.
func newRequestID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

// authenticate resolves and verifies the caller's identity for an
// authenticated route (spec §4.6 steps 1-3). It returns the resolved
// credential or an *apiError ready to write to the client.
func (p *Pipeline) authenticate(r *http.Request) (*resolve.CredentialRecord, *apiError) {
	host := r.Host
	amzDate := r.Header.Get("X-Amz-Date")
	if amzDate == "" {
		amzDate = r.URL.Query().Get("X-Amz-Date")
	}
	authHeader := r.Header.Get("Authorization")

	if host == "" || amzDate == "" || authHeader == "" {
		return nil, errInvalidRequest("missing host, x-amz-date, or Authorization header")
	}

	accessKeyID := sigv4.ExtractAccessKeyID(authHeader)
	if accessKeyID == "" {
		return nil, errInvalidAccessKeyID("empty access key id")
	}

	cred, err := p.resolvers.ResolveIdentity(r.Context(), accessKeyID)
	if err != nil {
		return nil, mapIdentityError(err)
	}

	if err := sigv4.Verify(r, cred.SecretAccessKey.Unwrap()); err != nil {
		return nil, mapSigv4Error(err)
	}

	return cred, nil
}

// resolvedBackend bundles a backend.Backend together with the virtual-bucket
// coordinates (storage-side bucket/container name and key prefix) needed to
// translate between the proxy's virtual key space and the backend's own.
type resolvedBackend struct {
	be        backend.Backend
	container string
	keyPrefix string
}

// backendFor builds the backend.Backend for binding. Construction performs
// no I/O: it only configures a client, so building one per request is
// cheap and keeps each request's backend pinned to the binding the
// repository resolver returned for it.
func (p *Pipeline) backendFor(binding *resolve.BackendBinding) (*resolvedBackend, error) {
	switch binding.Kind {
	case resolve.BackendKindS3:
		s3 := binding.S3
		be, err := s3backend.New(s3backend.Config{
			EndpointURL: s3.EndpointURL,
			Region:      s3.Region,
			Bucket:      s3.Bucket,
			AccessKey:   s3.AccessKey,
			SecretKey:   s3.SecretKey.Unwrap(),
		}, p.backendTransport)
		if err != nil {
			return nil, err
		}
		return &resolvedBackend{be: be, container: s3.Bucket, keyPrefix: s3.KeyPrefix}, nil
	case resolve.BackendKindAzure:
		az := binding.Azure
		be, err := azurebackend.New(azurebackend.Config{
			AccountName: az.AccountName,
			Container:   az.Container,
			AccountKey:  accountKeyIfNotSAS(az.SASOrAccountKey.Unwrap()),
			SASToken:    sasIfLooksLikeSAS(az.SASOrAccountKey.Unwrap()),
		}, p.backendTransport)
		if err != nil {
			return nil, err
		}
		return &resolvedBackend{be: be, container: az.Container, keyPrefix: az.BlobPrefix}, nil
	default:
		return nil, errInternal("unknown backend kind")
	}
}

// accountKeyIfNotSAS and sasIfLooksLikeSAS split the repository resolver's
// single "sas_or_account_key" field: a SAS token is signed-query syntax
// (always carries "sig="), an account key is a bare base64 blob.
func accountKeyIfNotSAS(s string) string {
	if looksLikeSAS(s) {
		return ""
	}
	return s
}

func sasIfLooksLikeSAS(s string) string {
	if looksLikeSAS(s) {
		return s
	}
	return ""
}

func looksLikeSAS(s string) bool {
	return strings.Contains(s, "sig=") || strings.HasPrefix(s, "?")
}
