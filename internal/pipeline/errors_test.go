package pipeline

import (
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/source-cooperative/data.source.coop/internal/backend"
	"github.com/source-cooperative/data.source.coop/internal/resolve"
)

func TestWriteErrorRendersTaxonomyXML(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, "abcdef0123456789", "/acme/photos/img.tif", errNoSuchKey("object not found"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := rec.Header().Get("x-amz-request-id"); got != "abcdef0123456789" {
		t.Fatalf("x-amz-request-id = %q", got)
	}

	var body errorXML
	if err := xml.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if body.Code != "NoSuchKey" || body.RequestID != "abcdef0123456789" || body.Resource != "/acme/photos/img.tif" {
		t.Fatalf("error body = %+v", body)
	}
}

func TestMapBackendErrorTaxonomy(t *testing.T) {
	cases := []struct {
		kind     backend.Kind
		wantCode string
		wantStat int
	}{
		{backend.KindNotFound, "NoSuchKey", http.StatusNotFound},
		{backend.KindForbidden, "AccessDenied", http.StatusForbidden},
		{backend.KindRangeNotSatisfiable, "InvalidRange", http.StatusRequestedRangeNotSatisfiable},
		{backend.KindBackendUnavailable, "ServiceUnavailable", http.StatusServiceUnavailable},
	}
	for _, c := range cases {
		err := backend.NewError(c.kind, "boom")
		apiErr := mapBackendError(err)
		if apiErr.Code != c.wantCode || apiErr.Status != c.wantStat {
			t.Errorf("mapBackendError(kind=%d) = %+v, want %s/%d", c.kind, apiErr, c.wantCode, c.wantStat)
		}
	}
}

func TestMapRepositoryErrorNotFoundIsNoSuchBucket(t *testing.T) {
	rerr := &resolve.ResolveError{Kind: resolve.ErrKindNotFound}
	// resolve.ResolveError's fields aren't exported for construction outside
	// the package except Kind, which is enough to drive the taxonomy switch.
	apiErr := mapRepositoryError(rerr)
	if apiErr.Code != "NoSuchBucket" || apiErr.Status != http.StatusNotFound {
		t.Fatalf("mapRepositoryError() = %+v", apiErr)
	}
}

func TestMapIdentityErrorUnavailableIsServiceUnavailable(t *testing.T) {
	rerr := &resolve.ResolveError{Kind: resolve.ErrKindUnavailable}
	apiErr := mapIdentityError(rerr)
	if apiErr.Code != "ServiceUnavailable" || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("mapIdentityError() = %+v", apiErr)
	}
}
