package pipeline

import (
	"context"
	"io"
	"testing"

	"github.com/source-cooperative/data.source.coop/internal/backend"
)

// fakeSizedBackend answers Head with a fixed size and nothing else; it
// exists only to drive normalizeRange's HEAD-first size lookup.
type fakeSizedBackend struct {
	size int64
}

func (f *fakeSizedBackend) Head(context.Context, string, string) (backend.ObjectDescriptor, error) {
	return backend.ObjectDescriptor{SizeBytes: f.size}, nil
}

func (f *fakeSizedBackend) Get(context.Context, string, string, backend.RangeSpec) (backend.ObjectDescriptor, io.ReadCloser, error) {
	panic("not used by these tests")
}

func (f *fakeSizedBackend) List(context.Context, string, string, string, string, int) (backend.ListPage, error) {
	panic("not used by these tests")
}

func TestParseRange(t *testing.T) {
	cases := []struct {
		header string
		want   backend.RangeSpec
	}{
		{"", backend.RangeSpec{Kind: backend.RangeNone}},
		{"bytes=0-499", backend.RangeSpec{Kind: backend.RangeClosed, Start: 0, End: 499}},
		{"bytes=500-", backend.RangeSpec{Kind: backend.RangeFromOffset, Start: 500}},
		{"bytes=-500", backend.RangeSpec{Kind: backend.RangeSuffix, Start: 500}},
		{"not-a-range", backend.RangeSpec{Kind: backend.RangeNone}},
		{"bytes=-", backend.RangeSpec{Kind: backend.RangeNone}},
	}
	for _, c := range cases {
		if got := parseRange(c.header); got != c.want {
			t.Errorf("parseRange(%q) = %+v, want %+v", c.header, got, c.want)
		}
	}
}

func TestSplitPath(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"/", nil},
		{"", nil},
		{"/acme", []string{"acme"}},
		{"/acme/photos/2024/img.tif", []string{"acme", "photos", "2024", "img.tif"}},
	}
	for _, c := range cases {
		got := splitPath(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("splitPath(%q) = %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("splitPath(%q) = %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestSplitRepoPrefix(t *testing.T) {
	repo, rest, ok := splitRepoPrefix("photos/2024/img.tif")
	if !ok || repo != "photos" || rest != "2024/img.tif" {
		t.Fatalf("splitRepoPrefix() = %q, %q, %v", repo, rest, ok)
	}

	if _, _, ok := splitRepoPrefix("photos"); ok {
		t.Fatal("splitRepoPrefix() ok = true for a prefix with no repository boundary")
	}

	repo, rest, ok = splitRepoPrefix("photos/")
	if !ok || repo != "photos" || rest != "" {
		t.Fatalf("splitRepoPrefix() = %q, %q, %v", repo, rest, ok)
	}
}

func TestStripKeyPrefix(t *testing.T) {
	if got := stripKeyPrefix("raw", "raw/2024/img.tif"); got != "2024/img.tif" {
		t.Errorf("stripKeyPrefix() = %q", got)
	}
	if got := stripKeyPrefix("", "2024/img.tif"); got != "2024/img.tif" {
		t.Errorf("stripKeyPrefix() = %q", got)
	}
}

func TestJoinKey(t *testing.T) {
	if got := joinKey("raw", "2024/img.tif"); got != "raw/2024/img.tif" {
		t.Errorf("joinKey() = %q", got)
	}
	if got := joinKey("", "2024/img.tif"); got != "2024/img.tif" {
		t.Errorf("joinKey() = %q", got)
	}
}

func TestNormalizeRangeClosedBeyondSizeIsInvalidRange(t *testing.T) {
	p := New(nil, nil)
	rb := &resolvedBackend{be: &fakeSizedBackend{size: 50}}

	_, _, apiErr := p.normalizeRange(context.Background(), rb, "large.bin", backend.RangeSpec{Kind: backend.RangeClosed, Start: 100, End: 200})
	if apiErr == nil || apiErr.Code != "InvalidRange" {
		t.Fatalf("normalizeRange() = %+v, want InvalidRange", apiErr)
	}
}

func TestNormalizeRangeClosedClampsEndToSize(t *testing.T) {
	p := New(nil, nil)
	rb := &resolvedBackend{be: &fakeSizedBackend{size: 50}}

	normalized, contentRange, apiErr := p.normalizeRange(context.Background(), rb, "large.bin", backend.RangeSpec{Kind: backend.RangeClosed, Start: 10, End: 200})
	if apiErr != nil {
		t.Fatalf("normalizeRange() error = %+v", apiErr)
	}
	if normalized.Start != 10 || normalized.End != 49 {
		t.Fatalf("normalizeRange() = %+v, want Start:10 End:49", normalized)
	}
	if want := "bytes 10-49/50"; contentRange != want {
		t.Fatalf("normalizeRange() contentRange = %q, want %q", contentRange, want)
	}
}

func TestNormalizeRangeFromOffsetBeyondSizeIsInvalidRange(t *testing.T) {
	p := New(nil, nil)
	rb := &resolvedBackend{be: &fakeSizedBackend{size: 50}}

	_, _, apiErr := p.normalizeRange(context.Background(), rb, "large.bin", backend.RangeSpec{Kind: backend.RangeFromOffset, Start: 50})
	if apiErr == nil || apiErr.Code != "InvalidRange" {
		t.Fatalf("normalizeRange() = %+v, want InvalidRange", apiErr)
	}
}

func TestNewRequestIDIsSixteenHex(t *testing.T) {
	id := newRequestID()
	if len(id) != 16 {
		t.Fatalf("newRequestID() = %q, want 16 characters", id)
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("newRequestID() = %q, contains non-hex character", id)
		}
	}
}
