package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/source-cooperative/data.source.coop/internal/backend"
	"github.com/source-cooperative/data.source.coop/internal/logging"
	"github.com/source-cooperative/data.source.coop/internal/resolve"
	"github.com/source-cooperative/data.source.coop/internal/transport"
)

var rangeHeaderRegex = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// parseRange translates a Range header value into a backend.RangeSpec
// (spec §3's Range spec variants). An empty or unparseable header yields
// RangeNone rather than an error, matching how S3 treats a malformed Range
// header (the whole object is returned).
func parseRange(header string) backend.RangeSpec {
	header = strings.TrimSpace(header)
	if header == "" {
		return backend.RangeSpec{Kind: backend.RangeNone}
	}
	m := rangeHeaderRegex.FindStringSubmatch(header)
	if m == nil {
		return backend.RangeSpec{Kind: backend.RangeNone}
	}
	startStr, endStr := m[1], m[2]
	switch {
	case startStr == "" && endStr != "":
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return backend.RangeSpec{Kind: backend.RangeNone}
		}
		return backend.RangeSpec{Kind: backend.RangeSuffix, Start: n}
	case startStr != "" && endStr == "":
		n, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return backend.RangeSpec{Kind: backend.RangeNone}
		}
		return backend.RangeSpec{Kind: backend.RangeFromOffset, Start: n}
	case startStr != "" && endStr != "":
		a, err1 := strconv.ParseInt(startStr, 10, 64)
		b, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil {
			return backend.RangeSpec{Kind: backend.RangeNone}
		}
		return backend.RangeSpec{Kind: backend.RangeClosed, Start: a, End: b}
	default:
		return backend.RangeSpec{Kind: backend.RangeNone}
	}
}

// handleObject serves GET and HEAD object requests (spec §4.6).
func (p *Pipeline) handleObject(w http.ResponseWriter, r *http.Request, requestID, account, repo, key string) {
	resource := "/" + account + "/" + repo + "/" + key

	cred, apiErr := p.authenticate(r)
	if apiErr != nil {
		writeError(w, requestID, resource, apiErr)
		return
	}

	repoKey := resolve.RepositoryKey{AccountID: account, RepositoryID: repo}
	if !cred.Permits(repoKey) {
		writeError(w, requestID, resource, errAccessDenied("identity is not permitted for this repository"))
		return
	}

	binding, err := p.resolvers.ResolveRepository(r.Context(), account, repo)
	if err != nil {
		writeError(w, requestID, resource, mapRepositoryError(err))
		return
	}

	rb, err := p.backendFor(binding)
	if err != nil {
		p.logServerError(requestID, r, err)
		writeError(w, requestID, resource, errInternal(err.Error()))
		return
	}

	storageKey := joinKey(rb.keyPrefix, key)
	rangeSpec := parseRange(r.Header.Get("Range"))

	if r.Method == http.MethodHead {
		p.serveHead(w, r, requestID, resource, rb, storageKey)
		return
	}
	p.serveGet(w, r, requestID, resource, rb, storageKey, rangeSpec)
}

func (p *Pipeline) serveHead(w http.ResponseWriter, r *http.Request, requestID, resource string, rb *resolvedBackend, storageKey string) {
	ctx, cancel := context.WithTimeout(r.Context(), backendCallTimeout)
	defer cancel()

	desc, err := rb.be.Head(ctx, rb.container, storageKey)
	if err != nil {
		p.logBackendError(requestID, r, err)
		writeError(w, requestID, resource, mapBackendError(err))
		return
	}

	writeDescriptorHeaders(w, desc)
	w.Header().Set("x-amz-request-id", requestID)
	w.WriteHeader(http.StatusOK)
}

func (p *Pipeline) serveGet(w http.ResponseWriter, r *http.Request, requestID, resource string, rb *resolvedBackend, storageKey string, rangeSpec backend.RangeSpec) {
	partial := false
	var contentRange string

	if rangeSpec.Kind != backend.RangeNone {
		normalized, cr, apiErr := p.normalizeRange(r.Context(), rb, storageKey, rangeSpec)
		if apiErr != nil {
			writeError(w, requestID, resource, apiErr)
			return
		}
		rangeSpec = normalized
		contentRange = cr
		partial = true
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	desc, body, err := rb.be.Get(ctx, rb.container, storageKey, rangeSpec)
	if err != nil {
		p.logBackendError(requestID, r, err)
		writeError(w, requestID, resource, mapBackendError(err))
		return
	}
	defer body.Close()

	writeDescriptorHeaders(w, desc)
	w.Header().Set("x-amz-request-id", requestID)
	if partial {
		w.Header().Set("Content-Length", strconv.FormatInt(rangeSpec.End-rangeSpec.Start+1, 10))
		w.Header().Set("Content-Range", contentRange)
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	guarded := transport.NewIdleTimeoutReader(body, idleTimeout)
	defer guarded.Close()

	if _, err := io.Copy(w, guarded); err != nil {
		// The client may have disconnected, or the backend stalled past
		// the idle timeout; either way the status line is already written
		// so only a log line is possible here, not an error response.
		logging.Warnf("request %s: stream interrupted: %v", requestID, err)
	}
}

// normalizeRange resolves rangeSpec against the object's actual size (spec
// §3's Range spec clamping rules), issuing a HEAD call first. This also
// converts Suffix and FromOffset into an explicit Closed range, which
// sidesteps internal/backend/azure's lack of native suffix-range support
// (S3 could accept Suffix/FromOffset directly, but normalizing both
// backends the same way keeps Content-Range/Content-Length computation in
// one place instead of duplicating size-lookup logic per backend kind).
func (p *Pipeline) normalizeRange(ctx context.Context, rb *resolvedBackend, storageKey string, r backend.RangeSpec) (backend.RangeSpec, string, *apiError) {
	headCtx, cancel := context.WithTimeout(ctx, backendCallTimeout)
	defer cancel()

	desc, err := rb.be.Head(headCtx, rb.container, storageKey)
	if err != nil {
		return backend.RangeSpec{}, "", mapBackendError(err)
	}
	size := desc.SizeBytes

	var start, end int64
	switch r.Kind {
	case backend.RangeSuffix:
		start = size - r.Start
		if start < 0 {
			start = 0
		}
		end = size - 1
	case backend.RangeFromOffset:
		if r.Start >= size {
			return backend.RangeSpec{}, "", errInvalidRange("range start beyond object size")
		}
		start = r.Start
		end = size - 1
	case backend.RangeClosed:
		if r.Start >= size || r.Start > r.End {
			return backend.RangeSpec{}, "", errInvalidRange("range start beyond object size")
		}
		start = r.Start
		end = r.End
		if end >= size {
			end = size - 1
		}
	}
	if end < 0 {
		end = 0
	}

	normalized := backend.RangeSpec{Kind: backend.RangeClosed, Start: start, End: end}
	return normalized, fmt.Sprintf("bytes %d-%d/%d", start, end, size), nil
}

func writeDescriptorHeaders(w http.ResponseWriter, desc backend.ObjectDescriptor) {
	if desc.ContentType != "" {
		w.Header().Set("Content-Type", desc.ContentType)
	}
	if desc.ContentEncoding != "" {
		w.Header().Set("Content-Encoding", desc.ContentEncoding)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(desc.SizeBytes, 10))
	if desc.ETag != "" {
		w.Header().Set("ETag", desc.ETag)
	}
	if !desc.LastModified.IsZero() {
		w.Header().Set("Last-Modified", desc.LastModified.UTC().Format(time.RFC1123))
	}
	for k, v := range desc.UserMetadata {
		w.Header().Set("x-amz-meta-"+k, v)
	}
}

// joinKey joins a repository's key_prefix with a user-visible key using
// exactly one "/" separator (spec §3's key_prefix invariant).
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func (p *Pipeline) logServerError(requestID string, r *http.Request, err error) {
	logging.Errorf("request %s %s %s: %v", requestID, r.Method, r.URL.Path, err)
}

func (p *Pipeline) logBackendError(requestID string, r *http.Request, err error) {
	apiErr := mapBackendError(err)
	if apiErr.Status >= 500 {
		p.logServerError(requestID, r, err)
	}
}
