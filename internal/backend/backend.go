// Package backend defines the uniform read-only capability set {Head, Get,
// List} that S3Backend and AzureBackend each implement (spec §4.5),
// narrowed from the teacher's internal/backend.Backend interface (which
// also carries Save/Remove/Delete/Warmup — out of scope here per spec
// §1's Non-goals) to the three operations this proxy needs.
package backend

import (
	"context"
	"io"
	"time"
)

// Kind classifies the outcome of a backend call (spec §4.5).
type Kind int

const (
	KindOK Kind = iota
	KindNotFound
	KindForbidden
	KindRangeNotSatisfiable
	KindBackendUnavailable
)

// Error wraps a backend failure with its Kind so the pipeline can map it to
// the right S3 error code without inspecting error strings.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// NewError builds a backend Error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// ObjectDescriptor describes an object's metadata, returned by Head and by
// each List entry (spec §3).
type ObjectDescriptor struct {
	Key             string
	SizeBytes       int64
	ETag            string // quoted, per S3 convention
	LastModified    time.Time
	ContentType     string
	ContentEncoding string
	UserMetadata    map[string]string
}

// ListPage is one page of a List call (spec §3).
type ListPage struct {
	Entries               []ObjectDescriptor
	CommonPrefixes        []string
	IsTruncated           bool
	NextContinuationToken string
	KeyCount              int
}

// RangeKind tags the variant held by a RangeSpec.
type RangeKind int

const (
	RangeNone RangeKind = iota
	RangeSuffix
	RangeFromOffset
	RangeClosed
)

// RangeSpec is a parsed byte-range request (spec §3).
type RangeSpec struct {
	Kind RangeKind
	// Suffix: N. FromOffset: Start. Closed: Start, End (inclusive).
	Start int64
	End   int64
}

// ClampMaxKeys applies spec §4.5's max_keys clamp: 0 means "use the
// default" (1000); anything above 1000 is clamped down to it.
func ClampMaxKeys(maxKeys int) int {
	if maxKeys <= 0 {
		return 1000
	}
	if maxKeys > 1000 {
		return 1000
	}
	return maxKeys
}

// Backend is the capability set every variant implements. Context-first,
// matching the teacher's method shape; IsNotExist-style classification is
// folded into Error.Kind instead of a separate IsNotExist(err) predicate,
// since every call here already returns a typed *Error on failure.
type Backend interface {
	// Head returns descriptor metadata for key without transferring its body.
	Head(ctx context.Context, bucket, key string) (ObjectDescriptor, error)

	// Get returns the descriptor and a lazy, finite, non-restartable byte
	// stream for key. The caller owns the returned ReadCloser and must
	// close it; cancelling ctx drops the underlying connection.
	Get(ctx context.Context, bucket, key string, r RangeSpec) (ObjectDescriptor, io.ReadCloser, error)

	// List returns one page of entries/common-prefixes under prefix,
	// grouped by delimiter. maxKeys should already be clamped by the
	// caller via ClampMaxKeys.
	List(ctx context.Context, bucket, prefix, delimiter, continuationToken string, maxKeys int) (ListPage, error)
}
