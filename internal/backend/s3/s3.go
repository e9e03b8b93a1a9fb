// Package s3 implements backend.Backend against Amazon S3 (or any
// S3-compatible endpoint), ported in structure from the teacher's
// internal/backend/s3 package: the same minio.New client construction,
// minio.Core for low-level GetObject with byte-range support, and
// minio.ErrorResponse code-based error classification, narrowed to the
// read-only Head/Get/List capability set this proxy exposes.
package s3

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/source-cooperative/data.source.coop/internal/backend"
	"github.com/source-cooperative/data.source.coop/internal/errors"
)

// Config describes the coordinates of one S3 repository binding.
type Config struct {
	EndpointURL string
	Region      string
	Bucket      string
	AccessKey   string
	SecretKey   string
	UseHTTP     bool
}

// Backend stores no per-request state: one Backend is built per resolved
// BackendBinding and reused across requests against the same bucket.
type Backend struct {
	client *minio.Client
	bucket string
}

var _ backend.Backend = (*Backend)(nil)

// New builds a Backend against cfg, signing outbound requests with rt. An
// empty AccessKey/SecretKey falls back to anonymous access, matching the
// teacher's getCredentials anonymous fallback (credentials.NewStaticV4
// with empty values) rather than walking the teacher's full
// env/file/IAM/assume-role credential chain, which has no meaning for a
// proxy that only ever holds the one secret the repository resolver gave
// it.
func New(cfg Config, rt http.RoundTripper) (*Backend, error) {
	endpoint, secure := stripScheme(cfg.EndpointURL, !cfg.UseHTTP)

	var creds *credentials.Credentials
	if cfg.AccessKey == "" {
		creds = credentials.NewStaticV4("", "", "")
	} else {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     creds,
		Secure:    secure,
		Region:    cfg.Region,
		Transport: rt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "s3: minio.New")
	}

	return &Backend{client: client, bucket: cfg.Bucket}, nil
}

func stripScheme(endpoint string, secureDefault bool) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), false
	default:
		return endpoint, secureDefault
	}
}

// Head implements backend.Backend.
func (b *Backend) Head(ctx context.Context, bucket, key string) (backend.ObjectDescriptor, error) {
	info, err := b.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return backend.ObjectDescriptor{}, classifyError(err)
	}
	return descriptorFromObjectInfo(key, info), nil
}

// Get implements backend.Backend.
func (b *Backend) Get(ctx context.Context, bucket, key string, r backend.RangeSpec) (backend.ObjectDescriptor, io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := applyRange(&opts, r); err != nil {
		return backend.ObjectDescriptor{}, nil, err
	}

	core := minio.Core{Client: b.client}
	rd, info, _, err := core.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return backend.ObjectDescriptor{}, nil, classifyError(err)
	}

	return descriptorFromObjectInfo(key, info), rd, nil
}

// applyRange translates a RangeSpec into minio's GetObjectOptions.SetRange
// convention: SetRange(0, -n) for a suffix range, SetRange(a, 0) for
// "from a to EOF", SetRange(a, b) for a closed range.
func applyRange(opts *minio.GetObjectOptions, r backend.RangeSpec) error {
	var err error
	switch r.Kind {
	case backend.RangeNone:
	case backend.RangeSuffix:
		err = opts.SetRange(0, -r.Start)
	case backend.RangeFromOffset:
		if r.Start > 0 {
			err = opts.SetRange(r.Start, 0)
		}
	case backend.RangeClosed:
		err = opts.SetRange(r.Start, r.End)
	}
	if err != nil {
		return errors.Wrap(err, "s3: invalid range")
	}
	return nil
}

// List implements backend.Backend.
func (b *Backend) List(ctx context.Context, bucket, prefix, delimiter, continuationToken string, maxKeys int) (backend.ListPage, error) {
	core := minio.Core{Client: b.client}
	result, err := core.ListObjectsV2(bucket, prefix, continuationToken, false, delimiter, maxKeys, "")
	if err != nil {
		return backend.ListPage{}, classifyError(err)
	}

	page := backend.ListPage{
		IsTruncated:           result.IsTruncated,
		NextContinuationToken: result.NextContinuationToken,
		KeyCount:              len(result.Contents),
	}
	for _, obj := range result.Contents {
		page.Entries = append(page.Entries, descriptorFromObjectInfo(obj.Key, obj))
	}
	for _, p := range result.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, p.Prefix)
	}
	return page, nil
}

func descriptorFromObjectInfo(key string, info minio.ObjectInfo) backend.ObjectDescriptor {
	meta := make(map[string]string, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		meta[strings.ToLower(k)] = v
	}
	return backend.ObjectDescriptor{
		Key:             key,
		SizeBytes:       info.Size,
		ETag:            quoteETag(info.ETag),
		LastModified:    info.LastModified,
		ContentType:     info.ContentType,
		ContentEncoding: info.Metadata.Get("Content-Encoding"),
		UserMetadata:    meta,
	}
}

func quoteETag(etag string) string {
	etag = strings.Trim(etag, `"`)
	if etag == "" {
		return ""
	}
	return `"` + etag + `"`
}

// classifyError maps a minio error to the closed backend.Kind taxonomy
// (spec §4.5.1), folding unknown/opaque codes into NotFound on read paths
// rather than surfacing a 500 for what is usually a missing object (spec
// §9's "Error surfacing" design note).
func classifyError(err error) error {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return backend.NewError(backend.KindBackendUnavailable, "s3: "+err.Error())
	}

	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return backend.NewError(backend.KindNotFound, "s3: "+resp.Code)
	case "AccessDenied":
		return backend.NewError(backend.KindForbidden, "s3: access denied")
	case "InvalidRange":
		return backend.NewError(backend.KindRangeNotSatisfiable, "s3: invalid range")
	default:
		switch resp.StatusCode {
		case http.StatusNotFound:
			return backend.NewError(backend.KindNotFound, "s3: "+resp.Code)
		case http.StatusForbidden:
			return backend.NewError(backend.KindForbidden, "s3: "+resp.Code)
		case http.StatusRequestedRangeNotSatisfiable:
			return backend.NewError(backend.KindRangeNotSatisfiable, "s3: "+resp.Code)
		}
		// Unknown/opaque errors on a read path are treated as NotFound
		// rather than BackendUnavailable, per spec §4.5.1's
		// missing-object sentinel.
		return backend.NewError(backend.KindNotFound, "s3: unclassified error "+resp.Code)
	}
}
