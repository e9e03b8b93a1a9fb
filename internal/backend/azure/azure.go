// Package azure implements backend.Backend against Azure Blob Storage,
// ported in structure from the teacher's internal/backend/azure package:
// the same azContainer.Client construction (shared-key or SAS credential),
// blob.DownloadStream with azblob.HTTPRange for ranged GET, GetProperties
// for HEAD, and bloberror.HasCode error classification — with List
// switched from the teacher's flat NewListBlobsFlatPager to the
// hierarchical NewListBlobsHierarchyPager, since this proxy needs
// delimiter-aware common-prefix grouping (spec §4.5.2), which the teacher
// never needs because restic always lists a flat keyspace.
package azure

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	azContainer "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/source-cooperative/data.source.coop/internal/backend"
	"github.com/source-cooperative/data.source.coop/internal/errors"
)

// Config describes the coordinates of one Azure repository binding.
type Config struct {
	AccountName    string
	Container      string
	EndpointSuffix string // defaults to core.windows.net
	AccountKey     string // shared key; mutually exclusive with SASToken
	SASToken       string // mutually exclusive with AccountKey
}

// Backend stores no per-request state: one Backend is built per resolved
// BackendBinding and reused across requests against the same container.
type Backend struct {
	container *azContainer.Client
}

var _ backend.Backend = (*Backend)(nil)

// New builds a Backend against cfg, signing outbound requests through rt.
// Exactly one of AccountKey/SASToken is expected to be set, matching the
// teacher's open()'s shared-key-or-SAS branch (the proxy never needs the
// teacher's third branch, DefaultAzureCredential/AzureCLICredential
// workload-identity chain, since the repository resolver always hands
// back one concrete secret rather than asking the process to discover its
// own Azure identity).
func New(cfg Config, rt http.RoundTripper) (*Backend, error) {
	if cfg.AccountName == "" {
		return nil, errors.New("azure: account name is empty")
	}

	endpointSuffix := cfg.EndpointSuffix
	if endpointSuffix == "" {
		endpointSuffix = "core.windows.net"
	}
	url := fmt.Sprintf("https://%s.blob.%s/%s", cfg.AccountName, endpointSuffix, cfg.Container)

	opts := &azContainer.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: &http.Client{Transport: rt},
		},
	}

	var client *azContainer.Client
	var err error
	switch {
	case cfg.AccountKey != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, errors.Wrap(err, "azure: NewSharedKeyCredential")
		}
		client, err = azContainer.NewClientWithSharedKeyCredential(url, cred, opts)
	case cfg.SASToken != "":
		sas := strings.TrimPrefix(cfg.SASToken, "?")
		client, err = azContainer.NewClientWithNoCredential(url+"?"+sas, opts)
	default:
		return nil, errors.New("azure: neither an account key nor a SAS token was provided")
	}
	if err != nil {
		return nil, errors.Wrap(err, "azure: build container client")
	}

	return &Backend{container: client}, nil
}

// Head implements backend.Backend.
func (b *Backend) Head(ctx context.Context, _, key string) (backend.ObjectDescriptor, error) {
	props, err := b.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return backend.ObjectDescriptor{}, classifyError(err)
	}

	desc := backend.ObjectDescriptor{Key: key}
	if props.ContentLength != nil {
		desc.SizeBytes = *props.ContentLength
	}
	if props.ETag != nil {
		desc.ETag = quoteETag(string(*props.ETag))
	}
	if props.LastModified != nil {
		desc.LastModified = *props.LastModified
	}
	if props.ContentType != nil {
		desc.ContentType = *props.ContentType
	}
	if props.ContentEncoding != nil {
		desc.ContentEncoding = *props.ContentEncoding
	}
	desc.UserMetadata = normalizeMetadata(props.Metadata)
	return desc, nil
}

// Get implements backend.Backend.
func (b *Backend) Get(ctx context.Context, _, key string, r backend.RangeSpec) (backend.ObjectDescriptor, io.ReadCloser, error) {
	httpRange, err := toHTTPRange(r)
	if err != nil {
		return backend.ObjectDescriptor{}, nil, err
	}

	resp, err := b.container.NewBlobClient(key).DownloadStream(ctx, &blob.DownloadStreamOptions{Range: httpRange})
	if err != nil {
		return backend.ObjectDescriptor{}, nil, classifyError(err)
	}

	desc := backend.ObjectDescriptor{Key: key}
	if resp.ContentLength != nil {
		desc.SizeBytes = *resp.ContentLength
	}
	if resp.ETag != nil {
		desc.ETag = quoteETag(string(*resp.ETag))
	}
	if resp.LastModified != nil {
		desc.LastModified = *resp.LastModified
	}
	if resp.ContentType != nil {
		desc.ContentType = *resp.ContentType
	}
	if resp.ContentEncoding != nil {
		desc.ContentEncoding = *resp.ContentEncoding
	}
	desc.UserMetadata = normalizeMetadata(resp.Metadata)

	return desc, resp.Body, nil
}

func toHTTPRange(r backend.RangeSpec) (azblob.HTTPRange, error) {
	switch r.Kind {
	case backend.RangeNone:
		return azblob.HTTPRange{}, nil
	case backend.RangeSuffix:
		return azblob.HTTPRange{}, errors.New("azure: suffix ranges are not supported; resolve to an absolute offset first")
	case backend.RangeFromOffset:
		return azblob.HTTPRange{Offset: r.Start}, nil
	case backend.RangeClosed:
		return azblob.HTTPRange{Offset: r.Start, Count: r.End - r.Start + 1}, nil
	default:
		return azblob.HTTPRange{}, errors.New("azure: unknown range kind")
	}
}

// List implements backend.Backend.
func (b *Backend) List(ctx context.Context, _, prefix, delimiter, continuationToken string, maxKeys int) (backend.ListPage, error) {
	maxResults := int32(maxKeys)
	opts := &azContainer.ListBlobsHierarchyOptions{
		MaxResults: &maxResults,
		Prefix:     &prefix,
	}
	if continuationToken != "" {
		opts.Marker = &continuationToken
	}

	pager := b.container.NewListBlobsHierarchyPager(delimiter, opts)
	if !pager.More() {
		return backend.ListPage{}, nil
	}

	resp, err := pager.NextPage(ctx)
	if err != nil {
		return backend.ListPage{}, classifyError(err)
	}

	page := backend.ListPage{}
	for _, p := range resp.Segment.BlobPrefixes {
		if p.Name != nil {
			page.CommonPrefixes = append(page.CommonPrefixes, *p.Name)
		}
	}
	for _, item := range resp.Segment.BlobItems {
		if item.Name == nil {
			continue
		}
		page.Entries = append(page.Entries, descriptorFromBlobItem(*item.Name, item))
	}
	page.KeyCount = len(page.Entries)
	if resp.NextMarker != nil && *resp.NextMarker != "" {
		page.IsTruncated = true
		page.NextContinuationToken = reencodeToken(*resp.NextMarker)
	}
	return page, nil
}

func descriptorFromBlobItem(key string, item *azContainer.BlobItem) backend.ObjectDescriptor {
	desc := backend.ObjectDescriptor{Key: key}
	if item.Properties != nil {
		if item.Properties.ContentLength != nil {
			desc.SizeBytes = *item.Properties.ContentLength
		}
		if item.Properties.ETag != nil {
			desc.ETag = quoteETag(string(*item.Properties.ETag))
		}
		if item.Properties.LastModified != nil {
			desc.LastModified = *item.Properties.LastModified
		}
		if item.Properties.ContentType != nil {
			desc.ContentType = *item.Properties.ContentType
		}
		if item.Properties.ContentEncoding != nil {
			desc.ContentEncoding = *item.Properties.ContentEncoding
		}
	}
	desc.UserMetadata = normalizeMetadata(item.Metadata)
	return desc
}

func normalizeMetadata(raw map[string]*string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToLower(k)] = *v
	}
	return out
}

func quoteETag(etag string) string {
	etag = strings.Trim(etag, `"`)
	if etag == "" {
		return ""
	}
	return `"` + etag + `"`
}

// reencodeToken passes an Azure continuation token through unchanged
// unless it contains characters outside the S3 token alphabet, in which
// case it is base64-reencoded (spec §4.5.2).
func reencodeToken(marker string) string {
	for _, r := range marker {
		if !isS3TokenRune(r) {
			return base64.URLEncoding.EncodeToString([]byte(marker))
		}
	}
	return marker
}

func isS3TokenRune(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
		r == '-' || r == '_' || r == '=' || r == '+' || r == '/'
}

// classifyError maps an Azure SDK error to the closed backend.Kind
// taxonomy, folding unknown/opaque errors into NotFound on read paths
// (spec §9's "Error surfacing" design note, same rule applied for S3).
func classifyError(err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		return backend.NewError(backend.KindNotFound, "azure: blob not found")
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.InsufficientAccountPermissions):
		return backend.NewError(backend.KindForbidden, "azure: access denied")
	case bloberror.HasCode(err, bloberror.InvalidRange):
		return backend.NewError(backend.KindRangeNotSatisfiable, "azure: invalid range")
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 404:
			return backend.NewError(backend.KindNotFound, "azure: "+respErr.ErrorCode)
		case 403, 401:
			return backend.NewError(backend.KindForbidden, "azure: "+respErr.ErrorCode)
		case 416:
			return backend.NewError(backend.KindRangeNotSatisfiable, "azure: "+respErr.ErrorCode)
		}
		return backend.NewError(backend.KindNotFound, "azure: unclassified error "+respErr.ErrorCode)
	}

	return backend.NewError(backend.KindBackendUnavailable, "azure: "+err.Error())
}
