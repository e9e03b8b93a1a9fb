package resolve

import (
	"context"
	"strings"

	"github.com/source-cooperative/data.source.coop/internal/options"
)

// repositoryResponse is the metadata API's JSON shape for a repository
// lookup. Exactly one of the backend-specific groups is populated.
type repositoryResponse struct {
	BackendType string `json:"backend_type"` // "s3" | "azure"

	EndpointURL string `json:"endpoint_url,omitempty"`
	Region      string `json:"region,omitempty"`
	Bucket      string `json:"bucket,omitempty"`
	KeyPrefix   string `json:"key_prefix,omitempty"`
	AccessKey   string `json:"access_key,omitempty"`
	SecretKey   string `json:"secret_key,omitempty"`

	AccountName     string `json:"account_name,omitempty"`
	Container       string `json:"container,omitempty"`
	BlobPrefix      string `json:"blob_prefix,omitempty"`
	SASOrAccountKey string `json:"sas_or_account_key,omitempty"`
}

// RepositoryResolver exposes resolve_repository (spec §4.3).
type RepositoryResolver struct {
	client *Client
}

// NewRepositoryResolver builds a resolver against client.
func NewRepositoryResolver(client *Client) *RepositoryResolver {
	return &RepositoryResolver{client: client}
}

// Resolve looks up {accountID, repositoryID}, validating that the fields
// required by the reported backend variant are present and normalizing
// prefixes to spec §3's no-leading/trailing-slash invariant.
func (r *RepositoryResolver) Resolve(ctx context.Context, accountID, repositoryID string) (*BackendBinding, error) {
	var resp repositoryResponse
	if err := r.client.get(ctx, "/repositories/"+accountID+"/"+repositoryID, &resp); err != nil {
		return nil, err
	}

	switch strings.ToLower(resp.BackendType) {
	case "s3":
		if resp.Bucket == "" {
			return nil, newResolveError(ErrKindInvalid, "resolve: s3 repository binding missing bucket")
		}
		return &BackendBinding{
			Kind: BackendKindS3,
			S3: &S3Binding{
				EndpointURL: resp.EndpointURL,
				Region:      resp.Region,
				Bucket:      resp.Bucket,
				KeyPrefix:   NormalizePrefix(resp.KeyPrefix),
				AccessKey:   resp.AccessKey,
				SecretKey:   options.NewSecretString(resp.SecretKey),
			},
		}, nil
	case "azure":
		if resp.AccountName == "" || resp.Container == "" {
			return nil, newResolveError(ErrKindInvalid, "resolve: azure repository binding missing account name or container")
		}
		return &BackendBinding{
			Kind: BackendKindAzure,
			Azure: &AzureBinding{
				AccountName:     resp.AccountName,
				Container:       resp.Container,
				BlobPrefix:      NormalizePrefix(resp.BlobPrefix),
				SASOrAccountKey: options.NewSecretString(resp.SASOrAccountKey),
			},
		}, nil
	default:
		return nil, newResolveError(ErrKindInvalid, "resolve: unknown backend_type "+resp.BackendType)
	}
}
