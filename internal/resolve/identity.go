package resolve

import (
	"context"

	"github.com/source-cooperative/data.source.coop/internal/options"
)

// identityResponse is the metadata API's JSON shape for an identity lookup.
type identityResponse struct {
	AccessKeyID     string   `json:"access_key_id"`
	SecretAccessKey string   `json:"secret_access_key"`
	PrincipalID     string   `json:"principal_id"`
	Repositories    []string `json:"permitted_repositories"` // "account_id/repository_id"
}

// IdentityResolver exposes resolve_identity (spec §4.2): given an access
// key id, returns the secret key and the set of repositories the identity
// may read.
type IdentityResolver struct {
	client *Client
}

// NewIdentityResolver builds a resolver against client.
func NewIdentityResolver(client *Client) *IdentityResolver {
	return &IdentityResolver{client: client}
}

// Resolve looks up accessKeyID. An empty accessKeyID is rejected immediately
// as ErrKindInvalid without contacting upstream, per spec §4.2's "Empty
// access_key_id is an immediate InvalidAccessKeyId without calling
// upstream."
func (r *IdentityResolver) Resolve(ctx context.Context, accessKeyID string) (*CredentialRecord, error) {
	if accessKeyID == "" {
		return nil, newResolveError(ErrKindInvalid, "resolve: empty access key id")
	}

	var resp identityResponse
	if err := r.client.get(ctx, "/identities/"+accessKeyID, &resp); err != nil {
		return nil, err
	}

	permitted := make(map[RepositoryKey]bool, len(resp.Repositories))
	for _, pair := range resp.Repositories {
		key, ok := splitRepositoryPair(pair)
		if !ok {
			continue
		}
		permitted[key] = true
	}

	return &CredentialRecord{
		AccessKeyID:           resp.AccessKeyID,
		SecretAccessKey:       options.NewSecretString(resp.SecretAccessKey),
		PrincipalID:           resp.PrincipalID,
		PermittedRepositories: permitted,
	}, nil
}

func splitRepositoryPair(pair string) (RepositoryKey, bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			return RepositoryKey{AccountID: pair[:i], RepositoryID: pair[i+1:]}, true
		}
	}
	return RepositoryKey{}, false
}
