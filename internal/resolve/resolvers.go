package resolve

import (
	"context"
	"time"
)

const (
	// IdentityTTL and RepositoryTTL are the cache lifetimes from spec
	// §4.4. NewResolvers always uses these values; it takes no TTL
	// parameters, so they cannot be changed per Resolvers.
	IdentityTTL   = 60 * time.Second
	RepositoryTTL = 300 * time.Second

	// DefaultCacheCapacity is the global per-resolver entry cap (spec §4.4:
	// "a global maximum (e.g., 10,000 entries)").
	DefaultCacheCapacity = 10000
)

// Resolvers bundles the cached identity and repository resolvers the
// pipeline consults on every authenticated request.
type Resolvers struct {
	identity   *IdentityResolver
	repository *RepositoryResolver

	identityCache   *Cache[string, *CredentialRecord]
	repositoryCache *Cache[RepositoryKey, *BackendBinding]
}

// NewResolvers builds a Resolvers over client with the spec's default TTLs
// and capacity.
func NewResolvers(client *Client) *Resolvers {
	return &Resolvers{
		identity:   NewIdentityResolver(client),
		repository: NewRepositoryResolver(client),
		identityCache: NewCache[string, *CredentialRecord](
			DefaultCacheCapacity, IdentityTTL, func(k string) string { return "identity:" + k },
		),
		repositoryCache: NewCache[RepositoryKey, *BackendBinding](
			DefaultCacheCapacity, RepositoryTTL, func(k RepositoryKey) string { return "repository:" + k.AccountID + "/" + k.RepositoryID },
		),
	}
}

// ResolveIdentity resolves accessKeyID through the identity cache. Empty
// access key ids are rejected by IdentityResolver.Resolve before this ever
// reaches the cache or upstream.
func (r *Resolvers) ResolveIdentity(ctx context.Context, accessKeyID string) (*CredentialRecord, error) {
	if accessKeyID == "" {
		return r.identity.Resolve(ctx, accessKeyID)
	}
	return r.identityCache.Get(ctx, accessKeyID, func(ctx context.Context) (*CredentialRecord, error) {
		return r.identity.Resolve(ctx, accessKeyID)
	})
}

// ResolveRepository resolves {accountID, repositoryID} through the
// repository cache.
func (r *Resolvers) ResolveRepository(ctx context.Context, accountID, repositoryID string) (*BackendBinding, error) {
	key := RepositoryKey{AccountID: accountID, RepositoryID: repositoryID}
	return r.repositoryCache.Get(ctx, key, func(ctx context.Context) (*BackendBinding, error) {
		return r.repository.Resolve(ctx, accountID, repositoryID)
	})
}
