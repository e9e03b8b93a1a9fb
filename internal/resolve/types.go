// Package resolve implements the identity and repository resolvers that
// translate a SigV4 access key id, and an {account, repository} pair, into
// the credentials and backend coordinates needed to serve a request. Both
// resolvers share an HTTP client against the external metadata API and are
// wrapped in a TTL+LRU+single-flight cache (cache.go).
package resolve

import "github.com/source-cooperative/data.source.coop/internal/options"

// CredentialRecord is the resolved identity behind an access key id.
type CredentialRecord struct {
	AccessKeyID          string
	SecretAccessKey      options.SecretString
	PrincipalID          string
	PermittedRepositories map[RepositoryKey]bool
}

// RepositoryKey identifies a repository within an account.
type RepositoryKey struct {
	AccountID    string
	RepositoryID string
}

// Permits reports whether the credential record is allowed to read repo.
func (c *CredentialRecord) Permits(repo RepositoryKey) bool {
	if c == nil {
		return false
	}
	return c.PermittedRepositories[repo]
}

// BackendKind tags the variant held by a BackendBinding.
type BackendKind int

const (
	BackendKindS3 BackendKind = iota
	BackendKindAzure
)

// BackendBinding describes where and how to reach a repository's backing
// store. Exactly one of S3/Azure is populated, selected by Kind.
type BackendBinding struct {
	Kind BackendKind

	S3    *S3Binding
	Azure *AzureBinding
}

// S3Binding is the S3 variant of BackendBinding. AccessKey/SecretKey may be
// empty, meaning the bucket is read anonymously.
type S3Binding struct {
	EndpointURL string
	Region      string
	Bucket      string
	KeyPrefix   string
	AccessKey   string
	SecretKey   options.SecretString
}

// AzureBinding is the Azure variant of BackendBinding.
type AzureBinding struct {
	AccountName     string
	Container       string
	BlobPrefix      string
	SASOrAccountKey options.SecretString
}

// NormalizePrefix strips any leading/trailing slash, satisfying the
// invariant that key_prefix never begins or ends with "/".
func NormalizePrefix(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}

// ErrKind classifies a resolver failure.
type ErrKind int

const (
	ErrKindNotFound ErrKind = iota
	ErrKindUnavailable
	ErrKindInvalid
)

// ResolveError is returned by the resolvers (and surfaces through the
// cache) to let the pipeline map it to the right S3 error kind without
// string-matching.
type ResolveError struct {
	Kind ErrKind
	msg  string
}

func (e *ResolveError) Error() string { return e.msg }

func newResolveError(kind ErrKind, msg string) *ResolveError {
	return &ResolveError{Kind: kind, msg: msg}
}
