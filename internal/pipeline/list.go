package pipeline

import (
	"context"
	"encoding/xml"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/source-cooperative/data.source.coop/internal/backend"
	"github.com/source-cooperative/data.source.coop/internal/resolve"
)

// handleList serves GET /{account}?list-type=2&... (spec §4.6). account is
// the virtual bucket name; the repository (and therefore the backend to
// list against) is determined from the prefix query parameter. When the
// prefix does not select a single repository, an account-level synthetic
// listing of permitted repositories is returned instead (spec §4.6's
// "preserves aws s3 ls s3://{account}/ behavior").
func (p *Pipeline) handleList(w http.ResponseWriter, r *http.Request, requestID, account string) {
	resource := "/" + account

	if r.Method != http.MethodGet {
		writeError(w, requestID, resource, errInvalidRequest("unsupported method for listing"))
		return
	}

	cred, apiErr := p.authenticate(r)
	if apiErr != nil {
		writeError(w, requestID, resource, apiErr)
		return
	}

	q := r.URL.Query()
	prefix := q.Get("prefix")
	delimiter := q.Get("delimiter")
	continuationToken := q.Get("continuation-token")
	maxKeys := backend.ClampMaxKeys(parseMaxKeys(q.Get("max-keys")))

	repo, rest, ok := splitRepoPrefix(prefix)
	if !ok {
		p.handleAccountListing(w, r, requestID, account, cred, prefix, maxKeys)
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

	ctx, cancel := context.WithTimeout(r.Context(), backendCallTimeout)
	defer cancel()

	storagePrefix := joinKey(rb.keyPrefix, rest)
	page, err := rb.be.List(ctx, rb.container, storagePrefix, delimiter, continuationToken, maxKeys)
	if err != nil {
		p.logBackendError(requestID, r, err)
		writeError(w, requestID, resource, mapBackendError(err))
		return
	}

	result := listObjectsResult{
		Xmlns:                 listNamespace,
		Name:                  account,
		Prefix:                prefix,
		KeyCount:              page.KeyCount,
		MaxKeys:               maxKeys,
		IsTruncated:           page.IsTruncated,
		NextContinuationToken: page.NextContinuationToken,
	}
	for _, entry := range page.Entries {
		result.Contents = append(result.Contents, listEntry{
			Key:          stripKeyPrefix(rb.keyPrefix, entry.Key),
			LastModified: entry.LastModified.UTC().Format(time.RFC3339),
			ETag:         entry.ETag,
			Size:         entry.SizeBytes,
			StorageClass: "STANDARD",
		})
	}
	for _, cp := range page.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, commonPrefix{
			Prefix: stripKeyPrefix(rb.keyPrefix, cp),
		})
	}
	sort.Slice(result.CommonPrefixes, func(i, j int) bool {
		return result.CommonPrefixes[i].Prefix < result.CommonPrefixes[j].Prefix
	})

	writeListResult(w, requestID, result)
}

// handleAccountListing enumerates the repositories cred is permitted to see
// under account as synthetic common prefixes, with no object entries (spec
// §9 Open Question (b)). The result is always a single page: at most
// maxKeys repositories (already clamped to 1000) in lexicographic order.
// Repositories beyond that are omitted; IsTruncated stays false and no
// continuation token is returned.
func (p *Pipeline) handleAccountListing(w http.ResponseWriter, r *http.Request, requestID, account string, cred *resolve.CredentialRecord, prefix string, maxKeys int) {
	var repos []string
	for key := range cred.PermittedRepositories {
		if key.AccountID != account {
			continue
		}
		if prefix != "" && !strings.HasPrefix(key.RepositoryID+"/", prefix) {
			continue
		}
		repos = append(repos, key.RepositoryID+"/")
	}
	sort.Strings(repos)
	if len(repos) > maxKeys {
		repos = repos[:maxKeys]
	}

	result := listObjectsResult{
		Xmlns:    listNamespace,
		Name:     account,
		Prefix:   prefix,
		KeyCount: len(repos),
		MaxKeys:  maxKeys,
	}
	for _, repo := range repos {
		result.CommonPrefixes = append(result.CommonPrefixes, commonPrefix{Prefix: repo})
	}

	writeListResult(w, requestID, result)
}

func writeListResult(w http.ResponseWriter, requestID string, result listObjectsResult) {
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("x-amz-request-id", requestID)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(result)
}

// splitRepoPrefix splits a list prefix of the form "{repo}/{rest}" into its
// repository id and the remaining key prefix. ok is false when prefix does
// not contain a "/" at all, meaning it cannot select a single repository.
func splitRepoPrefix(prefix string) (repo, rest string, ok bool) {
	i := strings.IndexByte(prefix, '/')
	if i < 0 {
		return "", "", false
	}
	return prefix[:i], prefix[i+1:], true
}

// stripKeyPrefix removes the repository's storage-side key_prefix from a
// backend-reported key, so clients see keys relative to the virtual bucket
// root {account}/{repo}/ rather than the backend's own storage layout
// (spec §4.6 step 7).
func stripKeyPrefix(keyPrefix, storageKey string) string {
	if keyPrefix == "" {
		return storageKey
	}
	return strings.TrimPrefix(storageKey, keyPrefix+"/")
}

func parseMaxKeys(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
