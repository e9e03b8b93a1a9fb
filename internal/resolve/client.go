package resolve

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/source-cooperative/data.source.coop/internal/errors"
	"github.com/source-cooperative/data.source.coop/internal/options"
	"github.com/source-cooperative/data.source.coop/internal/transport"
)

// metadataTimeout is the 5s resolver budget from spec §5.
const metadataTimeout = 5 * time.Second

// Client talks to the external metadata API that backs both the identity
// and repository resolvers. Grounded on the teacher's
// internal/backend/rest.restBackend (a *http.Client over a configured
// http.RoundTripper, built once and shared) and http_transport.go for the
// RoundTripper itself.
type Client struct {
	baseURL    string
	bearer     options.SecretString
	httpClient *http.Client
}

// NewClient builds a Client against baseURL, authenticating with bearer and
// optionally routing through proxyURL (spec §6's SOURCE_API_PROXY_URL).
func NewClient(baseURL string, bearer options.SecretString, proxyURL string) (*Client, error) {
	rt, err := transport.Build(transport.Options{ProxyURL: proxyURL})
	if err != nil {
		return nil, errors.Wrap(err, "resolve: build metadata API transport")
	}
	return &Client{
		baseURL:    baseURL,
		bearer:     bearer,
		httpClient: &http.Client{Transport: rt},
	}, nil
}

// get issues an authenticated GET against path (relative to baseURL),
// decoding a 200 response as JSON into out. It retries once on a connection
// reset within the overall 5s budget (spec §7's single retry allowance),
// and classifies the outcome into ErrKindNotFound/ErrKindUnavailable per
// spec §4.2/§4.3.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	// A single retry on connection reset, matching the teacher's
	// backend/retry package's use of cenkalti/backoff for transient
	// transport failures, narrowed from that package's full
	// exponential/MaxElapsedTime policy to one fixed-interval retry since
	// the metadata API budget here is a flat 5s rather than a long-running
	// backup operation's tolerance for repeated backoff.
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 1), ctx)

	var resolveErr *ResolveError
	retryErr := backoff.Retry(func() error {
		resp, err := c.do(ctx, path)
		if err != nil {
			if isConnReset(err) {
				return err
			}
			resolveErr = newResolveError(ErrKindUnavailable, "resolve: metadata API request failed: "+err.Error())
			return backoff.Permanent(resolveErr)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			resolveErr = newResolveError(ErrKindNotFound, "resolve: metadata API reported not found")
			return backoff.Permanent(resolveErr)
		case resp.StatusCode >= 500:
			resolveErr = newResolveError(ErrKindUnavailable, "resolve: metadata API returned "+resp.Status)
			return backoff.Permanent(resolveErr)
		case resp.StatusCode != http.StatusOK:
			resolveErr = newResolveError(ErrKindInvalid, "resolve: metadata API returned "+resp.Status)
			return backoff.Permanent(resolveErr)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(errors.Wrap(err, "resolve: decode metadata API response"))
		}
		return nil
	}, policy)

	if retryErr == nil {
		return nil
	}
	if resolveErr != nil {
		return resolveErr
	}
	return newResolveError(ErrKindUnavailable, "resolve: metadata API request failed: "+retryErr.Error())
}

func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token := c.bearer.Unwrap(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpClient.Do(req)
}

// isConnReset reports whether err looks like a connection-reset failure
// worth a single idempotent retry, per spec §7's retry policy.
func isConnReset(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	return errors.Is(opErr.Err, syscall.ECONNRESET)
}
