// Package sigv4 implements AWS Signature Version 4 canonicalization,
// signing, and verification for the read proxy's inbound request
// authentication (spec §4.1). The teacher never verifies an inbound SigV4
// request — its own SigV4 touch points are all outbound signing performed
// by minio-go/v7 and the Azure SDK — so this package is grounded on the
// inbound-verification shape shared across the corpus's S3-gateway auth
// middlewares rather than on teacher code.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/source-cooperative/data.source.coop/internal/errors"
)

const (
	// Algorithm is the only SigV4 signing algorithm this proxy accepts.
	Algorithm = "AWS4-HMAC-SHA256"

	// Region and Service are fixed: this proxy presents itself as a single
	// s3/us-east-1 endpoint regardless of the backend it fronts.
	Region  = "us-east-1"
	Service = "s3"

	// UnsignedPayload is the sentinel value of x-amz-content-sha256 for
	// requests that don't sign their body.
	UnsignedPayload = "UNSIGNED-PAYLOAD"

	// StreamingPayloadPrefix marks a streaming-signed payload. Chunk
	// signatures within such a body are accepted without verification —
	// see spec §4.1 and §9 Open Question (a); read traffic has no request
	// body whose integrity affects a GET/HEAD/LIST.
	StreamingPayloadPrefix = "STREAMING-AWS4-HMAC-SHA256-PAYLOAD"

	maxClockSkew = 15 * time.Minute

	amzDateLayout = "20060102T150405Z"
)

// ErrClockSkewExceeded is returned (wrapped) by Verify when a request's
// x-amz-date falls outside the allowed 15-minute window, distinguishing
// this case from a plain signature mismatch so the pipeline can map it to
// RequestTimeTooSkewed rather than SignatureDoesNotMatch.
var ErrClockSkewExceeded = errors.New("sigv4: clock skew exceeds 15m")

// ErrorIsClockSkew reports whether err (as returned by Verify) was caused
// by the request's timestamp falling outside the allowed window, rather
// than by a signature mismatch.
func ErrorIsClockSkew(err error) bool {
	return errors.Is(err, ErrClockSkewExceeded)
}

var authHeaderRegex = regexp.MustCompile(
	`^AWS4-HMAC-SHA256 ` +
		`Credential=([^/]+)/(\d{8})/([^/]+)/([^/]+)/aws4_request, *` +
		`SignedHeaders=([^,]+), *` +
		`Signature=([0-9a-f]+)$`,
)

// accessKeyIDRegex extracts just the access key id, tolerating an
// otherwise-malformed Authorization header (including an empty access key
// id) so the pipeline can reject InvalidAccessKeyId before ever consulting
// the identity resolver, per spec §4.2 and §8.
var accessKeyIDRegex = regexp.MustCompile(`Credential=([^/,]*)`)

// ExtractAccessKeyID returns the access key id embedded in an Authorization
// header without otherwise validating the header's shape. An empty string
// is returned if no Credential component could be found at all.
func ExtractAccessKeyID(header string) string {
	m := accessKeyIDRegex.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

// Credential is the parsed content of an Authorization header.
type Credential struct {
	AccessKeyID   string
	Date          string // YYYYMMDD
	Region        string
	Service       string
	SignedHeaders []string
	Signature     string
}

// ParseAuthorization parses the Authorization header of an inbound request.
func ParseAuthorization(header string) (*Credential, error) {
	m := authHeaderRegex.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return nil, errors.New("sigv4: malformed Authorization header")
	}
	return &Credential{
		AccessKeyID:   m[1],
		Date:          m[2],
		Region:        m[3],
		Service:       m[4],
		SignedHeaders: strings.Split(m[5], ";"),
		Signature:     m[6],
	}, nil
}

// Verify checks req against secretAccessKey, the secret resolved for the
// access key id embedded in req's Authorization header. It returns nil iff
// the signature matches, the declared region/service are the fixed
// us-east-1/s3, the signed headers cover host and every x-amz-* header
// present on the request, and the request's timestamp is within 15 minutes
// of now.
func Verify(req *http.Request, secretAccessKey string) error {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return errors.New("sigv4: missing Authorization header")
	}

	cred, err := ParseAuthorization(authHeader)
	if err != nil {
		return err
	}

	if cred.AccessKeyID == "" {
		return errors.New("sigv4: empty access key id")
	}

	if cred.Region != Region || cred.Service != Service {
		return errors.Errorf("sigv4: unsupported scope %s/%s/%s", cred.Date, cred.Region, cred.Service)
	}

	amzDate := req.Header.Get("X-Amz-Date")
	if amzDate == "" {
		amzDate = req.URL.Query().Get("X-Amz-Date")
	}
	if amzDate == "" {
		return errors.New("sigv4: missing x-amz-date")
	}

	reqTime, err := time.Parse(amzDateLayout, amzDate)
	if err != nil {
		return errors.Wrap(err, "sigv4: invalid x-amz-date")
	}
	if skew := time.Since(reqTime); skew > maxClockSkew || skew < -maxClockSkew {
		return errors.Wrapf(ErrClockSkewExceeded, "sigv4: request time skew %s", skew)
	}

	if err := requireSignedHeaders(req, cred.SignedHeaders); err != nil {
		return err
	}

	payloadHash := req.Header.Get("X-Amz-Content-Sha256")
	if payloadHash == "" {
		payloadHash = UnsignedPayload
	}

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	canonical := CanonicalRequest(req.Method, req.URL, host, req.Header, cred.SignedHeaders, payloadHash)
	sts := StringToSign(amzDate, cred.Date, cred.Region, cred.Service, canonical)
	expected := Sign(secretAccessKey, cred.Date, cred.Region, cred.Service, sts)

	if subtle.ConstantTimeCompare([]byte(expected), []byte(cred.Signature)) != 1 {
		return errors.New("sigv4: signature mismatch")
	}

	return nil
}

// requireSignedHeaders enforces that host and every inbound x-amz-* header
// are present in the signed-headers set.
func requireSignedHeaders(req *http.Request, signed []string) error {
	set := make(map[string]bool, len(signed))
	for _, h := range signed {
		set[strings.ToLower(h)] = true
	}
	if !set["host"] {
		return errors.New("sigv4: host header not signed")
	}
	for name := range req.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-amz-") && !set[lower] {
			return errors.Errorf("sigv4: header %s not signed", lower)
		}
	}
	return nil
}

// CanonicalRequest builds the canonical request string (spec §4.1). path is
// taken from u.Path which net/http has already decoded exactly once from
// the wire — no additional decode/encode round trip happens here beyond
// the single normalizing re-encode, which is the bug class spec §9 calls
// out (historically, implementations double-decoded or never decoded,
// both of which break signatures against a client that encoded the path
// with %20 or literal +).
func CanonicalRequest(method string, u *url.URL, host string, headers http.Header, signedHeaders []string, payloadHash string) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(canonicalURI(u.Path))
	b.WriteByte('\n')
	b.WriteString(canonicalQuery(u))
	b.WriteByte('\n')
	b.WriteString(canonicalHeaders(headers, host, signedHeaders))
	b.WriteByte('\n')
	b.WriteString(strings.Join(sortedLower(signedHeaders), ";"))
	b.WriteByte('\n')
	b.WriteString(payloadHash)
	return b.String()
}

// canonicalURI URI-encodes each path segment, leaving unreserved characters
// literal, and preserves a trailing slash. u.Path is already the
// exactly-once-decoded form (net/http decodes %XX sequences into u.Path on
// parse); we re-encode it here rather than re-decoding, satisfying the
// "decode exactly once" rule.
func canonicalURI(p string) string {
	if p == "" {
		return "/"
	}
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = encodePathSegment(seg)
	}
	return strings.Join(segments, "/")
}

func encodePathSegment(seg string) string {
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// canonicalQuery sorts query parameters by (name, value) and percent-encodes
// both; an empty value is rendered as "name=".
func canonicalQuery(u *url.URL) string {
	values := u.Query()
	if len(values) == 0 {
		return ""
	}

	type pair struct{ k, v string }
	var pairs []pair
	for k, vs := range values {
		for _, v := range vs {
			pairs = append(pairs, pair{k, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(encodeQueryComponent(p.k))
		b.WriteByte('=')
		b.WriteString(encodeQueryComponent(p.v))
	}
	return b.String()
}

func encodeQueryComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// canonicalHeaders lower-cases header names, trims and collapses values,
// and sorts by name. When "host" is among the signed headers its value is
// taken from the host argument (net/http strips the Host header from
// req.Header into req.Host, so it must be synthesized here).
func canonicalHeaders(headers http.Header, host string, signedHeaders []string) string {
	names := sortedLower(signedHeaders)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		if name == "host" {
			b.WriteString(host)
		} else {
			b.WriteString(collapseHeaderValue(headers.Get(http.CanonicalHeaderKey(name))))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func collapseHeaderValue(v string) string {
	fields := strings.Fields(v)
	return strings.Join(fields, " ")
}

func sortedLower(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	sort.Strings(out)
	return out
}

// StringToSign builds the SigV4 string-to-sign.
func StringToSign(amzDate, date, region, service, canonicalRequest string) string {
	scope := Scope(date, region, service)
	hashed := sha256.Sum256([]byte(canonicalRequest))
	return strings.Join([]string{
		Algorithm,
		amzDate,
		scope,
		hex.EncodeToString(hashed[:]),
	}, "\n")
}

// Scope builds the credential scope string date/region/service/aws4_request.
func Scope(date, region, service string) string {
	return strings.Join([]string{date, region, service, "aws4_request"}, "/")
}

// SigningKey derives the HMAC signing key for (secret, date, region, service).
func SigningKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

// Sign computes the hex-encoded SigV4 signature of stringToSign.
func Sign(secret, date, region, service, stringToSign string) string {
	key := SigningKey(secret, date, region, service)
	return hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
