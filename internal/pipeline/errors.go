package pipeline

import (
	"encoding/xml"
	"net/http"

	"github.com/source-cooperative/data.source.coop/internal/backend"
	"github.com/source-cooperative/data.source.coop/internal/errors"
	"github.com/source-cooperative/data.source.coop/internal/resolve"
	"github.com/source-cooperative/data.source.coop/internal/sigv4"
)

// apiError is one entry of the closed S3 error taxonomy. Every error the
// pipeline returns to a client is converted to one of these before it
// reaches writeError.
type apiError struct {
	Code    string
	Status  int
	Message string
}

func (e *apiError) Error() string { return e.Message }

func newAPIError(code string, status int, message string) *apiError {
	return &apiError{Code: code, Status: status, Message: message}
}

func errInvalidAccessKeyID(msg string) *apiError {
	return newAPIError("InvalidAccessKeyId", http.StatusForbidden, msg)
}

func errSignatureDoesNotMatch(msg string) *apiError {
	return newAPIError("SignatureDoesNotMatch", http.StatusForbidden, msg)
}

func errRequestTimeTooSkewed(msg string) *apiError {
	return newAPIError("RequestTimeTooSkewed", http.StatusForbidden, msg)
}

func errAccessDenied(msg string) *apiError {
	return newAPIError("AccessDenied", http.StatusForbidden, msg)
}

func errNoSuchKey(msg string) *apiError {
	return newAPIError("NoSuchKey", http.StatusNotFound, msg)
}

func errNoSuchBucket(msg string) *apiError {
	return newAPIError("NoSuchBucket", http.StatusNotFound, msg)
}

func errInvalidRange(msg string) *apiError {
	return newAPIError("InvalidRange", http.StatusRequestedRangeNotSatisfiable, msg)
}

func errInvalidRequest(msg string) *apiError {
	return newAPIError("InvalidRequest", http.StatusBadRequest, msg)
}

func errServiceUnavailable(msg string) *apiError {
	return newAPIError("ServiceUnavailable", http.StatusServiceUnavailable, msg)
}

func errInternal(msg string) *apiError {
	return newAPIError("InternalError", http.StatusInternalServerError, msg)
}

// mapSigv4Error classifies a sigv4.Verify failure (spec §7).
func mapSigv4Error(err error) *apiError {
	if sigv4.ErrorIsClockSkew(err) {
		return errRequestTimeTooSkewed(err.Error())
	}
	return errSignatureDoesNotMatch(err.Error())
}

// mapIdentityError classifies a failure resolving an access key id (spec
// §4.2/§7). Any resolver failure short of "unavailable" reads as an
// unrecognized access key id, since the metadata API is the sole source of
// truth for which keys exist.
func mapIdentityError(err error) *apiError {
	var rerr *resolve.ResolveError
	if errors.As(err, &rerr) {
		switch rerr.Kind {
		case resolve.ErrKindUnavailable:
			return errServiceUnavailable(err.Error())
		default:
			return errInvalidAccessKeyID(err.Error())
		}
	}
	return errInternal(err.Error())
}

// mapRepositoryError classifies a failure resolving {account, repository}
// (spec §4.3/§7).
func mapRepositoryError(err error) *apiError {
	var rerr *resolve.ResolveError
	if errors.As(err, &rerr) {
		switch rerr.Kind {
		case resolve.ErrKindNotFound:
			return errNoSuchBucket(err.Error())
		case resolve.ErrKindUnavailable:
			return errServiceUnavailable(err.Error())
		default:
			return errInvalidRequest(err.Error())
		}
	}
	return errInternal(err.Error())
}

// mapBackendError classifies a failure from a backend.Backend call (spec
// §4.5/§7).
func mapBackendError(err error) *apiError {
	var berr *backend.Error
	if errors.As(err, &berr) {
		switch berr.Kind {
		case backend.KindNotFound:
			return errNoSuchKey(err.Error())
		case backend.KindForbidden:
			return errAccessDenied(err.Error())
		case backend.KindRangeNotSatisfiable:
			return errInvalidRange(err.Error())
		case backend.KindBackendUnavailable:
			return errServiceUnavailable(err.Error())
		}
	}
	return errInternal(err.Error())
}

// errorXML is the wire shape of spec §6's error body.
type errorXML struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource"`
	RequestID string   `xml:"RequestId"`
}

// writeError renders apiErr as S3 error XML and sets the matching HTTP
// status. It logs nothing itself: callers log backend and backend-setup
// failures that map to a 5xx through logBackendError/logServerError
// (request id, method and path) before calling it; resolver failures are
// not logged.
func writeError(w http.ResponseWriter, requestID, resource string, apiErr *apiError) {
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("x-amz-request-id", requestID)
	w.WriteHeader(apiErr.Status)

	body := errorXML{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Resource:  resource,
		RequestID: requestID,
	}
	w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(body)
}
