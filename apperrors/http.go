package apperrors

import "net/http"

// HTTPStatus maps an error's code to the status a handler responds with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case CodeAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error envelope every handler writes.
type Body struct {
	Error BodyError `json:"error"`
}

type BodyError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToBody renders err for a client. Internal causes are never exposed.
func ToBody(err error) Body {
	return Body{Error: BodyError{Code: CodeOf(err), Message: MessageOf(err)}}
}
