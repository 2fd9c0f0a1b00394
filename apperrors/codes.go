package apperrors

type Code string

const (
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeInternal           Code = "INTERNAL"
)
