package apperrors

var (
	ErrUnauthenticated    = Unauthorized("user must be authenticated")
	ErrInvalidLocation    = InvalidArg("invalid location provided")
	ErrMissingUserID      = InvalidArg("user id is required")
	ErrMissingMatchID     = InvalidArg("match id is required")
	ErrEmptyContent       = InvalidArg("message content is required")
	ErrContentTooLong     = InvalidArg("message too long")
	ErrInvalidMessageType = InvalidArg("invalid message type")
	ErrInvalidSweepKind   = InvalidArg("invalid sweep kind")
	ErrProfileNotFound    = NotFound("user profile not found")
	ErrMatchNotFound      = NotFound("match not found")
	ErrNotParticipant     = Forbidden("user is not a participant in this match")
	ErrNotOperator        = Forbidden("operator access required")
	ErrMatchArchived      = FailedPrecondition("match has been archived")
	ErrPhaseActive        = FailedPrecondition("anonymous phase still active")
	ErrNotAnonymous       = FailedPrecondition("match is not in anonymous phase")
	ErrNoPendingReveal    = FailedPrecondition("no reveal request to decline")
	ErrAlreadyMatched     = FailedPrecondition("user already has an active match")
	ErrAlreadyRequested   = AlreadyExists("you already requested reveal")
)

func ErrStoreFailed(op string, cause error) error {
	return Wrap(CodeInternal, "failed to "+op, cause)
}
