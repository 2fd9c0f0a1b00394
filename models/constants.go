package models

// Match statuses
const (
	StatusAnonymous = "anonymous"
	StatusRevealed  = "revealed"
	StatusArchived  = "archived"
)

// Archive reasons
const (
	ArchivedReasonRevealDeclined  = "reveal_declined"
	ArchivedReasonAutoExpired     = "auto_expired"
	ArchivedReasonParticipantLeft = "participant_left"
)

// Message types
const (
	MessageTypeText          = "text"
	MessageTypeSystem        = "system"
	MessageTypeRevealRequest = "reveal_request"
)

// SystemSenderID is the sender of every lifecycle message.
const SystemSenderID = "system"

// AnonymousDisplayName is shown for the other participant until reveal.
const AnonymousDisplayName = "Anonymous"

// Sweep kinds
const (
	SweepPool      = "pool"
	SweepArchive   = "archive"
	SweepRetention = "retention"
	SweepStats     = "stats"
)

// IsValidMessageType reports whether t is a message type a client may send.
func IsValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeSystem, MessageTypeRevealRequest:
		return true
	}
	return false
}

// IsValidSweepKind reports whether kind names a housekeeping pass.
func IsValidSweepKind(kind string) bool {
	switch kind {
	case SweepPool, SweepArchive, SweepRetention, SweepStats:
		return true
	}
	return false
}
