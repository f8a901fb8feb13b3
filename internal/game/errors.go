package game

import "errors"

// RejectReason is the stable code attached to a rejected pick so callers
// can tell "try a different number" from "you already picked" from "round
// is over".
type RejectReason string

const (
	ReasonInvalidRound   RejectReason = "invalid_round"
	ReasonRoundNotActive RejectReason = "round_not_active"
	ReasonInvalidNumber  RejectReason = "invalid_number"
	ReasonDuplicatePick  RejectReason = "duplicate_pick"
)

// Rejection is a validation failure for a pick submission. Rejections are
// returned to the caller and never retried by the game itself.
type Rejection struct {
	Reason RejectReason
}

func (r *Rejection) Error() string {
	return "pick rejected: " + string(r.Reason)
}

var (
	// ErrInvalidRound means the pick targeted a round other than the
	// current one.
	ErrInvalidRound = &Rejection{Reason: ReasonInvalidRound}

	// ErrRoundNotActive means the target round has already ended.
	ErrRoundNotActive = &Rejection{Reason: ReasonRoundNotActive}

	// ErrInvalidNumber means the pick did not match the most recently
	// revealed number.
	ErrInvalidNumber = &Rejection{Reason: ReasonInvalidNumber}

	// ErrDuplicatePick means the user already picked in this round.
	ErrDuplicatePick = &Rejection{Reason: ReasonDuplicatePick}
)

// RejectReasonOf extracts the rejection reason from err, if it carries one.
func RejectReasonOf(err error) (RejectReason, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
