package types

import "time"

// SwipeRequest is a validated card presentation reported by a reader.
type SwipeRequest struct {
	DeviceSN  string // 16-char hardware serial ("dn")
	Info      string // sequence token echoed in the response
	CardID    string
	MachineNo string // "jihao"; selects the audit bucket
	CardType  *int   // optional raw "cardtype" value
	Status    string // optional reader status code
}

type OutcomeKind string

const (
	OutcomeConsumed      OutcomeKind = "consumed"
	OutcomeOutsideWindow OutcomeKind = "outside-window"
	OutcomeCardNotFound  OutcomeKind = "card-not-found"
	OutcomeNotEntitled   OutcomeKind = "not-entitled"
	OutcomeInternalError OutcomeKind = "internal-error"
)

func (k OutcomeKind) Rejected() bool { return k != OutcomeConsumed }

// SwipeOutcome is the terminal state of one swipe. Account is set whenever
// the card was found, including on rejections.
type SwipeOutcome struct {
	Kind      OutcomeKind
	Account   *CardAccount
	Bucket    string
	DecidedAt time.Time
}
