package gate

// PaymentState tracks a single request's position in the payment
// lifecycle. The zero value is Unpaid.
type PaymentState int

const (
	StateUnpaid PaymentState = iota
	StateChallenged
	StateVerified
	StateSettled
	StateFailed
)

func (s PaymentState) String() string {
	switch s {
	case StateUnpaid:
		return "unpaid"
	case StateChallenged:
		return "challenged"
	case StateVerified:
		return "verified"
	case StateSettled:
		return "settled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Settled and Failed are terminal. A timed-out verification or
// settlement lands in Failed, never back in Unpaid.
func (s PaymentState) CanTransition(next PaymentState) bool {
	switch s {
	case StateUnpaid:
		return next == StateChallenged || next == StateVerified
	case StateChallenged:
		return next == StateVerified || next == StateFailed
	case StateVerified:
		return next == StateSettled || next == StateFailed
	default:
		return false
	}
}
