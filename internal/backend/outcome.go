package backend

// ErrorCode is the closed vocabulary of structured backend failures.
// Free-form failures carry an empty code and a message.
type ErrorCode string

const (
	CodeNone                      ErrorCode = ""
	CodeConfirmRequired           ErrorCode = "CONFIRM_REQUIRED"
	CodeProtectedPath             ErrorCode = "PROTECTED_PATH"
	CodeAutoCheckFailedRolledBack ErrorCode = "AUTO_CHECK_FAILED_ROLLED_BACK"
	CodeAutoCheckFailedReverted   ErrorCode = "AUTO_CHECK_FAILED_REVERTED"
	CodeAutoRollbackDone          ErrorCode = "AUTO_ROLLBACK_DONE"
)

// Known reports whether c belongs to the closed vocabulary.
func (c ErrorCode) Known() bool {
	switch c {
	case CodeConfirmRequired, CodeProtectedPath,
		CodeAutoCheckFailedRolledBack, CodeAutoCheckFailedReverted, CodeAutoRollbackDone:
		return true
	}
	return false
}

// Reverted reports whether c means "applied, verification failed, reverted".
func (c ErrorCode) Reverted() bool {
	switch c {
	case CodeAutoCheckFailedRolledBack, CodeAutoCheckFailedReverted, CodeAutoRollbackDone:
		return true
	}
	return false
}

// OutcomeKind is what the orchestrator does with an apply attempt.
type OutcomeKind int

const (
	OutcomeFailed OutcomeKind = iota
	OutcomeApplied
	OutcomeConfirmRequired
	OutcomePolicyRejected
	OutcomeReverted
	OutcomeNoop
	OutcomeStale
	OutcomeBusy
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeApplied:
		return "applied"
	case OutcomeConfirmRequired:
		return "confirm_required"
	case OutcomePolicyRejected:
		return "policy_rejected"
	case OutcomeReverted:
		return "reverted"
	case OutcomeNoop:
		return "noop"
	case OutcomeStale:
		return "stale"
	case OutcomeBusy:
		return "busy"
	default:
		return "failed"
	}
}

// MarshalText encodes the kind by name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ClassifyOutcome maps an apply result onto the outcome state machine.
// Only ok and error_code are consulted.
func ClassifyOutcome(res *ApplyTxResult) OutcomeKind {
	if res == nil {
		return OutcomeFailed
	}
	if res.OK {
		return OutcomeApplied
	}
	switch {
	case res.ErrorCode == CodeConfirmRequired:
		return OutcomeConfirmRequired
	case res.ErrorCode == CodeProtectedPath:
		return OutcomePolicyRejected
	case res.ErrorCode.Reverted():
		return OutcomeReverted
	default:
		return OutcomeFailed
	}
}
