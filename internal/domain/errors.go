package domain

import "errors"

var (
	// ErrAlreadyExists is returned when a quiz identifier is already taken on the ledger.
	ErrAlreadyExists = errors.New("quiz already exists")
	// ErrQuizNotFound indicates the referenced quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNotCompleted is returned when a reward is claimed without a current completion.
	ErrNotCompleted = errors.New("quiz not completed")
	// ErrAlreadyClaimed is only returned in claim-once mode.
	ErrAlreadyClaimed = errors.New("reward already claimed")
	// ErrNotPerfect is returned by the claim policy when the current score is not perfect.
	ErrNotPerfect = errors.New("completion is not a perfect score")
	// ErrInvalidInput wraps boundary validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidAddress indicates a malformed player address.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrForbidden is returned when the caller lacks a capability (creator allow-list, burn ownership).
	ErrForbidden = errors.New("forbidden")
	// ErrBurnDisabled is returned when the burn capability is switched off.
	ErrBurnDisabled = errors.New("reward burning is disabled")
	// ErrRewardNotFound indicates an unknown or burned reward id.
	ErrRewardNotFound = errors.New("reward not found")
	// ErrSessionNotFound is returned when a quiz session has not been started or has expired.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
)

// Kind groups errors by how callers should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindConflict
	KindNotFound
	KindPreconditionFailed
	KindValidation
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrAlreadyClaimed):
		return KindConflict
	case errors.Is(err, ErrQuizNotFound), errors.Is(err, ErrRewardNotFound),
		errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrOptionNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotCompleted), errors.Is(err, ErrNotPerfect):
		return KindPreconditionFailed
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidAddress):
		return KindValidation
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrBurnDisabled):
		return KindForbidden
	default:
		return KindInternal
	}
}
