package ledger

import (
	"context"

	"quiz-ledger/internal/domain"
)

// Store is the ledger's state backend. Each mutating method must apply
// atomically: either every key it touches is written or none is.
//
// Secondary indexes by quiz id and by player are the store's business; the
// history readers must return entries in append (Seq) order.
type Store interface {
	// Quiz returns domain.ErrQuizNotFound for unknown ids.
	Quiz(ctx context.Context, quizID string) (domain.QuizRecord, error)
	// InsertQuiz returns domain.ErrAlreadyExists if the id is taken.
	InsertQuiz(ctx context.Context, quiz domain.QuizRecord) error

	// Current returns the retained completion for (player, quiz).
	Current(ctx context.Context, player domain.Address, quizID string) (domain.Completion, bool, error)
	// AppendCompletion assigns the next history Seq, overwrites the current
	// record for (player, quiz) and appends to history in one step.
	AppendCompletion(ctx context.Context, c domain.Completion) (domain.Completion, error)
	HistoryByQuiz(ctx context.Context, quizID string) ([]domain.Completion, error)
	HistoryByPlayer(ctx context.Context, player domain.Address) ([]domain.Completion, error)

	// MintReward allocates the next reward id from the store's sequence
	// and persists the reward with it.
	MintReward(ctx context.Context, reward domain.Reward) (domain.Reward, error)
	// Reward returns domain.ErrRewardNotFound for unknown or burned ids.
	Reward(ctx context.Context, id uint64) (domain.Reward, error)
	RewardsOf(ctx context.Context, owner domain.Address) ([]domain.Reward, error)
	// ClaimCount is the number of rewards ever minted for (player, quiz), burned ones included.
	ClaimCount(ctx context.Context, player domain.Address, quizID string) (uint64, error)
	BurnReward(ctx context.Context, id uint64) error
}

// EventSink receives notifications after a write has committed.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Verifier is consulted before a completion is accepted. A nil Verifier
// accepts whatever the caller reports.
type Verifier interface {
	VerifyCompletion(ctx context.Context, player domain.Address, quiz domain.QuizRecord, score, attemptCount uint64) error
}

type VerifierFunc func(ctx context.Context, player domain.Address, quiz domain.QuizRecord, score, attemptCount uint64) error

func (f VerifierFunc) VerifyCompletion(ctx context.Context, player domain.Address, quiz domain.QuizRecord, score, attemptCount uint64) error {
	return f(ctx, player, quiz, score, attemptCount)
}

// CreatorPolicy decides who may create quizzes.
type CreatorPolicy interface {
	CanCreate(creator domain.Address) bool
}

// AllowList permits only the listed addresses. An empty list permits nobody.
type AllowList map[domain.Address]struct{}

func NewAllowList(addrs ...domain.Address) AllowList {
	l := make(AllowList, len(addrs))
	for _, a := range addrs {
		l[a] = struct{}{}
	}
	return l
}

func (l AllowList) CanCreate(creator domain.Address) bool {
	_, ok := l[creator]
	return ok
}
