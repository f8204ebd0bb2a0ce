package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/metrics"
)

// Ledger is the system of record for quizzes, completions and rewards.
//
// Writes are totally ordered by a single writer lock; each one is applied
// by the Store in one atomic step and then announced to the EventSink.
// Reads go straight to the Store and never take the writer lock.
type Ledger struct {
	store     Store
	sink      EventSink
	verifier  Verifier
	creators  CreatorPolicy
	claimOnce bool
	burn      bool
	now       func() time.Time
	log       zerolog.Logger
	metrics   *metrics.Metrics

	mu sync.Mutex
}

type Option func(*Ledger)

// WithClock replaces the ledger time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithEventSink(sink EventSink) Option {
	return func(l *Ledger) { l.sink = sink }
}

// WithVerifier installs a check that runs before a completion is accepted.
func WithVerifier(v Verifier) Option {
	return func(l *Ledger) { l.verifier = v }
}

// WithCreatorPolicy restricts CreateQuiz. Without it anyone may create a quiz.
func WithCreatorPolicy(p CreatorPolicy) Option {
	return func(l *Ledger) { l.creators = p }
}

// WithClaimOnce rejects a second ClaimReward for the same (player, quiz).
func WithClaimOnce(enabled bool) Option {
	return func(l *Ledger) { l.claimOnce = enabled }
}

// WithBurn enables BurnReward.
func WithBurn(enabled bool) Option {
	return func(l *Ledger) { l.burn = enabled }
}

func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateQuiz registers a quiz id with its title and reward metadata. The
// record is immutable afterwards.
func (l *Ledger) CreateQuiz(ctx context.Context, caller domain.Address, quizID, title, rewardMetadataRef string) (rec domain.QuizRecord, err error) {
	defer func() { l.observe("create_quiz", err) }()

	if quizID == "" {
		return domain.QuizRecord{}, fmt.Errorf("%w: quiz id is required", domain.ErrInvalidInput)
	}
	if l.creators != nil && !l.creators.CanCreate(caller) {
		return domain.QuizRecord{}, fmt.Errorf("create quiz %q: %w", quizID, domain.ErrForbidden)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.store.Quiz(ctx, quizID); err == nil {
		return domain.QuizRecord{}, fmt.Errorf("create quiz %q: %w", quizID, domain.ErrAlreadyExists)
	} else if domain.KindOf(err) != domain.KindNotFound {
		return domain.QuizRecord{}, fmt.Errorf("create quiz %q: %w", quizID, err)
	}

	rec = domain.QuizRecord{
		ID:                quizID,
		Title:             title,
		RewardMetadataRef: rewardMetadataRef,
		Creator:           caller,
		CreatedAt:         l.timestamp(),
	}
	if err := l.store.InsertQuiz(ctx, rec); err != nil {
		return domain.QuizRecord{}, fmt.Errorf("create quiz %q: %w", quizID, err)
	}

	l.emit(ctx, domain.Event{
		Type:              domain.EventQuizCreated,
		QuizID:            rec.ID,
		Player:            caller,
		Title:             rec.Title,
		RewardMetadataRef: rec.RewardMetadataRef,
		Timestamp:         rec.CreatedAt,
	})
	return rec, nil
}

// RecordCompletion stores the caller's result for a quiz. The new record
// replaces the current one for (caller, quiz) and is appended to history.
// Repeating the call appends again; it is not idempotent.
func (l *Ledger) RecordCompletion(ctx context.Context, caller domain.Address, quizID string, score, attemptCount uint64) (c domain.Completion, err error) {
	defer func() { l.observe("record_completion", err) }()

	if quizID == "" {
		return domain.Completion{}, fmt.Errorf("%w: quiz id is required", domain.ErrInvalidInput)
	}
	if attemptCount == 0 {
		return domain.Completion{}, fmt.Errorf("%w: attempt count must be positive", domain.ErrInvalidInput)
	}

	// Quizzes are never deleted, so the existence check and the verifier
	// can run before taking the writer lock.
	quiz, err := l.store.Quiz(ctx, quizID)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("record completion %q: %w", quizID, err)
	}
	if l.verifier != nil {
		if err := l.verifier.VerifyCompletion(ctx, caller, quiz, score, attemptCount); err != nil {
			return domain.Completion{}, fmt.Errorf("record completion %q: %w", quizID, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, err = l.store.AppendCompletion(ctx, domain.Completion{
		Player:       caller,
		QuizID:       quizID,
		Score:        score,
		AttemptCount: attemptCount,
		Timestamp:    l.timestamp(),
	})
	if err != nil {
		return domain.Completion{}, fmt.Errorf("record completion %q: %w", quizID, err)
	}

	l.emit(ctx, domain.Event{
		Type:         domain.EventQuizCompleted,
		QuizID:       c.QuizID,
		Player:       c.Player,
		Score:        c.Score,
		AttemptCount: c.AttemptCount,
		Timestamp:    c.Timestamp,
	})
	return c, nil
}

// ClaimReward mints a reward for the caller's current completion of quizID.
// No score threshold is applied here. Unless claim-once mode is on, every
// call mints a new reward.
func (l *Ledger) ClaimReward(ctx context.Context, caller domain.Address, quizID string) (r domain.Reward, err error) {
	defer func() { l.observe("claim_reward", err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	quiz, err := l.store.Quiz(ctx, quizID)
	if err != nil {
		return domain.Reward{}, fmt.Errorf("claim reward %q: %w", quizID, err)
	}
	_, ok, err := l.store.Current(ctx, caller, quizID)
	if err != nil {
		return domain.Reward{}, fmt.Errorf("claim reward %q: %w", quizID, err)
	}
	if !ok {
		return domain.Reward{}, fmt.Errorf("claim reward %q: %w", quizID, domain.ErrNotCompleted)
	}
	if l.claimOnce {
		n, err := l.store.ClaimCount(ctx, caller, quizID)
		if err != nil {
			return domain.Reward{}, fmt.Errorf("claim reward %q: %w", quizID, err)
		}
		if n > 0 {
			return domain.Reward{}, fmt.Errorf("claim reward %q: %w", quizID, domain.ErrAlreadyClaimed)
		}
	}

	r, err = l.store.MintReward(ctx, domain.Reward{
		Owner:       caller,
		QuizID:      quizID,
		MetadataRef: quiz.RewardMetadataRef,
		MintedAt:    l.timestamp(),
	})
	if err != nil {
		return domain.Reward{}, fmt.Errorf("claim reward %q: %w", quizID, err)
	}
	if l.metrics != nil {
		l.metrics.RewardsMinted.Inc()
	}

	id := r.ID
	l.emit(ctx, domain.Event{
		Type:      domain.EventRewardClaimed,
		QuizID:    quizID,
		Player:    caller,
		RewardID:  &id,
		Timestamp: r.MintedAt,
	})
	return r, nil
}

// BurnReward destroys a reward owned by the caller.
func (l *Ledger) BurnReward(ctx context.Context, caller domain.Address, rewardID uint64) (err error) {
	defer func() { l.observe("burn_reward", err) }()

	if !l.burn {
		return domain.ErrBurnDisabled
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.store.Reward(ctx, rewardID)
	if err != nil {
		return fmt.Errorf("burn reward %d: %w", rewardID, err)
	}
	if r.Owner != caller {
		return fmt.Errorf("burn reward %d: %w", rewardID, domain.ErrForbidden)
	}
	if err := l.store.BurnReward(ctx, rewardID); err != nil {
		return fmt.Errorf("burn reward %d: %w", rewardID, err)
	}

	id := r.ID
	l.emit(ctx, domain.Event{
		Type:      domain.EventRewardBurned,
		QuizID:    r.QuizID,
		Player:    caller,
		RewardID:  &id,
		Timestamp: l.timestamp(),
	})
	return nil
}

// HasCompleted reports whether a current completion exists for (player, quiz).
func (l *Ledger) HasCompleted(ctx context.Context, player domain.Address, quizID string) (bool, error) {
	_, ok, err := l.store.Current(ctx, player, quizID)
	return ok, err
}

// CurrentCompletion returns the retained record for (player, quiz).
func (l *Ledger) CurrentCompletion(ctx context.Context, player domain.Address, quizID string) (domain.Completion, bool, error) {
	return l.store.Current(ctx, player, quizID)
}

// GetLeaderboard returns every history entry for quizID in recording order,
// without dedup or score filtering. Unknown quizzes yield an empty slice.
func (l *Ledger) GetLeaderboard(ctx context.Context, quizID string) ([]domain.Completion, error) {
	return l.store.HistoryByQuiz(ctx, quizID)
}

// GetPlayerHistory returns every history entry recorded by player, across
// all quizzes, in recording order.
func (l *Ledger) GetPlayerHistory(ctx context.Context, player domain.Address) ([]domain.Completion, error) {
	return l.store.HistoryByPlayer(ctx, player)
}

func (l *Ledger) Quiz(ctx context.Context, quizID string) (domain.QuizRecord, error) {
	return l.store.Quiz(ctx, quizID)
}

func (l *Ledger) Reward(ctx context.Context, id uint64) (domain.Reward, error) {
	return l.store.Reward(ctx, id)
}

func (l *Ledger) RewardsOf(ctx context.Context, owner domain.Address) ([]domain.Reward, error) {
	return l.store.RewardsOf(ctx, owner)
}

// timestamp is ledger time: UTC with second resolution.
func (l *Ledger) timestamp() time.Time {
	return l.now().UTC().Truncate(time.Second)
}

func (l *Ledger) emit(ctx context.Context, ev domain.Event) {
	if l.sink == nil {
		return
	}
	if err := l.sink.Publish(ctx, ev); err != nil {
		l.log.Error().Err(err).Str("type", string(ev.Type)).Str("quizId", ev.QuizID).Msg("notification not delivered")
		if l.metrics != nil {
			l.metrics.EventsDropped.WithLabelValues(string(ev.Type)).Inc()
		}
	}
}

func (l *Ledger) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = domain.KindOf(err).String()
		l.log.Warn().Err(err).Str("op", op).Msg("ledger operation rejected")
	} else {
		l.log.Debug().Str("op", op).Msg("ledger operation applied")
	}
	if l.metrics != nil {
		l.metrics.LedgerOps.WithLabelValues(op, result).Inc()
	}
}
