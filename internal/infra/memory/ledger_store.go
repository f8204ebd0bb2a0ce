package memory

import (
	"context"
	"sync"

	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/ledger"
)

var _ ledger.Store = (*LedgerStore)(nil)

type completionKey struct {
	player domain.Address
	quizID string
}

// LedgerStore keeps ledger state in process memory. History is an
// append-only slice with position indexes per quiz and per player.
type LedgerStore struct {
	mu       sync.RWMutex
	quizzes  map[string]domain.QuizRecord
	current  map[completionKey]domain.Completion
	history  []domain.Completion
	byQuiz   map[string][]int
	byPlayer map[domain.Address][]int

	rewards    map[uint64]domain.Reward
	byOwner    map[domain.Address][]uint64
	claims     map[completionKey]uint64
	nextReward uint64
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		quizzes:  make(map[string]domain.QuizRecord),
		current:  make(map[completionKey]domain.Completion),
		byQuiz:   make(map[string][]int),
		byPlayer: make(map[domain.Address][]int),
		rewards:  make(map[uint64]domain.Reward),
		byOwner:  make(map[domain.Address][]uint64),
		claims:   make(map[completionKey]uint64),
	}
}

func (s *LedgerStore) Quiz(_ context.Context, quizID string) (domain.QuizRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quizzes[quizID]
	if !ok {
		return domain.QuizRecord{}, domain.ErrQuizNotFound
	}
	return q, nil
}

func (s *LedgerStore) InsertQuiz(_ context.Context, quiz domain.QuizRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quiz.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *LedgerStore) Current(_ context.Context, player domain.Address, quizID string) (domain.Completion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.current[completionKey{player, quizID}]
	return c, ok, nil
}

func (s *LedgerStore) AppendCompletion(_ context.Context, c domain.Completion) (domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Seq = uint64(len(s.history))
	pos := len(s.history)
	s.history = append(s.history, c)
	s.byQuiz[c.QuizID] = append(s.byQuiz[c.QuizID], pos)
	s.byPlayer[c.Player] = append(s.byPlayer[c.Player], pos)
	s.current[completionKey{c.Player, c.QuizID}] = c
	return c, nil
}

func (s *LedgerStore) HistoryByQuiz(_ context.Context, quizID string) ([]domain.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byQuiz[quizID]), nil
}

func (s *LedgerStore) HistoryByPlayer(_ context.Context, player domain.Address) ([]domain.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byPlayer[player]), nil
}

func (s *LedgerStore) collect(positions []int) []domain.Completion {
	out := make([]domain.Completion, 0, len(positions))
	for _, pos := range positions {
		out = append(out, s.history[pos])
	}
	return out
}

func (s *LedgerStore) MintReward(_ context.Context, r domain.Reward) (domain.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.nextReward
	s.nextReward++
	s.rewards[r.ID] = r
	s.byOwner[r.Owner] = append(s.byOwner[r.Owner], r.ID)
	s.claims[completionKey{r.Owner, r.QuizID}]++
	return r, nil
}

func (s *LedgerStore) Reward(_ context.Context, id uint64) (domain.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rewards[id]
	if !ok {
		return domain.Reward{}, domain.ErrRewardNotFound
	}
	return r, nil
}

func (s *LedgerStore) RewardsOf(_ context.Context, owner domain.Address) ([]domain.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Reward, 0, len(s.byOwner[owner]))
	for _, id := range s.byOwner[owner] {
		if r, ok := s.rewards[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *LedgerStore) ClaimCount(_ context.Context, player domain.Address, quizID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims[completionKey{player, quizID}], nil
}

func (s *LedgerStore) BurnReward(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rewards[id]; !ok {
		return domain.ErrRewardNotFound
	}
	delete(s.rewards, id)
	return nil
}
