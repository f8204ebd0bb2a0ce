package pebble

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/ledger"
	"quiz-ledger/internal/log"
)

var _ ledger.Store = (*LedgerStore)(nil)

var ErrStoreClosed = errors.New("ledger store is closed")

// key prefixes
const (
	prefixQuiz        byte = 'q'
	prefixCurrent     byte = 'c'
	prefixHistory     byte = 'h'
	prefixQuizIndex   byte = 'Q'
	prefixPlayerIndex byte = 'P'
	prefixReward      byte = 'r'
	prefixOwnerIndex  byte = 'O'
	prefixClaims      byte = 'C'
	prefixCounter     byte = 'm'
)

var (
	counterHistory = []byte{prefixCounter, 'h'}
	counterReward  = []byte{prefixCounter, 'r'}
)

// LedgerStore persists ledger state in a pebble database. Every mutation is
// a single synced batch; history keys are big-endian sequence numbers so
// iteration order is append order.
type LedgerStore struct {
	db *pebble.DB
	// mu guards counter read-modify-write cycles.
	mu     sync.Mutex
	closed bool
}

// Open opens (or creates) a store at path.
func Open(path string) (*LedgerStore, error) {
	cache := pebble.NewCache(64 * 1024 * 1024) // 64MB
	defer cache.Unref()
	return open(path, &pebble.Options{
		Cache:        cache,
		MemTableSize: 32 * 1024 * 1024, // 32MB
	})
}

// OpenInMemory backs the store with an in-memory filesystem.
func OpenInMemory() (*LedgerStore, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(path string, opts *pebble.Options) (*LedgerStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &LedgerStore{db: db}, nil
}

func (s *LedgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *LedgerStore) Quiz(_ context.Context, quizID string) (domain.QuizRecord, error) {
	var q domain.QuizRecord
	ok, err := getJSON(s.db, quizKey(quizID), &q)
	if err != nil {
		return domain.QuizRecord{}, err
	}
	if !ok {
		return domain.QuizRecord{}, domain.ErrQuizNotFound
	}
	return q, nil
}

func (s *LedgerStore) InsertQuiz(_ context.Context, quiz domain.QuizRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	_, ok, err := get(s.db, quizKey(quiz.ID))
	if err != nil {
		return err
	}
	if ok {
		return domain.ErrAlreadyExists
	}
	return s.commit(func(b *pebble.Batch) error {
		return putJSON(b, quizKey(quiz.ID), quiz)
	})
}

func (s *LedgerStore) Current(_ context.Context, player domain.Address, quizID string) (domain.Completion, bool, error) {
	var c domain.Completion
	ok, err := getJSON(s.db, currentKey(player, quizID), &c)
	return c, ok, err
}

func (s *LedgerStore) AppendCompletion(_ context.Context, c domain.Completion) (domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Completion{}, ErrStoreClosed
	}

	seq, err := counter(s.db, counterHistory)
	if err != nil {
		return domain.Completion{}, err
	}
	c.Seq = seq

	err = s.commit(func(b *pebble.Batch) error {
		if err := putJSON(b, historyKey(seq), c); err != nil {
			return err
		}
		if err := putJSON(b, currentKey(c.Player, c.QuizID), c); err != nil {
			return err
		}
		if err := b.Set(quizIndexKey(c.QuizID, seq), nil, nil); err != nil {
			return err
		}
		if err := b.Set(playerIndexKey(c.Player, seq), nil, nil); err != nil {
			return err
		}
		return b.Set(counterHistory, be64(seq+1), nil)
	})
	if err != nil {
		return domain.Completion{}, err
	}
	return c, nil
}

func (s *LedgerStore) HistoryByQuiz(_ context.Context, quizID string) ([]domain.Completion, error) {
	return s.historyByIndex(quizIndexPrefix(quizID))
}

func (s *LedgerStore) HistoryByPlayer(_ context.Context, player domain.Address) ([]domain.Completion, error) {
	return s.historyByIndex(playerIndexPrefix(player))
}

func (s *LedgerStore) historyByIndex(prefix []byte) ([]domain.Completion, error) {
	snap := s.db.NewSnapshot()
	defer snap.Close()

	seqs, err := scanSeqs(snap, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Completion, 0, len(seqs))
	for _, seq := range seqs {
		var c domain.Completion
		ok, err := getJSON(snap, historyKey(seq), &c)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("history entry %d missing for index", seq)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *LedgerStore) MintReward(_ context.Context, r domain.Reward) (domain.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Reward{}, ErrStoreClosed
	}

	id, err := counter(s.db, counterReward)
	if err != nil {
		return domain.Reward{}, err
	}
	claims, err := counter(s.db, claimKey(r.Owner, r.QuizID))
	if err != nil {
		return domain.Reward{}, err
	}
	r.ID = id

	err = s.commit(func(b *pebble.Batch) error {
		if err := putJSON(b, rewardKey(id), r); err != nil {
			return err
		}
		if err := b.Set(ownerIndexKey(r.Owner, id), nil, nil); err != nil {
			return err
		}
		if err := b.Set(claimKey(r.Owner, r.QuizID), be64(claims+1), nil); err != nil {
			return err
		}
		return b.Set(counterReward, be64(id+1), nil)
	})
	if err != nil {
		return domain.Reward{}, err
	}
	return r, nil
}

func (s *LedgerStore) Reward(_ context.Context, id uint64) (domain.Reward, error) {
	return reward(s.db, id)
}

// RewardsOf reads the owner index and the rewards it points at from one
// snapshot, so a concurrent burn cannot surface as a missing reward.
func (s *LedgerStore) RewardsOf(_ context.Context, owner domain.Address) ([]domain.Reward, error) {
	snap := s.db.NewSnapshot()
	defer snap.Close()

	ids, err := scanSeqs(snap, ownerIndexPrefix(owner))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Reward, 0, len(ids))
	for _, id := range ids {
		r, err := reward(snap, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *LedgerStore) ClaimCount(_ context.Context, player domain.Address, quizID string) (uint64, error) {
	return counter(s.db, claimKey(player, quizID))
}

func (s *LedgerStore) BurnReward(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	r, err := s.Reward(ctx, id)
	if err != nil {
		return err
	}
	return s.commit(func(b *pebble.Batch) error {
		if err := b.Delete(rewardKey(id), nil); err != nil {
			return err
		}
		return b.Delete(ownerIndexKey(r.Owner, id), nil)
	})
}

// commit applies fn to a fresh batch and commits it synchronously.
func (s *LedgerStore) commit(fn func(b *pebble.Batch) error) error {
	b := s.db.NewBatch()
	defer func() {
		if err := b.Close(); err != nil {
			log.Infra.Error().Err(err).Msg("error closing batch")
		}
	}()
	if err := fn(b); err != nil {
		return fmt.Errorf("unable to stage batch: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("unable to commit batch: %w", err)
	}
	return nil
}

func reward(r pebble.Reader, id uint64) (domain.Reward, error) {
	var rw domain.Reward
	ok, err := getJSON(r, rewardKey(id), &rw)
	if err != nil {
		return domain.Reward{}, err
	}
	if !ok {
		return domain.Reward{}, domain.ErrRewardNotFound
	}
	return rw, nil
}

func get(r pebble.Reader, key []byte) ([]byte, bool, error) {
	val, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	result := make([]byte, len(val))
	copy(result, val)
	return result, true, nil
}

func getJSON(r pebble.Reader, key []byte, v any) (bool, error) {
	raw, ok, err := get(r, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("unable to decode %q: %w", key, err)
	}
	return true, nil
}

func counter(r pebble.Reader, key []byte) (uint64, error) {
	raw, ok, err := get(r, key)
	if err != nil || !ok {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt counter %q", key)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// scanSeqs returns the trailing big-endian sequence of every key under prefix.
func scanSeqs(r pebble.Reader, prefix []byte) ([]uint64, error) {
	iter, err := r.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create iterator: %w", err)
	}
	defer iter.Close()

	var seqs []uint64
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != len(prefix)+8 {
			continue
		}
		seqs = append(seqs, binary.BigEndian.Uint64(key[len(prefix):]))
	}
	return seqs, iter.Error()
}

func putJSON(b *pebble.Batch, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("unable to encode %q: %w", key, err)
	}
	return b.Set(key, raw, nil)
}
