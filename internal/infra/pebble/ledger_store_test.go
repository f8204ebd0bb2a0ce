package pebble

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/ledger"
	"quiz-ledger/internal/ledger/ledgertest"
)

func TestLedgerStoreSuite(t *testing.T) {
	ledgertest.RunStoreSuite(t, func(t *testing.T) ledger.Store {
		store, err := OpenInMemory()
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestLedgerStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger")

	store, err := Open(path)
	require.NoError(t, err)
	l := ledger.New(store)
	_, err = l.CreateQuiz(ctx, ledgertest.Alice, "q1", "Intro", "ipfs://m")
	require.NoError(t, err)
	_, err = l.RecordCompletion(ctx, ledgertest.Alice, "q1", 3, 1)
	require.NoError(t, err)
	_, err = l.ClaimReward(ctx, ledgertest.Alice, "q1")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	l = ledger.New(reopened)

	done, err := l.HasCompleted(ctx, ledgertest.Alice, "q1")
	require.NoError(t, err)
	assert.True(t, done)

	// sequences continue where they left off
	c, err := l.RecordCompletion(ctx, ledgertest.Alice, "q1", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.Seq)
	r, err := l.ClaimReward(ctx, ledgertest.Alice, "q1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.ID)
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err = store.InsertQuiz(context.Background(), domain.QuizRecord{ID: "q1"})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestQuizIndexPrefixIsExact(t *testing.T) {
	a := quizIndexKey("q1", 7)
	b := quizIndexKey("q10", 7)
	assert.NotEqual(t, quizIndexPrefix("q1"), b[:len(quizIndexPrefix("q1"))])
	assert.Equal(t, quizIndexPrefix("q1"), a[:len(a)-8])
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte{'b'}, prefixUpperBound([]byte{'a'}))
	assert.Equal(t, []byte{'a', 0x01}, prefixUpperBound([]byte{'a', 0x00, 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
}

func TestRewardsOfDuringConcurrentBurns(t *testing.T) {
	ctx := context.Background()
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	const n = 50
	for i := 0; i < n; i++ {
		_, err := store.MintReward(ctx, domain.Reward{Owner: ledgertest.Alice, QuizID: "q1", MintedAt: ledgertest.T0})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for id := uint64(0); id < n; id++ {
			assert.NoError(t, store.BurnReward(ctx, id))
		}
	}()

	for {
		owned, err := store.RewardsOf(ctx, ledgertest.Alice)
		require.NoError(t, err)
		if len(owned) == 0 {
			break
		}
		for i := 1; i < len(owned); i++ {
			assert.Less(t, owned[i-1].ID, owned[i].ID)
		}
	}
	wg.Wait()
}
