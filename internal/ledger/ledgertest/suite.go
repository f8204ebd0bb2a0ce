// Package ledgertest holds a behavioural test suite every ledger.Store
// backend must pass.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/ledger"
)

var (
	Alice = domain.MustParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	Bob   = domain.MustParseAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
	Carol = domain.MustParseAddress("0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB")
)

// T0 is a fixed ledger time used by the suite.
var T0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// RunStoreSuite runs the suite against fresh stores built by newStore.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store ledger.Store)
	}{
		{name: "quiz_round_trip", fn: testQuizRoundTrip},
		{name: "duplicate_quiz", fn: testDuplicateQuiz},
		{name: "append_overwrites_current", fn: testAppendOverwritesCurrent},
		{name: "history_exact_quiz_match", fn: testHistoryExactQuizMatch},
		{name: "history_by_player", fn: testHistoryByPlayer},
		{name: "reward_sequence", fn: testRewardSequence},
		{name: "burn_reward", fn: testBurnReward},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func testQuizRoundTrip(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, err := store.Quiz(ctx, "q1")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)

	want := domain.QuizRecord{ID: "q1", Title: "Intro", RewardMetadataRef: "ipfs://meta/q1", Creator: Alice, CreatedAt: T0}
	require.NoError(t, store.InsertQuiz(ctx, want))

	got, err := store.Quiz(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.RewardMetadataRef, got.RewardMetadataRef)
	assert.Equal(t, want.Creator, got.Creator)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func testDuplicateQuiz(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	require.NoError(t, store.InsertQuiz(ctx, domain.QuizRecord{ID: "q1", Title: "first", CreatedAt: T0}))
	err := store.InsertQuiz(ctx, domain.QuizRecord{ID: "q1", Title: "second", CreatedAt: T0})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := store.Quiz(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
}

func testAppendOverwritesCurrent(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, ok, err := store.Current(ctx, Alice, "q1")
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := store.AppendCompletion(ctx, completion(Alice, "q1", 1, 1, T0))
	require.NoError(t, err)
	second, err := store.AppendCompletion(ctx, completion(Alice, "q1", 3, 2, T0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)

	cur, ok, err := store.Current(ctx, Alice, "q1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), cur.Score)
	assert.Equal(t, uint64(2), cur.AttemptCount)
	assert.Equal(t, second.Seq, cur.Seq)

	hist, err := store.HistoryByQuiz(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, uint64(1), hist[0].Score)
	assert.Equal(t, uint64(3), hist[1].Score)
}

func testHistoryExactQuizMatch(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	for _, c := range []domain.Completion{
		completion(Alice, "q1", 1, 1, T0),
		completion(Bob, "q10", 2, 1, T0),
		completion(Bob, "q", 2, 1, T0),
		completion(Carol, "q1", 0, 1, T0),
	} {
		_, err := store.AppendCompletion(ctx, c)
		require.NoError(t, err)
	}

	hist, err := store.HistoryByQuiz(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, Alice, hist[0].Player)
	assert.Equal(t, Carol, hist[1].Player)

	empty, err := store.HistoryByQuiz(ctx, "missing-quiz")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testHistoryByPlayer(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	for _, c := range []domain.Completion{
		completion(Alice, "q1", 1, 1, T0),
		completion(Bob, "q1", 2, 1, T0),
		completion(Alice, "q2", 5, 1, T0.Add(time.Second)),
		completion(Alice, "q1", 3, 2, T0.Add(2*time.Second)),
	} {
		_, err := store.AppendCompletion(ctx, c)
		require.NoError(t, err)
	}

	hist, err := store.HistoryByPlayer(ctx, Alice)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, []string{"q1", "q2", "q1"}, []string{hist[0].QuizID, hist[1].QuizID, hist[2].QuizID})
	assert.Equal(t, []uint64{1, 5, 3}, []uint64{hist[0].Score, hist[1].Score, hist[2].Score})
	assert.True(t, hist[0].Seq < hist[1].Seq && hist[1].Seq < hist[2].Seq)
}

func testRewardSequence(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	r0, err := store.MintReward(ctx, domain.Reward{Owner: Alice, QuizID: "q1", MetadataRef: "ipfs://a", MintedAt: T0})
	require.NoError(t, err)
	r1, err := store.MintReward(ctx, domain.Reward{Owner: Alice, QuizID: "q1", MetadataRef: "ipfs://a", MintedAt: T0})
	require.NoError(t, err)
	r2, err := store.MintReward(ctx, domain.Reward{Owner: Bob, QuizID: "q2", MetadataRef: "ipfs://b", MintedAt: T0})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, []uint64{r0.ID, r1.ID, r2.ID})

	got, err := store.Reward(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Bob, got.Owner)
	assert.Equal(t, "ipfs://b", got.MetadataRef)

	owned, err := store.RewardsOf(ctx, Alice)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, uint64(0), owned[0].ID)
	assert.Equal(t, uint64(1), owned[1].ID)

	n, err := store.ClaimCount(ctx, Alice, "q1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
	n, err = store.ClaimCount(ctx, Alice, "q2")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = store.Reward(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrRewardNotFound)
}

func testBurnReward(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	r0, err := store.MintReward(ctx, domain.Reward{Owner: Alice, QuizID: "q1", MintedAt: T0})
	require.NoError(t, err)

	require.NoError(t, store.BurnReward(ctx, r0.ID))
	_, err = store.Reward(ctx, r0.ID)
	assert.ErrorIs(t, err, domain.ErrRewardNotFound)
	assert.ErrorIs(t, store.BurnReward(ctx, r0.ID), domain.ErrRewardNotFound)

	owned, err := store.RewardsOf(ctx, Alice)
	require.NoError(t, err)
	assert.Empty(t, owned)

	n, err := store.ClaimCount(ctx, Alice, "q1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	// burned ids are never reused
	r1, err := store.MintReward(ctx, domain.Reward{Owner: Alice, QuizID: "q1", MintedAt: T0})
	require.NoError(t, err)
	assert.Equal(t, r0.ID+1, r1.ID)
}

func completion(player domain.Address, quizID string, score, attempts uint64, ts time.Time) domain.Completion {
	return domain.Completion{Player: player, QuizID: quizID, Score: score, AttemptCount: attempts, Timestamp: ts}
}
