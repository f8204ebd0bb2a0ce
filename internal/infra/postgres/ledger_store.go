package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/ledger"
)

var _ ledger.Store = (*LedgerStore)(nil)

type quizRow struct {
	bun.BaseModel `bun:"table:ledger_quizzes"`

	ID                string    `bun:"id,pk"`
	Title             string    `bun:"title,notnull"`
	RewardMetadataRef string    `bun:"reward_metadata_ref,notnull"`
	Creator           string    `bun:"creator,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
}

type completionRow struct {
	bun.BaseModel `bun:"table:ledger_completions"`

	Seq          int64     `bun:"seq,pk"`
	Player       string    `bun:"player,notnull"`
	QuizID       string    `bun:"quiz_id,notnull"`
	Score        int64     `bun:"score,notnull"`
	AttemptCount int64     `bun:"attempt_count,notnull"`
	CompletedAt  time.Time `bun:"completed_at,notnull"`
}

type currentRow struct {
	bun.BaseModel `bun:"table:ledger_current_completions"`

	Player       string    `bun:"player,pk"`
	QuizID       string    `bun:"quiz_id,pk"`
	Seq          int64     `bun:"seq,notnull"`
	Score        int64     `bun:"score,notnull"`
	AttemptCount int64     `bun:"attempt_count,notnull"`
	CompletedAt  time.Time `bun:"completed_at,notnull"`
}

type rewardRow struct {
	bun.BaseModel `bun:"table:ledger_rewards"`

	ID          int64      `bun:"id,pk"`
	Owner       string     `bun:"owner,notnull"`
	QuizID      string     `bun:"quiz_id,notnull"`
	MetadataRef string     `bun:"metadata_ref,notnull"`
	MintedAt    time.Time  `bun:"minted_at,notnull"`
	BurnedAt    *time.Time `bun:"burned_at,nullzero"`
}

// LedgerStore keeps ledger state in Postgres through bun. Sequence numbers
// come from ledger_counters inside the same transaction as the row they
// number, so a rolled back write never consumes one.
type LedgerStore struct {
	db *bun.DB
}

func NewLedgerStore(db *bun.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Quiz(ctx context.Context, quizID string) (domain.QuizRecord, error) {
	var row quizRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", quizID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizRecord{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizRecord{}, fmt.Errorf("select quiz: %w", err)
	}
	creator, err := domain.ParseAddress(row.Creator)
	if err != nil {
		return domain.QuizRecord{}, fmt.Errorf("quiz %q creator: %w", quizID, err)
	}
	return domain.QuizRecord{
		ID:                row.ID,
		Title:             row.Title,
		RewardMetadataRef: row.RewardMetadataRef,
		Creator:           creator,
		CreatedAt:         row.CreatedAt.UTC(),
	}, nil
}

func (s *LedgerStore) InsertQuiz(ctx context.Context, quiz domain.QuizRecord) error {
	row := quizRow{
		ID:                quiz.ID,
		Title:             quiz.Title,
		RewardMetadataRef: quiz.RewardMetadataRef,
		Creator:           quiz.Creator.Hex(),
		CreatedAt:         quiz.CreatedAt,
	}
	res, err := s.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (s *LedgerStore) Current(ctx context.Context, player domain.Address, quizID string) (domain.Completion, bool, error) {
	var row currentRow
	err := s.db.NewSelect().Model(&row).
		Where("player = ?", player.Hex()).
		Where("quiz_id = ?", quizID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Completion{}, false, nil
	}
	if err != nil {
		return domain.Completion{}, false, fmt.Errorf("select current completion: %w", err)
	}
	return domain.Completion{
		Seq:          uint64(row.Seq),
		Player:       player,
		QuizID:       row.QuizID,
		Score:        uint64(row.Score),
		AttemptCount: uint64(row.AttemptCount),
		Timestamp:    row.CompletedAt.UTC(),
	}, true, nil
}

func (s *LedgerStore) AppendCompletion(ctx context.Context, c domain.Completion) (domain.Completion, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		seq, err := nextValue(ctx, tx, "history")
		if err != nil {
			return err
		}
		c.Seq = seq

		hist := completionRow{
			Seq:          int64(seq),
			Player:       c.Player.Hex(),
			QuizID:       c.QuizID,
			Score:        int64(c.Score),
			AttemptCount: int64(c.AttemptCount),
			CompletedAt:  c.Timestamp,
		}
		if _, err := tx.NewInsert().Model(&hist).Exec(ctx); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}

		cur := currentRow{
			Player:       hist.Player,
			QuizID:       hist.QuizID,
			Seq:          hist.Seq,
			Score:        hist.Score,
			AttemptCount: hist.AttemptCount,
			CompletedAt:  hist.CompletedAt,
		}
		_, err = tx.NewInsert().Model(&cur).
			On("CONFLICT (player, quiz_id) DO UPDATE").
			Set("seq = EXCLUDED.seq").
			Set("score = EXCLUDED.score").
			Set("attempt_count = EXCLUDED.attempt_count").
			Set("completed_at = EXCLUDED.completed_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert current completion: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Completion{}, err
	}
	return c, nil
}

func (s *LedgerStore) HistoryByQuiz(ctx context.Context, quizID string) ([]domain.Completion, error) {
	var rows []completionRow
	err := s.db.NewSelect().Model(&rows).Where("quiz_id = ?", quizID).Order("seq ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select history by quiz: %w", err)
	}
	return completionsFromRows(rows)
}

func (s *LedgerStore) HistoryByPlayer(ctx context.Context, player domain.Address) ([]domain.Completion, error) {
	var rows []completionRow
	err := s.db.NewSelect().Model(&rows).Where("player = ?", player.Hex()).Order("seq ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select history by player: %w", err)
	}
	return completionsFromRows(rows)
}

func (s *LedgerStore) MintReward(ctx context.Context, r domain.Reward) (domain.Reward, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		id, err := nextValue(ctx, tx, "reward")
		if err != nil {
			return err
		}
		r.ID = id
		row := rewardRow{
			ID:          int64(id),
			Owner:       r.Owner.Hex(),
			QuizID:      r.QuizID,
			MetadataRef: r.MetadataRef,
			MintedAt:    r.MintedAt,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("insert reward: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Reward{}, err
	}
	return r, nil
}

func (s *LedgerStore) Reward(ctx context.Context, id uint64) (domain.Reward, error) {
	var row rewardRow
	err := s.db.NewSelect().Model(&row).
		Where("id = ?", int64(id)).
		Where("burned_at IS NULL").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reward{}, domain.ErrRewardNotFound
	}
	if err != nil {
		return domain.Reward{}, fmt.Errorf("select reward: %w", err)
	}
	return rewardFromRow(row)
}

func (s *LedgerStore) RewardsOf(ctx context.Context, owner domain.Address) ([]domain.Reward, error) {
	var rows []rewardRow
	err := s.db.NewSelect().Model(&rows).
		Where("owner = ?", owner.Hex()).
		Where("burned_at IS NULL").
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select rewards: %w", err)
	}
	out := make([]domain.Reward, 0, len(rows))
	for _, row := range rows {
		r, err := rewardFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ClaimCount includes burned rewards; burning does not reopen a claim.
func (s *LedgerStore) ClaimCount(ctx context.Context, player domain.Address, quizID string) (uint64, error) {
	n, err := s.db.NewSelect().Model((*rewardRow)(nil)).
		Where("owner = ?", player.Hex()).
		Where("quiz_id = ?", quizID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return uint64(n), nil
}

func (s *LedgerStore) BurnReward(ctx context.Context, id uint64) error {
	res, err := s.db.NewUpdate().Model((*rewardRow)(nil)).
		Set("burned_at = ?", time.Now().UTC()).
		Where("id = ?", int64(id)).
		Where("burned_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("burn reward: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("burn reward: %w", err)
	}
	if n == 0 {
		return domain.ErrRewardNotFound
	}
	return nil
}

// nextValue takes the next number from a named counter. The row lock is
// held until tx ends.
func nextValue(ctx context.Context, tx bun.Tx, name string) (uint64, error) {
	var v int64
	err := tx.QueryRowContext(ctx,
		`UPDATE ledger_counters SET value = value + 1 WHERE name = ? RETURNING value - 1`, name,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next %s value: %w", name, err)
	}
	return uint64(v), nil
}

func completionsFromRows(rows []completionRow) ([]domain.Completion, error) {
	out := make([]domain.Completion, 0, len(rows))
	for _, row := range rows {
		player, err := domain.ParseAddress(row.Player)
		if err != nil {
			return nil, fmt.Errorf("history %d player: %w", row.Seq, err)
		}
		out = append(out, domain.Completion{
			Seq:          uint64(row.Seq),
			Player:       player,
			QuizID:       row.QuizID,
			Score:        uint64(row.Score),
			AttemptCount: uint64(row.AttemptCount),
			Timestamp:    row.CompletedAt.UTC(),
		})
	}
	return out, nil
}

func rewardFromRow(row rewardRow) (domain.Reward, error) {
	owner, err := domain.ParseAddress(row.Owner)
	if err != nil {
		return domain.Reward{}, fmt.Errorf("reward %d owner: %w", row.ID, err)
	}
	return domain.Reward{
		ID:          uint64(row.ID),
		Owner:       owner,
		QuizID:      row.QuizID,
		MetadataRef: row.MetadataRef,
		MintedAt:    row.MintedAt.UTC(),
	}, nil
}
