// Package aggregate derives leaderboards and player dashboards from raw
// ledger history. Nothing here is stored; every view is recomputed from
// the completions passed in.
package aggregate

import (
	"sort"

	"quiz-ledger/internal/domain"
)

// IsPerfect reports whether c answered every question of a quiz with
// totalQuestions questions.
func IsPerfect(c domain.Completion, totalQuestions uint64) bool {
	return totalQuestions > 0 && c.Score == totalQuestions
}

// Rank keeps the completions of quizID (exact match) with a non-zero score
// and orders them by ascending timestamp. Equal timestamps keep their
// recording order.
func Rank(history []domain.Completion, quizID string) []domain.Completion {
	out := make([]domain.Completion, 0, len(history))
	for _, c := range history {
		if c.QuizID == quizID && c.Score > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Entry is one ranked row of a quiz leaderboard.
type Entry struct {
	Position int `json:"position"`
	domain.Completion
	Perfect bool `json:"perfect"`
}

// Board ranks history for quizID and flags perfect scores. Positions are 1-based.
func Board(history []domain.Completion, quizID string, totalQuestions uint64) []Entry {
	ranked := Rank(history, quizID)
	out := make([]Entry, len(ranked))
	for i, c := range ranked {
		out[i] = Entry{Position: i + 1, Completion: c, Perfect: IsPerfect(c, totalQuestions)}
	}
	return out
}

// BestPerPlayer keeps each player's highest-scoring completion of quizID,
// the earliest one when a score was repeated. Result is ordered by score
// descending, then timestamp ascending.
func BestPerPlayer(history []domain.Completion, quizID string) []domain.Completion {
	best := make(map[domain.Address]domain.Completion)
	order := make([]domain.Address, 0)
	for _, c := range history {
		if c.QuizID != quizID {
			continue
		}
		prev, ok := best[c.Player]
		if !ok {
			order = append(order, c.Player)
			best[c.Player] = c
			continue
		}
		if c.Score > prev.Score || (c.Score == prev.Score && c.Timestamp.Before(prev.Timestamp)) {
			best[c.Player] = c
		}
	}

	out := make([]domain.Completion, 0, len(order))
	for _, p := range order {
		out = append(out, best[p])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// DashboardItem summarizes one quiz in a player's dashboard.
type DashboardItem struct {
	QuizID string `json:"quizId"`
	// Attempts are most recent first.
	Attempts []domain.Completion `json:"attempts"`
	// Claimed mirrors HasCompleted; the ledger does not track claims separately.
	Claimed bool `json:"claimed"`
}

// Latest is the most recent attempt.
func (d DashboardItem) Latest() domain.Completion {
	return d.Attempts[0]
}

// Dashboard groups a player's history by quiz. Groups and the attempts in
// them are ordered most recent first. claimed is asked once per quiz.
func Dashboard(history []domain.Completion, claimed func(quizID string) (bool, error)) ([]DashboardItem, error) {
	groups := make(map[string]*DashboardItem)
	items := make([]*DashboardItem, 0)
	for _, c := range history {
		item, ok := groups[c.QuizID]
		if !ok {
			item = &DashboardItem{QuizID: c.QuizID}
			groups[c.QuizID] = item
			items = append(items, item)
		}
		item.Attempts = append(item.Attempts, c)
	}

	out := make([]DashboardItem, 0, len(items))
	for _, item := range items {
		sort.SliceStable(item.Attempts, func(i, j int) bool {
			a, b := item.Attempts[i], item.Attempts[j]
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Seq > b.Seq
		})
		if claimed != nil {
			ok, err := claimed(item.QuizID)
			if err != nil {
				return nil, err
			}
			item.Claimed = ok
		}
		out = append(out, *item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Latest(), out[j].Latest()
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Seq > b.Seq
	})
	return out, nil
}
