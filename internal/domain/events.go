package domain

import "time"

// EventType names a ledger notification.
type EventType string

const (
	EventQuizCreated   EventType = "QuizCreated"
	EventQuizCompleted EventType = "QuizCompleted"
	EventRewardClaimed EventType = "RewardClaimed"
	EventRewardBurned  EventType = "RewardBurned"
)

// Event is emitted once a ledger write has committed. Only the fields
// relevant to Type are populated.
type Event struct {
	Type              EventType `json:"type"`
	QuizID            string    `json:"quizId"`
	Player            Address   `json:"player"`
	Title             string    `json:"title,omitempty"`
	RewardMetadataRef string    `json:"rewardMetadataRef,omitempty"`
	Score             uint64    `json:"score"`
	AttemptCount      uint64    `json:"attemptCount,omitempty"`
	RewardID          *uint64   `json:"rewardId,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
