package domain

import "time"

// QuizRecord is the ledger's copy of a quiz. It is written once and never updated.
type QuizRecord struct {
	ID                string    `json:"quizId"`
	Title             string    `json:"title"`
	RewardMetadataRef string    `json:"rewardMetadataRef"`
	Creator           Address   `json:"creator"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Completion is one recorded attempt of a player at a quiz.
// Seq is the position in the append-only history.
type Completion struct {
	Seq          uint64    `json:"seq"`
	Player       Address   `json:"player"`
	QuizID       string    `json:"quizId"`
	Score        uint64    `json:"score"`
	AttemptCount uint64    `json:"attemptCount"`
	Timestamp    time.Time `json:"timestamp"`
}

// Reward is a uniquely numbered token minted against a completion.
type Reward struct {
	ID          uint64    `json:"id"`
	Owner       Address   `json:"owner"`
	QuizID      string    `json:"quizId"`
	MetadataRef string    `json:"metadataRef"`
	MintedAt    time.Time `json:"mintedAt"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct,omitempty" yaml:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Options []Option `json:"options" yaml:"options"`
}

// Quiz is catalog content: the questions, answer key and reward metadata.
// The ledger keeps its own, possibly divergent, copy of title and metadata.
type Quiz struct {
	ID                string     `json:"id" yaml:"id"`
	Title             string     `json:"title" yaml:"title"`
	Difficulty        string     `json:"difficulty,omitempty" yaml:"difficulty"`
	RewardMetadataRef string     `json:"rewardMetadataRef" yaml:"reward_metadata_ref"`
	Questions         []Question `json:"questions" yaml:"questions"`
}

// TotalQuestions is the perfect-score threshold for the quiz.
func (q Quiz) TotalQuestions() uint64 {
	return uint64(len(q.Questions))
}

// Public strips the answer key so the quiz can be sent to players.
func (q Quiz) Public() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		opts := make([]Option, len(question.Options))
		for j, opt := range question.Options {
			opts[j] = Option{ID: opt.ID, Text: opt.Text}
		}
		out.Questions[i] = Question{ID: question.ID, Prompt: question.Prompt, Options: opts}
	}
	return out
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionID string
	OptionID   string
}

// AnswerResult summarizes the outcome of a submission within a session.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Score      uint64 `json:"score"`
	Answered   int    `json:"answered"`
	Total      uint64 `json:"total"`
}

// Session is a player's in-progress run through a catalog quiz.
// Answers maps question id to the correctness of the first answer given.
type Session struct {
	ID        string          `json:"id"`
	Player    Address         `json:"player"`
	QuizID    string          `json:"quizId"`
	Answers   map[string]bool `json:"answers"`
	StartedAt time.Time       `json:"startedAt"`
}

// Score counts correct answers.
func (s Session) Score() uint64 {
	var n uint64
	for _, correct := range s.Answers {
		if correct {
			n++
		}
	}
	return n
}
