package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quiz-ledger/internal/aggregate"
	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/ledger"
	"quiz-ledger/internal/metrics"
)

// SessionRepository abstracts how quiz sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	Save(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizService runs quiz sessions against the catalog and records their
// outcome on the ledger. It also owns the reward policy that sits in front
// of ClaimReward.
type QuizService struct {
	sessions       SessionRepository
	quizzes        QuizRepository
	ledger         *ledger.Ledger
	requirePerfect bool
	now            func() time.Time
	log            zerolog.Logger
	metrics        *metrics.Metrics

	// mu serializes session read-modify-write cycles within this process.
	mu sync.Mutex
}

type Option func(*QuizService)

// WithRequirePerfect gates Claim on a perfect current score.
func WithRequirePerfect(enabled bool) Option {
	return func(s *QuizService) { s.requirePerfect = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *QuizService) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *QuizService) { s.metrics = m }
}

func NewQuizService(sessions SessionRepository, quizzes QuizRepository, l *ledger.Ledger, opts ...Option) *QuizService {
	s := &QuizService{
		sessions:       sessions,
		quizzes:        quizzes,
		ledger:         l,
		requirePerfect: true,
		now:            time.Now,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateQuiz registers quizID on the ledger. Empty title or metadata are
// filled from the catalog when the catalog knows the quiz.
func (s *QuizService) CreateQuiz(ctx context.Context, caller domain.Address, quizID, title, rewardMetadataRef string) (domain.QuizRecord, error) {
	if title == "" || rewardMetadataRef == "" {
		quiz, err := s.quizzes.GetQuiz(ctx, quizID)
		switch {
		case err == nil:
			if title == "" {
				title = quiz.Title
			}
			if rewardMetadataRef == "" {
				rewardMetadataRef = quiz.RewardMetadataRef
			}
		case errors.Is(err, domain.ErrQuizNotFound):
		default:
			s.log.Warn().Err(err).Str("quizId", quizID).Msg("catalog unavailable, creating quiz without defaults")
		}
	}
	return s.ledger.CreateQuiz(ctx, caller, quizID, title, rewardMetadataRef)
}

// QuizView is a ledger record with its player-facing catalog content, when
// the catalog has it.
type QuizView struct {
	domain.QuizRecord
	Content *domain.Quiz `json:"content,omitempty"`
}

// Quiz returns the ledger record for quizID. Catalog content is attached
// with the answer key stripped; a catalog failure only omits it.
func (s *QuizService) Quiz(ctx context.Context, quizID string) (QuizView, error) {
	rec, err := s.ledger.Quiz(ctx, quizID)
	if err != nil {
		return QuizView{}, err
	}
	view := QuizView{QuizRecord: rec}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	switch {
	case err == nil:
		public := quiz.Public()
		view.Content = &public
	case !errors.Is(err, domain.ErrQuizNotFound):
		s.log.Warn().Err(err).Str("quizId", quizID).Msg("catalog unavailable, serving ledger record only")
	}
	return view, nil
}

// Start opens a session for player. The quiz must exist both in the catalog
// and on the ledger.
func (s *QuizService) Start(ctx context.Context, player domain.Address, quizID string) (domain.Session, domain.Quiz, error) {
	if _, err := s.ledger.Quiz(ctx, quizID); err != nil {
		return domain.Session{}, domain.Quiz{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Session{}, domain.Quiz{}, err
	}

	session := domain.Session{
		ID:        uuid.NewString(),
		Player:    player,
		QuizID:    quizID,
		Answers:   make(map[string]bool),
		StartedAt: s.now().UTC(),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return domain.Session{}, domain.Quiz{}, fmt.Errorf("start session: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	return session, quiz.Public(), nil
}

// Answer scores one question. Only the first answer to a question counts;
// repeats report the recorded result.
func (s *QuizService) Answer(ctx context.Context, player domain.Address, sessionID string, submission domain.AnswerSubmission) (domain.AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ownedSession(ctx, player, sessionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	correct, answered := session.Answers[submission.QuestionID]
	if !answered {
		correct, err = scoreSubmission(quiz, submission)
		if err != nil {
			return domain.AnswerResult{}, err
		}
		session.Answers[submission.QuestionID] = correct
		if err := s.sessions.Save(ctx, session); err != nil {
			return domain.AnswerResult{}, fmt.Errorf("save session: %w", err)
		}
	}

	return domain.AnswerResult{
		QuestionID: submission.QuestionID,
		Correct:    correct,
		Score:      session.Score(),
		Answered:   len(session.Answers),
		Total:      quiz.TotalQuestions(),
	}, nil
}

// Finish records the session on the ledger and closes it. The attempt
// number continues from the player's current completion.
func (s *QuizService) Finish(ctx context.Context, player domain.Address, sessionID string) (domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ownedSession(ctx, player, sessionID)
	if err != nil {
		return domain.Completion{}, err
	}

	attempt := uint64(1)
	prev, ok, err := s.ledger.CurrentCompletion(ctx, player, session.QuizID)
	if err != nil {
		return domain.Completion{}, err
	}
	if ok {
		attempt = prev.AttemptCount + 1
	}

	c, err := s.ledger.RecordCompletion(ctx, player, session.QuizID, session.Score(), attempt)
	if err != nil {
		return domain.Completion{}, err
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("unable to delete finished session")
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	return c, nil
}

// Abandon drops an unfinished session without touching the ledger. A
// session that already expired from the store still counts as closed.
func (s *QuizService) Abandon(ctx context.Context, player domain.Address, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedSession(ctx, player, sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) && s.metrics != nil {
			s.metrics.ActiveSessions.Dec()
		}
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("abandon session: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	return nil
}

// Claim mints a reward for the caller's current completion, subject to the
// perfect-score policy.
func (s *QuizService) Claim(ctx context.Context, player domain.Address, quizID string) (domain.Reward, error) {
	if s.requirePerfect {
		current, ok, err := s.ledger.CurrentCompletion(ctx, player, quizID)
		if err != nil {
			return domain.Reward{}, err
		}
		if !ok {
			return domain.Reward{}, fmt.Errorf("claim reward %q: %w", quizID, domain.ErrNotCompleted)
		}
		quiz, err := s.quizzes.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.Reward{}, fmt.Errorf("claim reward %q: %w", quizID, err)
		}
		if !aggregate.IsPerfect(current, quiz.TotalQuestions()) {
			return domain.Reward{}, fmt.Errorf("claim reward %q: score %d of %d: %w",
				quizID, current.Score, quiz.TotalQuestions(), domain.ErrNotPerfect)
		}
	}
	return s.ledger.ClaimReward(ctx, player, quizID)
}

// Leaderboard ranks the quiz history. When the catalog cannot be read the
// board is still served, without perfect flags.
func (s *QuizService) Leaderboard(ctx context.Context, quizID string) ([]aggregate.Entry, error) {
	history, err := s.ledger.GetLeaderboard(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return aggregate.Board(history, quizID, s.totalQuestions(ctx, quizID)), nil
}

// DashboardEntry is a dashboard row enriched with catalog data.
type DashboardEntry struct {
	aggregate.DashboardItem
	Title   string `json:"title,omitempty"`
	Perfect bool   `json:"perfect"`
}

// Dashboard summarizes every quiz player has attempted, most recent first.
func (s *QuizService) Dashboard(ctx context.Context, player domain.Address) ([]DashboardEntry, error) {
	history, err := s.ledger.GetPlayerHistory(ctx, player)
	if err != nil {
		return nil, err
	}
	items, err := aggregate.Dashboard(history, func(quizID string) (bool, error) {
		return s.ledger.HasCompleted(ctx, player, quizID)
	})
	if err != nil {
		return nil, err
	}

	out := make([]DashboardEntry, 0, len(items))
	for _, item := range items {
		entry := DashboardEntry{DashboardItem: item}
		if rec, err := s.ledger.Quiz(ctx, item.QuizID); err == nil {
			entry.Title = rec.Title
		}
		entry.Perfect = aggregate.IsPerfect(item.Latest(), s.totalQuestions(ctx, item.QuizID))
		out = append(out, entry)
	}
	return out, nil
}

func (s *QuizService) totalQuestions(ctx context.Context, quizID string) uint64 {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		if !errors.Is(err, domain.ErrQuizNotFound) {
			s.log.Warn().Err(err).Str("quizId", quizID).Msg("catalog unavailable, perfect flags dropped")
		}
		return 0
	}
	return quiz.TotalQuestions()
}

func (s *QuizService) ownedSession(ctx context.Context, player domain.Address, sessionID string) (domain.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Player != player {
		return domain.Session{}, fmt.Errorf("session %s: %w", sessionID, domain.ErrForbidden)
	}
	if session.Answers == nil {
		session.Answers = make(map[string]bool)
	}
	return session, nil
}

// scoreSubmission validates the answer against quiz content.
func scoreSubmission(quiz domain.Quiz, submission domain.AnswerSubmission) (bool, error) {
	var question *domain.Question
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == submission.QuestionID {
			question = &quiz.Questions[i]
			break
		}
	}
	if question == nil {
		return false, domain.ErrQuestionNotFound
	}

	for _, opt := range question.Options {
		if opt.ID == submission.OptionID {
			return opt.Correct, nil
		}
	}
	return false, domain.ErrOptionNotFound
}
