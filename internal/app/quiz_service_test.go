package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"quiz-ledger/internal/app"
	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/infra/memory"
	"quiz-ledger/internal/ledger"
	"quiz-ledger/internal/ledger/ledgertest"
	"quiz-ledger/internal/metrics"
)

var (
	alice = ledgertest.Alice
	bob   = ledgertest.Bob
)

func TestStartHidesAnswerKey(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	session, quiz, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if session.ID == "" || session.Player != alice || session.QuizID != "quiz-1" {
		t.Fatalf("unexpected session: %+v", session)
	}
	for _, q := range quiz.Questions {
		for _, opt := range q.Options {
			if opt.Correct {
				t.Fatalf("answer key leaked for %s/%s", q.ID, opt.ID)
			}
		}
	}
}

func TestStartRequiresLedgerQuiz(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	// present in the catalog, never created on the ledger
	_, _, err := service.Start(ctx, alice, "quiz-2")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestAnswerAndFinishRecordsCompletion(t *testing.T) {
	ctx := context.Background()
	service, l := newTestService(t)

	session, _, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	res, err := service.Answer(ctx, alice, session.ID, domain.AnswerSubmission{QuestionID: "q1", OptionID: "o2"})
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if !res.Correct || res.Score != 1 || res.Answered != 1 || res.Total != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// only the first answer to a question counts
	res, err = service.Answer(ctx, alice, session.ID, domain.AnswerSubmission{QuestionID: "q1", OptionID: "o1"})
	if err != nil {
		t.Fatalf("repeat answer failed: %v", err)
	}
	if !res.Correct || res.Score != 1 {
		t.Fatalf("expected first answer to stick, got %+v", res)
	}

	if _, err := service.Answer(ctx, alice, session.ID, domain.AnswerSubmission{QuestionID: "q2", OptionID: "o3"}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}

	c, err := service.Finish(ctx, alice, session.ID)
	if err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if c.Score != 1 || c.AttemptCount != 1 {
		t.Fatalf("unexpected completion: %+v", c)
	}

	if _, err := service.Finish(ctx, alice, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected finished session to be gone, got %v", err)
	}

	ok, err := l.HasCompleted(ctx, alice, "quiz-1")
	if err != nil || !ok {
		t.Fatalf("expected completion on ledger, ok=%v err=%v", ok, err)
	}
}

func TestFinishIncrementsAttempt(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	for want := uint64(1); want <= 3; want++ {
		session, _, err := service.Start(ctx, alice, "quiz-1")
		if err != nil {
			t.Fatalf("start failed: %v", err)
		}
		c, err := service.Finish(ctx, alice, session.ID)
		if err != nil {
			t.Fatalf("finish failed: %v", err)
		}
		if c.AttemptCount != want {
			t.Fatalf("expected attempt %d, got %d", want, c.AttemptCount)
		}
	}
}

func TestSessionBelongsToPlayer(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	session, _, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_, err = service.Answer(ctx, bob, session.ID, domain.AnswerSubmission{QuestionID: "q1", OptionID: "o2"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := service.Finish(ctx, bob, session.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAnswerValidatesQuestionAndOption(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	if _, err := service.Answer(ctx, alice, "unknown", domain.AnswerSubmission{QuestionID: "q1", OptionID: "o1"}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session error, got %v", err)
	}

	session, _, _ := service.Start(ctx, alice, "quiz-1")
	if _, err := service.Answer(ctx, alice, session.ID, domain.AnswerSubmission{QuestionID: "nope", OptionID: "o1"}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question error, got %v", err)
	}
	if _, err := service.Answer(ctx, alice, session.ID, domain.AnswerSubmission{QuestionID: "q1", OptionID: "nope"}); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option error, got %v", err)
	}
}

func TestClaimRequiresPerfectScore(t *testing.T) {
	ctx := context.Background()
	service, l := newTestService(t)

	if _, err := service.Claim(ctx, alice, "quiz-1"); !errors.Is(err, domain.ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}

	if _, err := l.RecordCompletion(ctx, alice, "quiz-1", 1, 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := service.Claim(ctx, alice, "quiz-1"); !errors.Is(err, domain.ErrNotPerfect) {
		t.Fatalf("expected ErrNotPerfect, got %v", err)
	}

	if _, err := l.RecordCompletion(ctx, alice, "quiz-1", 2, 2); err != nil {
		t.Fatalf("record: %v", err)
	}
	r, err := service.Claim(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if r.ID != 0 || r.Owner != alice || r.MetadataRef != "ipfs://meta/quiz-1" {
		t.Fatalf("unexpected reward: %+v", r)
	}
}

func TestClaimWithoutPerfectGate(t *testing.T) {
	ctx := context.Background()
	service, l := newTestService(t, app.WithRequirePerfect(false))

	if _, err := l.RecordCompletion(ctx, alice, "quiz-1", 0, 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := service.Claim(ctx, alice, "quiz-1"); err != nil {
		t.Fatalf("expected claim without perfect score, got %v", err)
	}
}

func TestLeaderboardFlagsPerfect(t *testing.T) {
	ctx := context.Background()
	service, l := newTestService(t)

	for _, rec := range []struct {
		player domain.Address
		score  uint64
	}{{alice, 2}, {bob, 0}, {bob, 1}} {
		if _, err := l.RecordCompletion(ctx, rec.player, "quiz-1", rec.score, 1); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	board, err := service.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected zero score filtered, got %+v", board)
	}
	if board[0].Position != 1 || board[0].Player != alice || !board[0].Perfect {
		t.Fatalf("unexpected first entry: %+v", board[0])
	}
	if board[1].Position != 2 || board[1].Player != bob || board[1].Perfect {
		t.Fatalf("unexpected second entry: %+v", board[1])
	}
}

func TestLeaderboardSurvivesCatalogOutage(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(memory.NewLedgerStore())
	if _, err := l.CreateQuiz(ctx, alice, "quiz-1", "Arithmetic", "ipfs://x"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.RecordCompletion(ctx, alice, "quiz-1", 2, 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	service := app.NewQuizService(memory.NewSessionStore(), failingCatalog{}, l)

	board, err := service.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].Perfect {
		t.Fatalf("expected one entry without perfect flag, got %+v", board)
	}
}

func TestDashboardGroupsByQuiz(t *testing.T) {
	ctx := context.Background()
	service, l := newTestService(t)
	if _, err := service.CreateQuiz(ctx, alice, "quiz-2", "", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, rec := range []struct {
		quiz  string
		score uint64
	}{{"quiz-1", 1}, {"quiz-2", 1}, {"quiz-1", 2}} {
		if _, err := l.RecordCompletion(ctx, alice, rec.quiz, rec.score, 1); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	dash, err := service.Dashboard(ctx, alice)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(dash) != 2 {
		t.Fatalf("expected two quizzes, got %d", len(dash))
	}
	if dash[0].QuizID != "quiz-1" || len(dash[0].Attempts) != 2 || !dash[0].Perfect || !dash[0].Claimed {
		t.Fatalf("unexpected first item: %+v", dash[0])
	}
	if dash[0].Title != "Arithmetic" {
		t.Fatalf("expected ledger title, got %q", dash[0].Title)
	}
	if dash[1].QuizID != "quiz-2" || dash[1].Title != "Capitals" || !dash[1].Perfect {
		t.Fatalf("unexpected second item: %+v", dash[1])
	}
}

func TestCreateQuizFillsFromCatalog(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	rec, err := service.CreateQuiz(ctx, alice, "quiz-2", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Title != "Capitals" || rec.RewardMetadataRef != "ipfs://meta/quiz-2" {
		t.Fatalf("expected catalog defaults, got %+v", rec)
	}

	rec, err = service.CreateQuiz(ctx, alice, "ledger-only", "Custom", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Title != "Custom" || rec.RewardMetadataRef != "" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	service, _ := newTestService(t, app.WithMetrics(m))

	session, _, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Fatalf("expected 1 active session, got %v", got)
	}
	if _, err := service.Finish(ctx, alice, session.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Fatalf("expected 0 active sessions, got %v", got)
	}
}

func TestCatalogVerifier(t *testing.T) {
	ctx := context.Background()
	v := app.NewCatalogVerifier(catalog())

	if err := v.VerifyCompletion(ctx, alice, domain.QuizRecord{ID: "quiz-1"}, 2, 1); err != nil {
		t.Fatalf("expected perfect score to pass, got %v", err)
	}
	if err := v.VerifyCompletion(ctx, alice, domain.QuizRecord{ID: "quiz-1"}, 3, 1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := v.VerifyCompletion(ctx, alice, domain.QuizRecord{ID: "ledger-only"}, 99, 1); err != nil {
		t.Fatalf("expected unknown catalog quiz to pass, got %v", err)
	}
}

type failingCatalog struct{}

func (failingCatalog) GetQuiz(context.Context, string) (domain.Quiz, error) {
	return domain.Quiz{}, errors.New("catalog down")
}

func catalog() *memory.QuizRepository {
	return memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID:                "quiz-1",
			Title:             "Arithmetic",
			RewardMetadataRef: "ipfs://meta/quiz-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "Select the right option",
					Options: []domain.Option{
						{ID: "o1", Text: "Wrong", Correct: false},
						{ID: "o2", Text: "Right", Correct: true},
					},
				},
				{
					ID:     "q2",
					Prompt: "2 + 2?",
					Options: []domain.Option{
						{ID: "o3", Text: "3", Correct: false},
						{ID: "o4", Text: "4", Correct: true},
					},
				},
			},
		},
		"quiz-2": {
			ID:                "quiz-2",
			Title:             "Capitals",
			RewardMetadataRef: "ipfs://meta/quiz-2",
			Questions: []domain.Question{
				{
					ID:     "c1",
					Prompt: "Capital of France?",
					Options: []domain.Option{
						{ID: "paris", Text: "Paris", Correct: true},
						{ID: "lyon", Text: "Lyon"},
					},
				},
			},
		},
	}), 5*time.Minute)
}

func newTestService(t *testing.T, opts ...app.Option) (*app.QuizService, *ledger.Ledger) {
	t.Helper()
	quizzes := catalog()
	l := ledger.New(memory.NewLedgerStore(), ledger.WithVerifier(app.NewCatalogVerifier(quizzes)))
	if _, err := l.CreateQuiz(context.Background(), alice, "quiz-1", "Arithmetic", "ipfs://meta/quiz-1"); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return app.NewQuizService(memory.NewSessionStore(), quizzes, l, opts...), l
}

func TestQuizViewAttachesPublicContent(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	view, err := service.Quiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("quiz: %v", err)
	}
	if view.ID != "quiz-1" || view.Creator != alice {
		t.Fatalf("unexpected record: %+v", view.QuizRecord)
	}
	if view.Content == nil || view.Content.TotalQuestions() != 2 {
		t.Fatalf("expected catalog content, got %+v", view.Content)
	}
	if view.Content.Questions[0].Options[1].Correct {
		t.Fatalf("answer key leaked")
	}

	if _, err := service.CreateQuiz(ctx, alice, "ledger-only", "Custom", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	view, err = service.Quiz(ctx, "ledger-only")
	if err != nil {
		t.Fatalf("quiz: %v", err)
	}
	if view.Content != nil {
		t.Fatalf("expected no content for a ledger-only quiz")
	}

	if _, err := service.Quiz(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestAbandonDropsSession(t *testing.T) {
	ctx := context.Background()
	service, l := newTestService(t)

	session, _, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.Abandon(ctx, bob, session.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := service.Abandon(ctx, alice, session.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, err := service.Finish(ctx, alice, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if ok, _ := l.HasCompleted(ctx, alice, "quiz-1"); ok {
		t.Fatalf("abandoned session must not record a completion")
	}
}

func TestActiveSessionsGaugeCountsExpiredSessionAsClosed(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	sessions := memory.NewSessionStore()
	l := ledger.New(memory.NewLedgerStore())
	if _, err := l.CreateQuiz(ctx, alice, "quiz-1", "Arithmetic", "ipfs://meta/quiz-1"); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	service := app.NewQuizService(sessions, catalog(), l, app.WithMetrics(m))

	session, _, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// the store drops the session as a TTL expiry would
	if err := sessions.Delete(ctx, session.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := service.Finish(ctx, alice, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Fatalf("failed finish must not close the session, got %v", got)
	}
	if err := service.Abandon(ctx, alice, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Fatalf("expected 0 active sessions, got %v", got)
	}
}
