package http

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quiz-ledger/internal/app"
	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/events"
	"quiz-ledger/internal/ledger"
	"quiz-ledger/internal/metrics"
)

// Handler exposes the ledger and the quiz runner over REST and websockets.
type Handler struct {
	service  *app.QuizService
	ledger   *ledger.Ledger
	hub      *events.Hub
	auth     *Authenticator
	validate *validator.Validate
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

func NewHandler(service *app.QuizService, l *ledger.Ledger, hub *events.Hub, auth *Authenticator, m *metrics.Metrics, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		service:  service,
		ledger:   l,
		hub:      hub,
		auth:     auth,
		validate: validator.New(),
		metrics:  m,
		gatherer: gatherer,
	}
}

type createQuizRequest struct {
	QuizID            string `json:"quizId" validate:"required,max=128"`
	Title             string `json:"title" validate:"max=256"`
	RewardMetadataRef string `json:"rewardMetadataRef" validate:"max=2048"`
}

type recordCompletionRequest struct {
	Score        *uint64 `json:"score" validate:"required"`
	AttemptCount uint64  `json:"attemptCount" validate:"required,gte=1"`
}

type playerQuizResponse struct {
	Completed  bool               `json:"completed"`
	Completion *domain.Completion `json:"completion,omitempty"`
}

// Routes builds the HTTP surface.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/quizzes", h.auth.RequireCaller(h.createQuiz))
	mux.HandleFunc("GET /api/quizzes/{id}", h.getQuiz)
	mux.HandleFunc("POST /api/quizzes/{id}/completions", h.auth.RequireCaller(h.recordCompletion))
	mux.HandleFunc("POST /api/quizzes/{id}/claims", h.auth.RequireCaller(h.claimReward))
	mux.HandleFunc("GET /api/quizzes/{id}/leaderboard", h.leaderboard)

	mux.HandleFunc("GET /api/players/{address}/history", h.playerHistory)
	mux.HandleFunc("GET /api/players/{address}/quizzes/{id}", h.playerQuiz)
	mux.HandleFunc("GET /api/players/{address}/dashboard", h.dashboard)
	mux.HandleFunc("GET /api/players/{address}/rewards", h.playerRewards)

	mux.HandleFunc("GET /api/rewards/{id}", h.getReward)
	mux.HandleFunc("DELETE /api/rewards/{id}", h.auth.RequireCaller(h.burnReward))

	mux.HandleFunc("GET /ws", h.ServeWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	return h.instrument(mux)
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, _ := CallerFrom(r.Context())
	rec, err := h.service.CreateQuiz(r.Context(), caller, req.QuizID, req.Title, req.RewardMetadataRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Quiz(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) recordCompletion(w http.ResponseWriter, r *http.Request) {
	var req recordCompletionRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, _ := CallerFrom(r.Context())
	c, err := h.ledger.RecordCompletion(r.Context(), caller, r.PathValue("id"), *req.Score, req.AttemptCount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) claimReward(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	reward, err := h.service.Claim(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	if raw, _ := strconv.ParseBool(r.URL.Query().Get("raw")); raw {
		history, err := h.ledger.GetLeaderboard(r.Context(), quizID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
		return
	}
	board, err := h.service.Leaderboard(r.Context(), quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) playerHistory(w http.ResponseWriter, r *http.Request) {
	player, err := domain.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := h.ledger.GetPlayerHistory(r.Context(), player)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) playerQuiz(w http.ResponseWriter, r *http.Request) {
	player, err := domain.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	c, ok, err := h.ledger.CurrentCompletion(r.Context(), player, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := playerQuizResponse{Completed: ok}
	if ok {
		resp.Completion = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	player, err := domain.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	dash, err := h.service.Dashboard(r.Context(), player)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (h *Handler) playerRewards(w http.ResponseWriter, r *http.Request) {
	owner, err := domain.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	rewards, err := h.ledger.RewardsOf(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *Handler) getReward(w http.ResponseWriter, r *http.Request) {
	id, err := rewardID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	reward, err := h.ledger.Reward(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

func (h *Handler) burnReward(w http.ResponseWriter, r *http.Request) {
	id, err := rewardID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	caller, _ := CallerFrom(r.Context())
	if err := h.ledger.BurnReward(r.Context(), caller, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return h.validate.Struct(v)
}

func rewardID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: reward id %q", domain.ErrInvalidInput, r.PathValue("id"))
	}
	return id, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes websocket upgrades through to the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	if h.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		h.metrics.RequestDuration.
			WithLabelValues(route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
