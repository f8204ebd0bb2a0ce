package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-ledger/internal/app"
	"quiz-ledger/internal/config"
	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/events"
	"quiz-ledger/internal/infra/memory"
	"quiz-ledger/internal/infra/pebble"
	"quiz-ledger/internal/infra/postgres"
	"quiz-ledger/internal/infra/rabbitmq"
	infraredis "quiz-ledger/internal/infra/redis"
	"quiz-ledger/internal/ledger"
	"quiz-ledger/internal/log"
	"quiz-ledger/internal/metrics"
	transport "quiz-ledger/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the ledger server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// loadConfig reads config and initializes logging from it.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	level, err := log.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return cfg, err
	}
	log.Init(log.Options{LogLevel: level, Type: log.ParseLoggerType(cfg.Log.Format)})
	return cfg, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (or JWT_SECRET) must be set")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, err := catalogLoader(cfg, pool)
	if err != nil {
		return err
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = infraredis.NewSessionStore(redisClient, config.TTLDuration(cfg.Session.TTL, 30*time.Minute))
	} else {
		sessions = memory.NewSessionStore()
	}

	store, closeStore, err := openLedgerStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := events.NewHub()
	sink := events.Fanout{hub}
	if cfg.Events.AMQPURL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.Events.AMQPURL, cfg.EventsExchange(), log.Infra)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sink = append(sink, publisher)
	}

	opts := []ledger.Option{
		ledger.WithEventSink(sink),
		ledger.WithClaimOnce(cfg.Ledger.ClaimOnce),
		ledger.WithBurn(cfg.Ledger.AllowBurn),
		ledger.WithLogger(log.Ledger),
		ledger.WithMetrics(m),
	}
	if cfg.Ledger.VerifyScores {
		opts = append(opts, ledger.WithVerifier(app.NewCatalogVerifier(quizRepo)))
	}
	if len(cfg.Ledger.Creators) > 0 {
		creators := make([]domain.Address, 0, len(cfg.Ledger.Creators))
		for _, raw := range cfg.Ledger.Creators {
			addr, err := domain.ParseAddress(raw)
			if err != nil {
				return fmt.Errorf("ledger.creators: %w", err)
			}
			creators = append(creators, addr)
		}
		opts = append(opts, ledger.WithCreatorPolicy(ledger.NewAllowList(creators...)))
	}
	l := ledger.New(store, opts...)

	service := app.NewQuizService(sessions, quizRepo, l,
		app.WithRequirePerfect(cfg.RequirePerfect()),
		app.WithLogger(log.App),
		app.WithMetrics(m),
	)
	handler := transport.NewHandler(service, l, hub, newAuthenticator(cfg), m, reg)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Root.Info().
			Str("port", finalPort).
			Str("backend", cfg.LedgerBackend()).
			Msg("starting quiz ledger")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Root.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Root.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Root.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// catalogLoader prefers Postgres, then a YAML catalog file, then the
// built-in sample quiz.
func catalogLoader(cfg config.Config, pool *pgxpool.Pool) (memory.QuizLoader, error) {
	switch {
	case pool != nil:
		return postgres.NewQuizCatalog(pool), nil
	case cfg.Quiz.Catalog != "":
		return memory.LoadCatalogFile(cfg.Quiz.Catalog)
	default:
		return memory.NewStaticQuizLoader(sampleQuizzes()), nil
	}
}

func openLedgerStore(cfg config.Config) (ledger.Store, func(), error) {
	switch backend := cfg.LedgerBackend(); backend {
	case "memory":
		return memory.NewLedgerStore(), func() {}, nil
	case "pebble":
		path := cfg.Ledger.Path
		if path == "" {
			path = "data/ledger"
		}
		store, err := pebble.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Infra.Error().Err(err).Msg("error closing ledger store")
			}
		}, nil
	case "postgres":
		if cfg.Postgres.URL == "" {
			return nil, nil, errors.New("ledger backend postgres needs postgres.url")
		}
		db := openBun(cfg.Postgres.URL)
		return postgres.NewLedgerStore(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}

// sampleQuizzes provides a minimal catalog when nothing else is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"intro": {
			ID:                "intro",
			Title:             "Intro",
			RewardMetadataRef: "ipfs://quiz-ledger/intro.json",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
				},
			},
		},
	}
}
