package cli

import (
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"quiz-ledger/internal/infra/memory"
	"quiz-ledger/internal/infra/postgres"
	"quiz-ledger/internal/log"
)

// NewSeedCmd copies a YAML quiz catalog into the Postgres catalog table.
// Ledger records are not created; use POST /api/quizzes for that.
func NewSeedCmd(configPath *string) *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML quiz catalog into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if catalogPath == "" {
				catalogPath = cfg.Quiz.Catalog
			}
			if catalogPath == "" {
				return fmt.Errorf("no catalog file given")
			}

			loader, err := memory.LoadCatalogFile(catalogPath)
			if err != nil {
				return err
			}
			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			catalog := postgres.NewQuizCatalog(pool)
			for _, quiz := range loader.Quizzes() {
				if err := catalog.SaveQuiz(cmd.Context(), quiz); err != nil {
					return err
				}
				log.Root.Info().Str("quizId", quiz.ID).Int("questions", len(quiz.Questions)).Msg("quiz seeded")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "file", "", "catalog file (defaults to quiz.catalog)")
	return cmd
}
