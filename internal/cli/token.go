package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"quiz-ledger/internal/config"
	"quiz-ledger/internal/domain"
	transport "quiz-ledger/internal/transport/http"
)

// NewTokenCmd mints a bearer token for an address, for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "token <address>",
		Short: "Issue a signed token for a player address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			addr, err := domain.ParseAddress(args[0])
			if err != nil {
				return err
			}
			token, err := newAuthenticator(cfg).Issue(addr)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func newAuthenticator(cfg config.Config) *transport.Authenticator {
	return transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
}
