package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	"github.com/rs-labo46/ec-fulfillment/internal/middleware"
)

// 開発・運用用にアクセストークンを発行する（認証サービスは別）
func tokenCmd() *cobra.Command {
	var (
		userID int64
		admin  bool
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user must be a positive id")
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			role := model.RoleUser
			if admin {
				role = model.RoleAdmin
			}
			tok, err := middleware.IssueToken(cfg.JWTSecret, userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id to put in sub")
	cmd.Flags().BoolVar(&admin, "admin", false, "issue an ADMIN token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
