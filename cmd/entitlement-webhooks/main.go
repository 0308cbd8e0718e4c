// Package main Entitlement Webhooks API
//
// @title           Entitlement Webhooks API
// @version         1.0
// @description     Приём вебхуков провайдера подписок и чтение текущего доступа пользователей

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:3000
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/magabrotheeeer/entitlement-webhooks/docs"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/app/webhooks"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/config"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.SetupLogger(cfg.Env)

	if len(os.Args) > 1 && os.Args[1] == "issue-token" {
		if err := issueToken(cfg, os.Args[2:]); err != nil {
			logger.Error("failed to issue operator token", sl.Err(err))
			os.Exit(1)
		}
		return
	}

	logger.Info("starting entitlement-webhooks", slog.String("env", cfg.Env))
	logger.Debug("config loaded", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := webhooks.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("entitlement-webhooks stopped gracefully")
}

// issueToken печатает JWT оператора для GET /api/v1/entitlements/{user_id}.
func issueToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	operator := fs.String("operator", "", "operator name or email")
	role := fs.String("role", jwt.RoleAdmin, "operator role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *operator == "" {
		return fmt.Errorf("-operator is required")
	}

	token, err := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL).GenerateToken(*operator, *role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
