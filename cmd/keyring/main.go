// Package main is the entry point for the keyring server and its tooling.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"keyring/config"
	"keyring/internal/app"
	"keyring/internal/core"
	"keyring/internal/logging"
	"keyring/internal/providers"
	"keyring/internal/providers/anthropic"
	"keyring/internal/providers/gemini"
	"keyring/internal/providers/openai"
	"keyring/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "keyring",
		Short:        "Bring-your-own-key AI chat backend",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newValidateKeyCmd(), newVersionCmd())
	return root
}

// newFactory registers the translator for every supported provider.
func newFactory() *providers.ProviderFactory {
	factory := providers.NewProviderFactory()
	factory.Add(
		openai.Registration,
		openai.OpenRouterRegistration,
		anthropic.Registration,
		gemini.Registration,
	)
	return factory
}

func setupLogging(out io.Writer, cfg config.LogConfig) error {
	logger, err := logging.New(out, logging.Config{Level: cfg.Level, Format: cfg.Format})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := setupLogging(os.Stdout, cfg.Log); err != nil {
				return err
			}

			slog.Info("starting keyring",
				"version", version.Version,
				"commit", version.Commit,
				"build_date", version.Date,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, app.Config{AppConfig: cfg, Factory: newFactory()})
			if err != nil {
				slog.Error("failed to initialize application", "error", err)
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- application.Start(":" + cfg.Server.Port)
			}()

			var startErr error
			select {
			case <-ctx.Done():
				slog.Info("shutdown signal received")
			case startErr = <-errCh:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(startErr, application.Shutdown(shutdownCtx))
		},
	}
}

func newValidateKeyCmd() *cobra.Command {
	var provider, key string

	cmd := &cobra.Command{
		Use:   "validate-key",
		Short: "Probe a provider API key and list the models it can use",
		Example: `  keyring validate-key --provider openai --key sk-...
  echo "$ANTHROPIC_KEY" | keyring validate-key --provider anthropic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := core.ParseProvider(provider)
			if err != nil {
				return err
			}
			if key == "" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read key from stdin: %w", err)
				}
				key = strings.TrimSpace(string(raw))
			}
			if key == "" {
				return errors.New("an API key is required (--key or stdin)")
			}

			cfg, err := config.Read()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := setupLogging(cmd.ErrOrStderr(), cfg.Log); err != nil {
				return err
			}

			adapter, err := app.BuildAdapter(newFactory(), cfg.Providers)
			if err != nil {
				return err
			}

			models, err := adapter.ValidateKey(cmd.Context(), p, key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s key is valid\n", p.DisplayName())
			for _, m := range models {
				fmt.Fprintln(out, "  "+m)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "provider id (openrouter, openai, anthropic, google)")
	cmd.Flags().StringVarP(&key, "key", "k", "", "API key; read from stdin when omitted")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
