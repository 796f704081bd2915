// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/fewshot/internal/config"
	"github.com/sigil-dev/fewshot/internal/secrets"
	"github.com/sigil-dev/fewshot/internal/server"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the fewshot server",
		Long:  "Load configuration, open the store, recover interrupted experiments and serve the HTTP API.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()
	if err := v.BindPFlag("networking.listen", cmd.Flags().Lookup("listen")); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "binding listen flag: %w", err)
	}

	if err := secrets.ResolveConfig(v, secretStoreFactory()); err != nil {
		return err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}

	closeLog := setupLogging(cfg.Logging, v.GetBool("verbose"))
	defer closeLog()

	dataDir := cfg.DataDir
	if dataDir == "" {
		if dataDir, err = config.DefaultDataDir(); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	server.Version = version
	app, err := Wire(ctx, cfg, dataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("closing app", "error", err)
		}
	}()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "fewshot %s listening on %s (storage: %s, data: %s)\n",
		version, cfg.Networking.Listen, cfg.Storage.Backend, dataDir)
	return app.Start(ctx)
}
