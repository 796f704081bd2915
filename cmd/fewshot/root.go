// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/fewshot/internal/config"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// NewRootCmd creates the root fewshot command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fewshot",
		Short:         "fewshot: few-shot classification experiments",
		Long:          "fewshot runs few-shot classification experiments over versioned support sets and tracks assets through a processing pipeline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("address", "", "server address for client commands (default: networking.listen)")

	root.AddCommand(
		newServeCmd(),
		newVersionCmd(),
		newConfigCmd(),
		newSupportSetCmd(),
		newQuerySetCmd(),
		newExperimentCmd(),
		newTrackingCmd(),
		newEmbeddingCmd(),
		newSecretCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	// A .env in the working directory feeds FEWSHOT_* variables; it never
	// overrides variables already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "loading .env: %w", err)
	}

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted so viper does not try the bare name,
		// which would collide with a ./fewshot binary.
		v.SetConfigName("fewshot")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/fewshot")
		v.AddConfigPath("/etc/fewshot")
		// No config file is fine. Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
		}
	}
	config.WarnInsecurePermissions(v.ConfigFileUsed())

	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{"data_dir": "data-dir", "verbose": "verbose", "address": "address"} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "binding %s flag: %w", flag, err)
		}
	}

	return nil
}

// serverAddress returns --address, falling back to the configured listen
// address.
func serverAddress() string {
	if addr := viper.GetString("address"); addr != "" {
		return addr
	}
	return viper.GetString("networking.listen")
}
