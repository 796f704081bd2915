// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/fewshot/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check the fewshot config file",
	}

	cmd.AddCommand(newConfigInitCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file if none exists",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	cmd.Flags().String("path", "", "where to write the config (default: ~/.config/fewshot/fewshot.yaml)")
	return cmd
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if written := config.BootstrapConfig(path); written == "" {
		_, err := fmt.Fprintf(out, "Config not written: %s already exists or is not writable\n", path)
		return err
	}
	_, err := fmt.Fprintf(out, "Wrote default config to %s\n", path)
	return err
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the effective config and report every problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := viper.GetViper()
			if _, err := config.FromViper(v); err != nil {
				return err
			}

			source := v.ConfigFileUsed()
			if source == "" {
				source = "defaults and environment"
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Config OK (%s)\n", source)
			return err
		},
	}
}
