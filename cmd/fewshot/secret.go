// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/fewshot/internal/secrets"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute an in-memory implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.KeyringStore{}
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long: "Store and delete secrets in the operating system keyring. Config values of the form " +
			"keyring://<service>/<key> are replaced with the stored secret when the server starts.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretDeleteCmd(),
	)
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <service/key>",
		Short: "Store a secret (value from --value or stdin)",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretSet,
	}
	cmd.Flags().String("value", "", "secret value; read from stdin when omitted")
	return cmd
}

func parseSecretName(name string) (service, key string, err error) {
	return secrets.ParseReference("keyring://" + strings.TrimPrefix(name, "keyring://"))
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	service, key, err := parseSecretName(args[0])
	if err != nil {
		return err
	}

	value, _ := cmd.Flags().GetString("value")
	if value == "" {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "reading secret from stdin: %w", err)
		}
		value = strings.TrimRight(line, "\r\n")
	}
	if value == "" {
		return sigilerr.New(sigilerr.CodeCLIInputInvalid, "secret value must not be empty")
	}

	if err := secretStoreFactory().Set(service, key, value); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret. Reference it as keyring://%s/%s\n", service, key)
	return err
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <service/key>",
		Short: "Delete a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, key, err := parseSecretName(args[0])
			if err != nil {
				return err
			}
			if err := secretStoreFactory().Delete(service, key); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret %s/%s\n", service, key)
			return err
		},
	}
}
