// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/fewshot/internal/server"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

func newQuerySetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "queryset",
		Aliases: []string{"query-set", "qs"},
		Short:   "Manage query sets",
	}

	cmd.AddCommand(
		newQuerySetCreateCmd(),
		newQuerySetListCmd(),
		newQuerySetGetCmd(),
	)
	return cmd
}

func newQuerySetCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [asset-id...]",
		Short: "Create a query set from arguments and/or a file of asset ids",
		RunE:  runQuerySetCreate,
	}
	cmd.Flags().String("name", "", "query set name (required)")
	cmd.Flags().StringP("file", "f", "", "file with one asset id per line; # starts a comment")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func readAssetIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "reading %s: %w", path, err)
	}
	return ids, nil
}

func runQuerySetCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	ids := append([]string(nil), args...)
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		fromFile, err := readAssetIDs(path)
		if err != nil {
			return err
		}
		ids = append(ids, fromFile...)
	}
	if len(ids) == 0 {
		return sigilerr.New(sigilerr.CodeCLIInputInvalid, "at least one asset id is required")
	}

	var set server.QuerySet
	req := map[string]any{"name": name, "asset_ids": ids}
	if err := newAPIClient(serverAddress()).post(cmd.Context(), "/query-sets", req, &set); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Created query set %s (%s, %d assets)\n", set.ID, set.Name, len(set.AssetIDs))
	return err
}

func newQuerySetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List query sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var body struct {
				QuerySets []server.QuerySet `json:"query_sets"`
			}
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/query-sets", &body); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(body.QuerySets) == 0 {
				_, err := fmt.Fprintln(out, "No query sets.")
				return err
			}
			tw := newTable(out)
			_, _ = fmt.Fprintln(tw, "ID\tNAME\tASSETS\tCREATED")
			for _, q := range body.QuerySets {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", q.ID, q.Name, len(q.AssetIDs), formatTime(q.CreatedAt))
			}
			return tw.Flush()
		},
	}
}

func newQuerySetGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a query set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var set server.QuerySet
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/query-sets/"+seg(args[0]), &set); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), set)
		},
	}
}
