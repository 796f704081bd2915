// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/fewshot/internal/server"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// classesFile is the YAML layout accepted by "supportset create -f".
//
//	name: pets
//	classes:
//	  cat: [img-001, img-002]
//	  dog: [img-101]
type classesFile struct {
	Name    string              `yaml:"name"`
	Classes map[string][]string `yaml:"classes"`
}

func newSupportSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "supportset",
		Aliases: []string{"support-set", "ss"},
		Short:   "Manage versioned support sets",
	}

	cmd.AddCommand(
		newSupportSetCreateCmd(),
		newSupportSetListCmd(),
		newSupportSetGetCmd(),
		newSupportSetCloneCmd(),
		newSupportSetLineageCmd(),
	)
	return cmd
}

func newSupportSetCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a support set from a YAML classes file",
		Args:  cobra.NoArgs,
		RunE:  runSupportSetCreate,
	}
	cmd.Flags().StringP("file", "f", "", "YAML file with name and classes (required)")
	cmd.Flags().String("name", "", "support set name (overrides the file)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadClassesFile(path string) (*classesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "reading %s: %w", path, err)
	}
	var f classesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "parsing %s: %w", path, err)
	}
	return &f, nil
}

func runSupportSetCreate(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	f, err := loadClassesFile(path)
	if err != nil {
		return err
	}
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		f.Name = name
	}

	var set server.SupportSet
	req := map[string]any{"name": f.Name, "classes": f.Classes}
	if err := newAPIClient(serverAddress()).post(cmd.Context(), "/support-sets", req, &set); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Created support set %s (%s v%d, %d classes)\n", set.ID, set.Name, set.Version, len(set.Classes))
	return err
}

func newSupportSetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List support sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var body struct {
				SupportSets []server.SupportSet `json:"support_sets"`
			}
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/support-sets", &body); err != nil {
				return err
			}
			return printSupportSets(cmd, body.SupportSets)
		},
	}
}

func newSupportSetLineageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <id>",
		Short: "List every version in a support set's lineage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body struct {
				SupportSets []server.SupportSet `json:"support_sets"`
			}
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/support-sets/"+seg(args[0])+"/lineage", &body); err != nil {
				return err
			}
			return printSupportSets(cmd, body.SupportSets)
		},
	}
}

func printSupportSets(cmd *cobra.Command, sets []server.SupportSet) error {
	out := cmd.OutOrStdout()
	if len(sets) == 0 {
		_, err := fmt.Fprintln(out, "No support sets.")
		return err
	}

	tw := newTable(out)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tVERSION\tCLASSES\tCREATED")
	for _, s := range sets {
		classes := make([]string, 0, len(s.Classes))
		for c := range s.Classes {
			classes = append(classes, c)
		}
		sort.Strings(classes)
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.Name, s.Version, strings.Join(classes, ","), formatTime(s.CreatedAt))
	}
	return tw.Flush()
}

func newSupportSetGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a support set version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var set server.SupportSet
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/support-sets/"+seg(args[0]), &set); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), set)
		},
	}
}

func newSupportSetCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <id>",
		Short: "Clone a support set into the next version of its lineage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var set server.SupportSet
			if err := newAPIClient(serverAddress()).post(cmd.Context(), "/support-sets/"+seg(args[0])+"/clone", nil, &set); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Created support set %s (%s v%d)\n", set.ID, set.Name, set.Version)
			return err
		},
	}
}
