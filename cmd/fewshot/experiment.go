// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/fewshot/internal/experiment"
	"github.com/sigil-dev/fewshot/internal/server"
	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

func newExperimentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "experiment",
		Aliases: []string{"exp"},
		Short:   "Create, run and compare classification experiments",
	}

	cmd.AddCommand(
		newExperimentCreateCmd(),
		newExperimentListCmd(),
		newExperimentGetCmd(),
		newExperimentRunCmd(),
		newExperimentResultsCmd(),
		newExperimentCompareCmd(),
		newExperimentLineageCmd(),
		newExperimentDeleteCmd(),
	)
	return cmd
}

func newExperimentCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an experiment",
		Args:  cobra.NoArgs,
		RunE:  runExperimentCreate,
	}
	cmd.Flags().String("name", "", "experiment name (required)")
	cmd.Flags().String("support-set", "", "support set version id (required)")
	cmd.Flags().String("query-set", "", "query set id (required)")
	cmd.Flags().String("method", "", "cosine or centroid (default: classification.default_method)")
	cmd.Flags().Float32("threshold", 0, "minimum confidence in [0, 1] (default: classification.default_threshold)")
	cmd.Flags().String("parent", "", "experiment this one is derived from")
	for _, f := range []string{"name", "support-set", "query-set"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func runExperimentCreate(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	supportSet, _ := cmd.Flags().GetString("support-set")
	querySet, _ := cmd.Flags().GetString("query-set")
	method, _ := cmd.Flags().GetString("method")
	parent, _ := cmd.Flags().GetString("parent")

	req := map[string]any{
		"name":           name,
		"support_set_id": supportSet,
		"query_set_id":   querySet,
	}
	if method != "" {
		req["method"] = method
	}
	if parent != "" {
		req["parent_experiment_id"] = parent
	}
	// Only an explicit --threshold is sent so the server default applies otherwise.
	if cmd.Flags().Changed("threshold") {
		threshold, _ := cmd.Flags().GetFloat32("threshold")
		req["threshold"] = threshold
	}

	var exp server.Experiment
	if err := newAPIClient(serverAddress()).post(cmd.Context(), "/experiments", req, &exp); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Created experiment %s (%s, %s, threshold %.2f)\n", exp.ID, exp.Name, exp.Method, exp.Threshold)
	return err
}

func newExperimentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var body struct {
				Experiments []server.Experiment `json:"experiments"`
			}
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/experiments", &body); err != nil {
				return err
			}
			return printExperiments(cmd, body.Experiments)
		},
	}
}

func newExperimentLineageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <id>",
		Short: "Show an experiment and its ancestors, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body struct {
				Experiments []server.Experiment `json:"experiments"`
			}
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/experiments/"+seg(args[0])+"/lineage", &body); err != nil {
				return err
			}
			return printExperiments(cmd, body.Experiments)
		},
	}
}

func printExperiments(cmd *cobra.Command, exps []server.Experiment) error {
	out := cmd.OutOrStdout()
	if len(exps) == 0 {
		_, err := fmt.Fprintln(out, "No experiments.")
		return err
	}

	tw := newTable(out)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tMETHOD\tTHRESHOLD\tPARENT\tCREATED")
	for _, e := range exps {
		parent := e.ParentExperimentID
		if parent == "" {
			parent = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
			e.ID, e.Name, e.Status, e.Method, e.Threshold, parent, formatTime(e.CreatedAt))
	}
	return tw.Flush()
}

func newExperimentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var exp server.Experiment
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/experiments/"+seg(args[0]), &exp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), exp)
		},
	}
}

func newExperimentRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Run an experiment and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE:  runExperimentRun,
	}
	cmd.Flags().Duration("timeout", 0, "how long to wait (default: classification.run_timeout plus a margin)")
	return cmd
}

func runExperimentRun(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = viper.GetDuration("classification.run_timeout") + 30*time.Second
	}

	var exp server.Experiment
	client := newAPIClient(serverAddress()).withTimeout(timeout)
	if err := client.post(cmd.Context(), "/experiments/"+seg(args[0])+"/run", nil, &exp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if exp.Status == string(store.ExperimentStatusFailed) {
		_, _ = fmt.Fprintf(out, "Experiment %s failed: %s\n", exp.ID, exp.Error)
		return sigilerr.New(sigilerr.CodeCLIRequestFailure, "experiment run failed", sigilerr.Field("experiment_id", exp.ID))
	}
	_, err := fmt.Fprintf(out, "Experiment %s %s. Results: fewshot experiment results %s\n", exp.ID, exp.Status, exp.ID)
	return err
}

func newExperimentResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Show the results of a completed experiment",
		Args:  cobra.ExactArgs(1),
		RunE:  runExperimentResults,
	}
	cmd.Flags().Bool("json", false, "print the full results document")
	return cmd
}

func runExperimentResults(cmd *cobra.Command, args []string) error {
	var res server.ExperimentResults
	if err := newAPIClient(serverAddress()).get(cmd.Context(), "/experiments/"+seg(args[0])+"/results", &res); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, res)
	}

	s := res.Summary
	_, _ = fmt.Fprintf(out, "Total: %d  Unknown: %d  Mean confidence: %.4f  Mean margin: %.4f\n\n",
		s.Total, s.UnknownCount, s.MeanConfidence, s.MeanMargin)

	assets := make([]string, 0, len(res.Predictions))
	for id := range res.Predictions {
		assets = append(assets, id)
	}
	sort.Strings(assets)

	tw := newTable(out)
	_, _ = fmt.Fprintln(tw, "ASSET\tCLASS\tCONFIDENCE\tMARGIN")
	for _, id := range assets {
		p := res.Predictions[id]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.4f\n", id, p.PredictedClass, p.Confidence, p.Margin)
	}
	return tw.Flush()
}

func newExperimentCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <id> <id>...",
		Short: "Compare the summaries of completed experiments",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body struct {
				Experiments []experiment.Comparison `json:"experiments"`
			}
			req := map[string]any{"ids": args}
			if err := newAPIClient(serverAddress()).post(cmd.Context(), "/experiments/compare", req, &body); err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			_, _ = fmt.Fprintln(tw, "ID\tNAME\tMETHOD\tTHRESHOLD\tTOTAL\tUNKNOWN\tMEAN CONF\tMEAN MARGIN")
			for _, c := range body.Experiments {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%d\t%.4f\t%.4f\n",
					c.ExperimentID, c.Name, c.Method, c.Threshold,
					c.Summary.Total, c.Summary.UnknownCount, c.Summary.MeanConfidence, c.Summary.MeanMargin)
			}
			return tw.Flush()
		},
	}
}

func newExperimentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an experiment and its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient(serverAddress()).do(cmd.Context(), http.MethodDelete, "/experiments/"+seg(args[0]), nil, nil); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted experiment %s\n", args[0])
			return err
		},
	}
}
