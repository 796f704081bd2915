// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/fewshot/internal/pipeline"
	"github.com/sigil-dev/fewshot/internal/server"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/types"
)

func newTrackingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tracking",
		Aliases: []string{"track"},
		Short:   "Track assets through the processing pipeline",
	}

	cmd.AddCommand(
		newTrackingIngestCmd(),
		newTrackingUpdateCmd(),
		newTrackingGetCmd(),
		newTrackingStatusCmd(),
		newTrackingErrorsCmd(),
		newTrackingExecuteCmd(),
		newTrackingRetryCmd(),
	)
	return cmd
}

func newTrackingIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <asset-id>...",
		Short: "Start tracking assets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverAddress())
			for _, id := range args {
				var rec server.TrackingRecord
				if err := client.do(cmd.Context(), http.MethodPut, "/tracking/"+seg(id), nil, &rec); err != nil {
					return sigilerr.With(err, sigilerr.FieldAssetID(id))
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", rec.AssetID, rec.CurrentStage)
			}
			return nil
		},
	}
}

func newTrackingUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <asset-id>",
		Short: "Report a stage status for an asset",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrackingUpdate,
	}
	cmd.Flags().String("stage", "", "stage: uploaded, annotated, preprocessed or classified (required)")
	cmd.Flags().String("status", "", "status: pending, processing, complete or error (required)")
	cmd.Flags().StringToString("meta", nil, "metadata key=value pairs; error=... sets the error message")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func runTrackingUpdate(cmd *cobra.Command, args []string) error {
	stage, _ := cmd.Flags().GetString("stage")
	status, _ := cmd.Flags().GetString("status")
	meta, _ := cmd.Flags().GetStringToString("meta")

	// Validate locally so typos fail before a round trip.
	if _, err := types.ParseStage(stage); err != nil {
		return err
	}
	if _, err := types.ParseStageStatus(status); err != nil {
		return err
	}

	req := map[string]any{"stage": stage, "status": status}
	if len(meta) > 0 {
		req["metadata"] = meta
	}

	var rec server.TrackingRecord
	if err := newAPIClient(serverAddress()).post(cmd.Context(), "/tracking/"+seg(args[0]), req, &rec); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s (current stage: %s)\n", rec.AssetID, strings.ToLower(stage), strings.ToLower(status), rec.CurrentStage)
	return err
}

func newTrackingGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <asset-id>",
		Short: "Show an asset's tracking record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec server.TrackingRecord
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/tracking/"+seg(args[0]), &rec); err != nil {
				return err
			}
			return printTrackingRecord(cmd, rec)
		},
	}
}

func printTrackingRecord(cmd *cobra.Command, rec server.TrackingRecord) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Asset:         %s\n", rec.AssetID)
	_, _ = fmt.Fprintf(out, "Current stage: %s\n\n", rec.CurrentStage)

	tw := newTable(out)
	_, _ = fmt.Fprintln(tw, "STAGE\tSTATUS\tUPDATED")
	for _, stage := range types.Stages {
		entry, ok := rec.Stages[stage]
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", stage, entry.Status, formatTime(entry.Timestamp))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(rec.Errors) > 0 {
		_, _ = fmt.Fprintln(out, "\nErrors:")
		for _, e := range rec.Errors {
			_, _ = fmt.Fprintf(out, "  %s  %s: %s\n", formatTime(e.Timestamp), e.Stage, e.Message)
		}
	}
	return nil
}

func newTrackingStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Count assets per current stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var body struct {
				Counts map[types.Stage]int `json:"counts"`
			}
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/tracking/status", &body); err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			_, _ = fmt.Fprintln(tw, "STAGE\tASSETS")
			for _, stage := range append([]types.Stage{types.StageNone}, types.Stages...) {
				_, _ = fmt.Fprintf(tw, "%s\t%d\n", stage, body.Counts[stage])
			}
			return tw.Flush()
		},
	}
}

func newTrackingErrorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "errors",
		Short: "List assets with a stage in error",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var body struct {
				Records []server.TrackingRecord `json:"records"`
			}
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/tracking/errors", &body); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(body.Records) == 0 {
				_, err := fmt.Fprintln(out, "No assets in error.")
				return err
			}
			tw := newTable(out)
			_, _ = fmt.Fprintln(tw, "ASSET\tCURRENT\tLAST ERROR")
			for _, rec := range body.Records {
				last := "-"
				if n := len(rec.Errors); n > 0 {
					last = fmt.Sprintf("%s: %s", rec.Errors[n-1].Stage, rec.Errors[n-1].Message)
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.AssetID, rec.CurrentStage, last)
			}
			return tw.Flush()
		},
	}
}

func newTrackingExecuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <asset-id> <stage>",
		Short: "Run a stage worker for an asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := types.ParseStage(args[1])
			if err != nil {
				return err
			}
			var rec server.TrackingRecord
			path := "/tracking/" + seg(args[0]) + "/stages/" + string(stage) + "/execute"
			if err := newAPIClient(serverAddress()).post(cmd.Context(), path, nil, &rec); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n", rec.AssetID, stage, rec.Stages[stage].Status)
			return err
		},
	}
}

func newTrackingRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <asset-id>",
		Short: "Re-run the stage of an asset's most recent unresolved error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var outcome pipeline.RetryOutcome
			if err := newAPIClient(serverAddress()).post(cmd.Context(), "/tracking/"+seg(args[0])+"/retry", nil, &outcome); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch outcome.Result {
			case pipeline.RetryNothingToRetry:
				_, err := fmt.Fprintf(out, "%s: nothing to retry\n", outcome.AssetID)
				return err
			case pipeline.RetryFailed:
				_, _ = fmt.Fprintf(out, "%s: retry of %s failed: %s\n", outcome.AssetID, outcome.Stage, outcome.Error)
				return sigilerr.New(sigilerr.CodeCLIRequestFailure, "retry failed", sigilerr.Field("asset_id", outcome.AssetID))
			default:
				_, err := fmt.Fprintf(out, "%s: retried %s (%s)\n", outcome.AssetID, outcome.Stage, outcome.Result)
				return err
			}
		},
	}
}
