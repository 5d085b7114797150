package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/imageledger/internal/fingerprint"
	"github.com/mattjoyce/imageledger/internal/ledger"
	"github.com/mattjoyce/imageledger/internal/log"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and edit the job ledger",
	}
	cmd.AddCommand(newLedgerListCommand(ctx))
	cmd.AddCommand(newLedgerShowCommand(ctx))
	cmd.AddCommand(newLedgerRandomCommand(ctx))
	cmd.AddCommand(newLedgerRemoveCommand(ctx))
	return cmd
}

// withStack opens the ledger for a single command. Logs go to stderr so
// stdout stays machine readable.
func withStack(cmd *cobra.Command, ctx *commandContext, fn func(st *stack) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	log.SetupWriter(cmd.ErrOrStderr(), cfg.Service.LogLevel, cfg.Service.LogFormat)
	st, err := openStack(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(st)
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlag string
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status ledger.Status
			if statusFlag != "" {
				s, err := ledger.ParseStatus(statusFlag)
				if err != nil {
					return err
				}
				status = s
			}
			return withStack(cmd, ctx, func(st *stack) error {
				jobs, err := st.ledger.List(cmd.Context(), status)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, jobViews(jobs))
				}
				printJobTable(cmd.OutOrStdout(), jobs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Only show jobs with this status (processing, success, error)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func printJobTable(w io.Writer, jobs []*ledger.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs.")
		return
	}
	headers := []string{"ID", "Hash", "Status", "Processed", "Path", "Error"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}
	fmt.Fprintln(w, renderTable(w, headers, jobRows(jobs), aligns))
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <file_hash|path>",
		Short: "Show one job by content hash or source path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd, ctx, func(st *stack) error {
				job, err := resolveJob(cmd.Context(), st, args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, newJobView(job))
				}
				printJobTable(cmd.OutOrStdout(), []*ledger.Job{job})
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func resolveJob(ctx context.Context, st *stack, ref string) (*ledger.Job, error) {
	if fingerprint.Valid(ref) {
		return st.ledger.LookupByFingerprint(ctx, ref)
	}
	path, err := filepath.Abs(ref)
	if err != nil {
		return nil, err
	}
	fp, err := st.ledger.LookupByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	return st.ledger.LookupByFingerprint(ctx, fp)
}

func newLedgerRandomCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Pick a random processed image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd, ctx, func(st *stack) error {
				job, _, err := st.client.Random(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, newJobView(job))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", job.Fingerprint, st.artifacts.Path(job.SourcePath))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newLedgerRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <file_hash|path>",
		Short: "Remove a job and its derived image (the source file is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd, ctx, func(st *stack) error {
				job, err := resolveJob(cmd.Context(), st, args[0])
				if err != nil {
					return err
				}
				if err := st.client.DeleteByFingerprint(cmd.Context(), job.Fingerprint); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", job.Fingerprint, job.SourcePath)
				return nil
			})
		},
	}
}
