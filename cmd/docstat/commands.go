package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/docstat"
	"github.com/brunobiangulo/docstat/report"
)

func (a *app) analyzeCmd() *cobra.Command {
	var (
		asJSON    bool
		noHistory bool
	)

	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Analyze one or more PDF or DOCX files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			var opts []docstat.Option
			if noHistory {
				opts = append(opts, docstat.WithoutHistory())
			}
			engine, err := a.openEngine(opts...)
			if err != nil {
				return err
			}
			defer engine.Close()

			var bar *progressbar.ProgressBar
			if len(args) > 1 && !asJSON {
				bar = progressbar.NewOptions(len(args),
					progressbar.OptionSetWriter(a.errOut),
					progressbar.OptionSetDescription("analyzing"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}

			var (
				results []*docstat.Result
				failed  int
			)
			for _, path := range args {
				res, err := engine.AnalyzeFile(ctx, path)
				if bar != nil {
					_ = bar.Add(1)
				}
				if err != nil {
					failed++
					a.printFailure(path, err)
					continue
				}
				results = append(results, res)
			}
			if bar != nil {
				_ = bar.Finish()
			}

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, res := range results {
					a.printResult(res)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the analyses")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			results, err := engine.ListAnalyses(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(a.out, "no analyses recorded")
				return nil
			}
			a.printHistory(results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of analyses (0 for all)")
	return cmd
}

func (a *app) similarCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "similar ID",
		Short: "List recorded analyses with statistics closest to ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			similar, err := engine.SimilarAnalyses(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			if len(similar) == 0 {
				fmt.Fprintln(a.out, "no other analyses recorded")
				return nil
			}
			a.printSimilar(similar)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 5, "number of neighbours")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a recorded analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.DeleteAnalysis(cmd.Context(), args[0]); err != nil {
				return err
			}
			successColor.Fprintf(a.out, "deleted %s\n", args[0])
			return nil
		},
	}
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show totals over all recorded analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			sum, err := engine.Summary(cmd.Context())
			if err != nil {
				return err
			}
			a.printSummary(sum)
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the analysis history as an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			results, err := engine.ListAnalyses(cmd.Context(), 0)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := report.WriteXLSX(f, results); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			successColor.Fprintf(a.out, "exported %d analyses to %s\n", len(results), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "docstat-report.xlsx", "output file")
	return cmd
}
