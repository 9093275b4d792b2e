package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-pairank/internal/domain"
)

func newRankCmd(a *app) *cobra.Command {
	var q domain.RankingQuery
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print the current rankings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx, a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.Rankings(ctx, q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No candidates rated yet.")
				return nil
			}
			table := newTable(out, "RANK", "CANDIDATE", "SCORE", "W-L-T", "WIN RATE", "COMPARISONS")
			for _, r := range rows {
				if err := table.Append([]string{
					strconv.Itoa(r.Rank),
					r.CandidateID,
					fmt.Sprintf("%.4f", r.Score),
					r.Record(),
					percent(r.WinRate()),
					strconv.Itoa(r.ComparisonCount),
				}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
	cmd.Flags().IntVar(&q.TopN, "top", 0, "show only the top N candidates")
	cmd.Flags().IntVar(&q.MinComparisons, "min-comparisons", 0, "hide candidates with fewer comparisons")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <id>",
		Short: "Print one candidate's rating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx, a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.Stats(ctx, args[0])
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "FIELD", "VALUE")
			if err := table.Bulk([][]string{
				{"candidate", r.CandidateID},
				{"score", fmt.Sprintf("%.4f", r.Score)},
				{"record", r.Record()},
				{"win rate", percent(r.WinRate())},
				{"comparisons", strconv.Itoa(r.ComparisonCount)},
				{"created", r.CreatedAt.Format(time.RFC3339)},
				{"updated", r.UpdatedAt.Format(time.RFC3339)},
			}); err != nil {
				return err
			}
			return table.Render()
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "List the comparisons involving a candidate, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx, a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()

			id := args[0]
			hist, err := s.History(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hist) == 0 {
				fmt.Fprintf(out, "No comparisons for %s.\n", id)
				return nil
			}
			table := newTable(out, "TIME", "OPPONENT", "RESULT", "SCORE BEFORE", "SCORE AFTER")
			for _, c := range hist {
				opp, result, before, after := c.CandidateB, "loss", c.ScoreABefore, c.ScoreAAfter
				outcome := c.Winner
				if c.CandidateB == id {
					opp, before, after = c.CandidateA, c.ScoreBBefore, c.ScoreBAfter
					outcome = outcome.Flip()
				}
				switch outcome {
				case domain.WinnerA:
					result = "win"
				case domain.WinnerTie:
					result = "tie"
				}
				if err := table.Append([]string{
					c.Timestamp.Format(time.RFC3339), opp, result,
					fmt.Sprintf("%.4f", before), fmt.Sprintf("%.4f", after),
				}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var format, outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of every rating and comparison",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("%w: unknown export format %q", domain.ErrInvalidConfiguration, format)
			}
			ctx := cmd.Context()
			s, err := a.openStore(ctx, a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()

			snap, err := s.Export(ctx)
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := writeSnapshot(out, format, snap); err != nil {
				return err
			}
			if outPath != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d candidates and %d comparisons to %s\n",
					snap.Metadata.CandidateCount, snap.Metadata.ComparisonCount, outPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or yaml")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

func writeSnapshot(w io.Writer, format string, snap domain.Snapshot) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func newRecordCmd(a *app) *cobra.Command {
	var reasoning string
	cmd := &cobra.Command{
		Use:   "record <a> <b> <a|b|tie>",
		Short: "Record a manual judgment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			winner, err := domain.ParseWinner(args[2])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := a.openStore(ctx, a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()

			scoreA, scoreB, err := s.Record(ctx, args[0], args[1], winner, reasoning)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %.4f  %s: %.4f\n", args[0], scoreA, args[1], scoreB)
			return nil
		},
	}
	cmd.Flags().StringVar(&reasoning, "reasoning", "manual judgment", "reasoning stored with the comparison")
	return cmd
}

func percent(f float64) string { return fmt.Sprintf("%.1f%%", f*100) }
