package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-pairank/infrastructure/judge"
	"github.com/ahrav/go-pairank/infrastructure/llm"
	"github.com/ahrav/go-pairank/infrastructure/middleware"
	"github.com/ahrav/go-pairank/infrastructure/scm"
	"github.com/ahrav/go-pairank/internal/application"
	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/ports"
	"github.com/ahrav/go-pairank/internal/selection"
)

// Transport retry backoff bounds.
const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

// newOracle builds the configured provider client wrapped in the transport
// middleware, then the budget guard when a budget is set.
func (a *app) newOracle() (ports.Oracle, error) {
	jc := a.cfg.Judge
	key := os.Getenv(jc.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: $%s is not set", llm.ErrEmptyAPIKey, jc.APIKeyEnv)
	}

	mw := []llm.Middleware{
		llm.TracingMiddleware("pairank"),
		llm.MetricsMiddleware(a.metrics),
	}
	if jc.CircuitBreakerFailures > 0 {
		mw = append(mw, llm.CircuitBreakerMiddleware(jc.CircuitBreakerFailures, jc.CircuitBreakerCooldown))
	}
	if jc.MaxTransportRetries > 0 {
		mw = append(mw, llm.RetryMiddleware(jc.MaxTransportRetries, retryBaseDelay, retryMaxDelay))
	}
	if jc.RequestsPerSecond > 0 {
		mw = append(mw, llm.RateLimitMiddleware(rate.Limit(jc.RequestsPerSecond), 1))
	}
	if jc.Timeout > 0 {
		mw = append(mw, llm.TimeoutMiddleware(jc.Timeout))
	}

	temperature := jc.Temperature
	client, err := llm.NewClient(llm.Config{
		Provider:    jc.Provider,
		APIKey:      key,
		Model:       jc.Model,
		BaseURL:     jc.BaseURL,
		Timeout:     jc.Timeout,
		MaxTokens:   jc.MaxTokens,
		Temperature: &temperature,
		Middleware:  mw,
	})
	if err != nil {
		return nil, err
	}
	if !jc.Budget.Limited() {
		return client, nil
	}
	return middleware.NewBudgetGuard(jc.Budget, client,
		middleware.NewOTelBudgetObserver(a.metrics, client.Model()))
}

func (a *app) newJudge() (*judge.Judge, error) {
	oracle, err := a.newOracle()
	if err != nil {
		return nil, err
	}
	// judge.system_prompt is an optional override read by key; it has no
	// typed field in Config.
	return judge.New(oracle,
		judge.WithMaxParseRetries(a.cfg.Judge.MaxParseRetries),
		judge.WithSystemPrompt(a.reader.String("judge.system_prompt", "")),
		judge.WithMetrics(a.metrics),
	)
}

func (a *app) openRepo() (*scm.Repo, *application.GitPayloadSource, error) {
	repo, err := scm.Open(a.cfg.Git.RepoPath)
	if err != nil {
		return nil, nil, err
	}
	return repo, application.NewGitPayloadSource(repo, a.cfg.Git, a.cfg.Evaluation.MaxDiffChars), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newJudgeCmd(a *app) *cobra.Command {
	var task string
	cmd := &cobra.Command{
		Use:   "judge <fileA> <fileB>",
		Short: "Judge two files once and print the judgment; nothing is stored",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			texts := make([]string, 2)
			for i, p := range args {
				b, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				texts[i] = string(b)
			}
			if task == "" {
				task = a.cfg.Evaluation.TaskSpec
			}

			j, err := a.newJudge()
			if err != nil {
				return err
			}
			res, err := j.CompareDetailed(cmd.Context(), judge.Request{
				TaskSpec:   task,
				CandidateA: texts[0],
				CandidateB: texts[1],
				Context: map[string]any{
					judge.ObjectiveKey: task,
					"file_a":           filepath.Base(args[0]),
					"file_b":           filepath.Base(args[1]),
				},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "task description given to the judge (default evaluation.task_spec)")
	return cmd
}

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		promptFile, parent, task string
		comparisons              int
	)
	cmd := &cobra.Command{
		Use:   "evaluate <id>",
		Short: "Place a candidate on the scale by judging it against selected opponents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]
			log := clog.FromContext(ctx).With("candidate", id)

			repo, payloads, err := a.openRepo()
			if err != nil {
				return err
			}

			if promptFile != "" {
				if err := a.build(ctx, repo, id, promptFile, parent); err != nil {
					return err
				}
			} else {
				ok, err := payloads.Available(ctx, id)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: branch %s does not exist", ports.ErrPayloadUnavailable, payloads.Branch(id))
				}
			}

			s, err := a.openStore(ctx, a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()

			j, err := a.newJudge()
			if err != nil {
				return err
			}
			sel, err := selection.New(s)
			if err != nil {
				return err
			}
			orch, err := application.NewOrchestrator(s, j, sel, payloads, a.cfg.Evaluation,
				application.WithOrchestratorMetrics(a.metrics))
			if err != nil {
				return err
			}

			budget := a.cfg.Evaluation.NumComparisons
			if cmd.Flags().Changed("comparisons") {
				budget = comparisons
			}
			res, err := orch.EvaluateN(ctx, id, task, budget)
			if err != nil {
				return err
			}
			log.With("judge", j.Stats().Comparisons).With("cost", j.Stats().Cost).Debug("Judge totals")
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&promptFile, "prompt-file", "", "build the candidate from this prompt before evaluating")
	f.StringVar(&parent, "parent", "", "branch to build from (default git.default_branch)")
	f.IntVar(&comparisons, "comparisons", 0, "comparison budget (default evaluation.num_comparisons)")
	f.StringVar(&task, "task", "", "task description given to the judge (default evaluation.task_spec)")
	return cmd
}

// build runs the candidate builder. It needs an agent runner, which the
// stock CLI does not provide.
func (a *app) build(ctx context.Context, repo ports.SourceControl, id, promptFile, parent string) error {
	if a.agent == nil {
		return errors.New("--prompt-file needs a coding agent and none is configured")
	}
	prompt, err := os.ReadFile(promptFile)
	if err != nil {
		return err
	}
	b, err := application.NewCandidateBuilder(repo, a.agent, a.cfg.Git)
	if err != nil {
		return err
	}
	res, err := b.Build(ctx, id, string(prompt), parent)
	if err != nil {
		return err
	}
	if !res.Agent.Success {
		return fmt.Errorf("coding agent failed on %s: %s", res.Branch, res.Agent.Error)
	}
	return nil
}

func newRejudgeCmd(a *app) *cobra.Command {
	var (
		source string
		opts   application.RejudgeOptions
	)
	cmd := &cobra.Command{
		Use:   "rejudge --source DB",
		Short: "Re-judge every pair of a source database into --db",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if source == "" {
				return errors.New("--source is required")
			}
			if sameFile(source, a.cfg.Store.Path) {
				return fmt.Errorf("source and output database are both %s", source)
			}
			if _, err := os.Stat(source); err != nil {
				return fmt.Errorf("source database: %w", err)
			}

			_, payloads, err := a.openRepo()
			if err != nil {
				return err
			}
			src, err := a.openStore(ctx, source)
			if err != nil {
				return err
			}
			defer src.Close()

			var out ports.ComparisonStore = src
			var j application.Judge = dryRunJudge{}
			if !opts.DryRun {
				dst, err := a.openStore(ctx, a.cfg.Store.Path)
				if err != nil {
					return err
				}
				defer dst.Close()
				out = dst
				if j, err = a.newJudge(); err != nil {
					return err
				}
			}

			r, err := application.NewRejudger(src, out, j, payloads, a.cfg.Evaluation.TaskSpec)
			if err != nil {
				return err
			}
			report, err := r.Run(ctx, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	f := cmd.Flags()
	f.StringVar(&source, "source", "", "database whose pairs are re-judged")
	f.IntVar(&opts.Limit, "limit", 0, "re-judge at most this many pairs")
	f.BoolVar(&opts.Resume, "resume", false, "skip pairs already in the output database")
	f.BoolVar(&opts.DryRun, "dry-run", false, "list pairs and payload availability without judging")
	return cmd
}

// dryRunJudge stands in for the oracle-backed judge during a dry run,
// which never judges.
type dryRunJudge struct{}

func (dryRunJudge) CompareDetailed(context.Context, judge.Request) (domain.Judgment, error) {
	return domain.Judgment{}, errors.New("dry run does not judge")
}

func (dryRunJudge) Model() string { return "dry-run" }

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
