package application

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/ports"
)

// BuildResult describes the branch a candidate was built on.
type BuildResult struct {
	Branch string `json:"branch"`
	// Created is false when the branch already existed and was reused.
	Created   bool              `json:"created"`
	Committed bool              `json:"committed"`
	Agent     ports.AgentResult `json:"agent"`
}

// CandidateBuilder turns a prompt into a candidate branch by running a
// coding agent on a fresh branch and committing what it changed.
type CandidateBuilder struct {
	repo          ports.SourceControl
	agent         ports.AgentRunner
	branchPrefix  string
	defaultBranch string
}

// NewCandidateBuilder returns a builder that creates branches in repo.
func NewCandidateBuilder(repo ports.SourceControl, agent ports.AgentRunner, cfg GitConfig) (*CandidateBuilder, error) {
	verr := domain.NewValidationError("CandidateBuilder")
	if repo == nil {
		verr.AddError("source control is required")
	}
	if agent == nil {
		verr.AddError("agent runner is required")
	}
	if verr.HasErrors() {
		return nil, verr
	}
	b := &CandidateBuilder{
		repo:          repo,
		agent:         agent,
		branchPrefix:  cfg.BranchPrefix,
		defaultBranch: cfg.DefaultBranch,
	}
	if b.defaultBranch == "" {
		b.defaultBranch = DefaultBranch
	}
	return b, nil
}

// Build checks out the candidate's branch, creating it from parentBranch
// (or the default branch) when needed, then applies prompt with the agent.
// An agent failure is reported in the result rather than as an error.
func (b *CandidateBuilder) Build(ctx context.Context, candidateID, prompt, parentBranch string) (BuildResult, error) {
	if candidateID == "" || prompt == "" {
		verr := domain.NewValidationError("Build")
		if candidateID == "" {
			verr.AddError("candidate id is required")
		}
		if prompt == "" {
			verr.AddError("prompt is required")
		}
		return BuildResult{}, verr
	}

	from := parentBranch
	if from == "" {
		from = b.defaultBranch
	}
	res := BuildResult{Branch: b.branchPrefix + candidateID}
	log := clog.FromContext(ctx).With("candidate", candidateID).With("branch", res.Branch)

	created, err := b.repo.CreateBranch(ctx, res.Branch, from)
	if err != nil {
		return res, fmt.Errorf("create branch %s from %s: %w", res.Branch, from, err)
	}
	res.Created = created
	if !created {
		log.Info("Branch already exists, checking it out")
	}
	if err := b.repo.Checkout(ctx, res.Branch); err != nil {
		return res, fmt.Errorf("checkout %s: %w", res.Branch, err)
	}

	agentRes, err := b.agent.Execute(ctx, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		agentRes = ports.AgentResult{Success: false, Error: err.Error(), ExitCode: -1}
	}
	res.Agent = agentRes
	if !agentRes.Success {
		log.With("error", agentRes.Error).Warn("Coding agent failed")
	}

	if agentRes.ChangesMade {
		committed, err := b.repo.CommitAll(ctx, "Evolution: "+candidateID)
		if err != nil {
			return res, fmt.Errorf("commit %s: %w", res.Branch, err)
		}
		res.Committed = committed
	}
	return res, nil
}
