package application_test

import (
	"context"
	"fmt"
	"log"

	"github.com/ahrav/go-pairank/infrastructure/judge"
	"github.com/ahrav/go-pairank/infrastructure/store"
	"github.com/ahrav/go-pairank/internal/application"
	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/rating"
	"github.com/ahrav/go-pairank/internal/selection"
	"github.com/ahrav/go-pairank/internal/testutils"
)

// A new candidate is judged against an existing population and lands on
// the shared scale. The oracle here prefers the larger strength marker; a
// real deployment passes an llm.Client instead.
func ExampleOrchestrator_Evaluate() {
	ctx := context.Background()

	s, err := store.Open(ctx, store.MemoryPath, rating.NewBTMM(0, 0))
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	payloads := testutils.NewMemoryPayloads(map[string]string{
		"baseline": "strength=1",
		"tweak":    "strength=2",
		"rewrite":  "strength=9",
	})
	if _, _, err := s.Record(ctx, "baseline", "tweak", domain.WinnerB, "tweak is cleaner"); err != nil {
		log.Fatal(err)
	}

	j, err := judge.New(&testutils.StrengthOracle{})
	if err != nil {
		log.Fatal(err)
	}
	sel, err := selection.New(s)
	if err != nil {
		log.Fatal(err)
	}
	orch, err := application.NewOrchestrator(s, j, sel, payloads,
		application.EvaluationConfig{NumComparisons: 2})
	if err != nil {
		log.Fatal(err)
	}

	res, err := orch.Evaluate(ctx, "rewrite", "Make the parser faster")
	if err != nil {
		log.Fatal(err)
	}
	top, err := s.Rankings(ctx, domain.RankingQuery{TopN: 1})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s: %d wins, %d losses over %d comparisons\n",
		res.CandidateID, res.Wins, res.Losses, res.TotalComparisons)
	fmt.Println("leader:", top[0].CandidateID)
	// Output:
	// rewrite: 2 wins, 0 losses over 2 comparisons
	// leader: rewrite
}
