package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-pairank/internal/domain"
)

func TestELOUpdate(t *testing.T) {
	e := NewELO(0, 0)

	tests := []struct {
		name   string
		ra, rb float64
		winner domain.Winner
		wantA  float64
		wantB  float64
	}{
		{name: "even win", ra: 1500, rb: 1500, winner: domain.WinnerA, wantA: 1516, wantB: 1484},
		{name: "even loss", ra: 1500, rb: 1500, winner: domain.WinnerB, wantA: 1484, wantB: 1516},
		{name: "even tie", ra: 1500, rb: 1500, winner: domain.WinnerTie, wantA: 1500, wantB: 1500},
		// Expected score for a 400 point favorite is 10/11.
		{name: "favorite wins", ra: 1900, rb: 1500, winner: domain.WinnerA, wantA: 1900 + 32.0/11, wantB: 1500 - 32.0/11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := e.Update(tt.ra, tt.rb, tt.winner)
			assert.InDelta(t, tt.wantA, a, 1e-9)
			assert.InDelta(t, tt.wantB, b, 1e-9)
		})
	}
}

func TestELOZeroSum(t *testing.T) {
	e := NewELO(1500, 32)
	ratings := []float64{1500, 1620, 1380, 1777}
	for i := range ratings {
		for j := range ratings {
			if i == j {
				continue
			}
			for _, w := range []domain.Winner{domain.WinnerA, domain.WinnerB, domain.WinnerTie} {
				a, b := e.Update(ratings[i], ratings[j], w)
				assert.InDelta(t, ratings[i]+ratings[j], a+b, 1e-9)
			}
		}
	}
}

func TestExpected(t *testing.T) {
	assert.InDelta(t, 0.5, Expected(1500, 1500), 1e-12)
	assert.InDelta(t, 1.0, Expected(1600, 1400)+Expected(1400, 1600), 1e-12)
}
