package battery

import (
	"math"
	"testing"
)

type fixedLoss float64

func (f fixedLoss) InstantaneousLossPower() float64 { return float64(f) }

func TestCouplerPower(t *testing.T) {
	cases := []struct {
		loss float64
		want float64
	}{
		{12.5, 12.5},
		{0, 0},
		{-3, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, c := range cases {
		got := NewCoupler(fixedLoss(c.loss), nil).Power()
		if got != c.want {
			t.Fatalf("loss %v: expected %v, got %v", c.loss, c.want, got)
		}
	}
}
