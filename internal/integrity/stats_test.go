package integrity

import (
	"math"
	"testing"
)

func TestWilsonLowerBound_RewardsSampleSize(t *testing.T) {
	// 3-for-3 looks perfect but proves little; 650/1000 at a 65% rate
	// proves a lot. The lower bound must rank the latter far higher.
	small := WilsonLowerBound(3, 3, 1.96)
	large := WilsonLowerBound(650, 1000, 1.96)

	if small >= large {
		t.Errorf("Expected 650/1000 bound > 3/3 bound, got %.4f vs %.4f", large, small)
	}
	// 3/3 at z=1.96 lands near 0.4385
	if math.Abs(small-0.4385) > 0.001 {
		t.Errorf("Expected 3/3 bound ≈ 0.4385, got %.4f", small)
	}
	// 650/1000 lands near 0.6199
	if math.Abs(large-0.6199) > 0.001 {
		t.Errorf("Expected 650/1000 bound ≈ 0.6199, got %.4f", large)
	}
}

func TestWilsonLowerBound_Monotonicity(t *testing.T) {
	// Fixed n: more wins never lowers the bound.
	prev := -1.0
	for wins := int64(0); wins <= 100; wins += 5 {
		b := WilsonLowerBound(wins, 100, 1.96)
		if b < prev {
			t.Fatalf("Bound decreased at wins=%d: %.6f < %.6f", wins, b, prev)
		}
		prev = b
	}

	// Fixed rate: more evidence at the same rate never lowers the bound.
	prev = -1.0
	for n := int64(10); n <= 10000; n *= 10 {
		b := WilsonLowerBound(n*6/10, n, 1.96)
		if b < prev {
			t.Fatalf("Bound decreased at n=%d: %.6f < %.6f", n, b, prev)
		}
		prev = b
	}
}

func TestWilsonLowerBound_DegenerateInput(t *testing.T) {
	cases := []struct {
		name        string
		wins, total int64
		z           float64
	}{
		{"zero total", 0, 0, 1.96},
		{"negative total", 5, -1, 1.96},
		{"negative wins", -5, 10, 1.96},
		{"zero z", 5, 10, 0},
	}
	for _, tc := range cases {
		if got := WilsonLowerBound(tc.wins, tc.total, tc.z); got != 0 {
			t.Errorf("%s: expected 0, got %.4f", tc.name, got)
		}
	}

	// Wins above total clamp rather than exceeding 1.
	if got := WilsonLowerBound(20, 10, 1.96); got > 1 {
		t.Errorf("Expected clamped bound <= 1, got %.4f", got)
	}
}

func TestWinRateZScore(t *testing.T) {
	// 70/100: pHat=0.7, std=sqrt(0.25/100)=0.05, z=(0.7-0.5)/0.05=4.0
	if z := WinRateZScore(70, 100); math.Abs(z-4.0) > 1e-9 {
		t.Errorf("Expected z=4.0 for 70/100, got %.6f", z)
	}
	// 50/100 is exactly the baseline
	if z := WinRateZScore(50, 100); z != 0 {
		t.Errorf("Expected z=0 for 50/100, got %.6f", z)
	}
	// Losing streaks go negative
	if z := WinRateZScore(30, 100); z >= 0 {
		t.Errorf("Expected negative z for 30/100, got %.6f", z)
	}
	if z := WinRateZScore(5, 0); z != 0 {
		t.Errorf("Expected z=0 for empty sample, got %.6f", z)
	}
}

func TestSharpeRatio_FlatSeriesIsZero(t *testing.T) {
	// Zero volatility carries no consistency signal.
	if s := sharpeRatio([]float64{0.1, 0.1, 0.1, 0.1, 0.1}); s != 0 {
		t.Errorf("Expected 0 for flat series, got %.4f", s)
	}
	if s := sharpeRatio(nil); s != 0 {
		t.Errorf("Expected 0 for empty series, got %.4f", s)
	}
	// Steady positive returns with mild variance score positive.
	if s := sharpeRatio([]float64{0.05, 0.08, 0.06, 0.07, 0.05}); s <= 0 {
		t.Errorf("Expected positive sharpe, got %.4f", s)
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(math.NaN(), 0, 100); got != 0 {
		t.Errorf("Expected NaN to clamp to floor, got %.4f", got)
	}
	if got := clamp(-5, 0, 100); got != 0 {
		t.Errorf("Expected -5 to clamp to 0, got %.4f", got)
	}
	if got := clamp(150, 0, 100); got != 100 {
		t.Errorf("Expected 150 to clamp to 100, got %.4f", got)
	}
}
