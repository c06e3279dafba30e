package util

import (
	"math"
	"testing"
)

func TestNewStats(t *testing.T) {
	s := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if s.Mean != 5 {
		t.Errorf("Expected mean 5, got %v", s.Mean)
	}
	if s.StdDeviation != 2 {
		t.Errorf("Expected std deviation 2, got %v", s.StdDeviation)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Errorf("Expected min 2 and max 9, got %v and %v", s.Min, s.Max)
	}

	if empty := NewStats(nil); empty != (Stats{}) {
		t.Errorf("Expected zero stats for no samples, got %+v", empty)
	}
}

func TestDistributionQuality(t *testing.T) {
	even := NewDistributionStats([]float64{3, 3, 3, 3})
	if math.Abs(even.DistributionQuality-1) > 1e-9 {
		t.Errorf("Expected quality 1 for an even distribution, got %v", even.DistributionQuality)
	}

	skewed := NewDistributionStats([]float64{12, 0, 0, 0})
	if skewed.DistributionQuality >= even.DistributionQuality {
		t.Errorf("Expected skewed quality %v to be below even quality %v", skewed.DistributionQuality, even.DistributionQuality)
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") != HashString("abc") {
		t.Error("HashString must be deterministic")
	}
	// FNV-1a offset basis for the empty string
	if HashString("") != 14695981039346656037 {
		t.Errorf("Unexpected hash for empty string: %d", HashString(""))
	}
}
