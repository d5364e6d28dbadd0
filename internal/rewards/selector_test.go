package rewards

import (
	"math/rand"
	"testing"

	"github.com/abrezinsky/voterewards/internal/models"
)

// fixedSource returns the same value from every Int63 call
type fixedSource int64

func (f fixedSource) Int63() int64 { return int64(f) }
func (f fixedSource) Seed(int64)   {}

func intPtr(i int) *int { return &i }

func TestSelect_EmptyCandidates(t *testing.T) {
	s := NewSelector(rand.NewSource(1))
	if got := s.Select(nil, nil); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestSelect_ZeroChances(t *testing.T) {
	s := NewSelector(rand.NewSource(1))
	candidates := []models.Reward{
		{ID: 1, Name: "A", Chances: 0},
		{ID: 2, Name: "B", Chances: 0},
	}

	for i := 0; i < 100; i++ {
		if got := s.Select(candidates, nil); got != nil {
			t.Fatalf("expected nil for zero total weight, got %+v", got)
		}
	}
}

func TestSelect_SingleCandidateAlwaysWins(t *testing.T) {
	s := NewSelector(rand.NewSource(42))
	candidates := []models.Reward{{ID: 7, Name: "Diamond", Chances: 0.001}}

	for i := 0; i < 100; i++ {
		got := s.Select(candidates, nil)
		if got == nil || got.ID != 7 {
			t.Fatalf("expected reward 7, got %+v", got)
		}
	}
}

func TestSelect_FiltersByServer(t *testing.T) {
	s := NewSelector(rand.NewSource(3))
	candidates := []models.Reward{
		{ID: 1, Name: "A", Chances: 50, Servers: []int{1}},
		{ID: 2, Name: "B", Chances: 50, Servers: []int{2}},
	}

	for i := 0; i < 200; i++ {
		got := s.Select(candidates, intPtr(1))
		if got == nil || got.ID != 1 {
			t.Fatalf("expected only A on server 1, got %+v", got)
		}
	}
}

func TestSelect_NoEligibleReward(t *testing.T) {
	s := NewSelector(rand.NewSource(3))
	candidates := []models.Reward{{ID: 1, Name: "A", Chances: 50, Servers: []int{2}}}

	if got := s.Select(candidates, intPtr(1)); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestSelect_EmptyServerListIsEligibleEverywhere(t *testing.T) {
	s := NewSelector(rand.NewSource(3))
	candidates := []models.Reward{{ID: 1, Name: "Global", Chances: 10}}

	if got := s.Select(candidates, intPtr(99)); got == nil || got.ID != 1 {
		t.Errorf("expected global reward, got %+v", got)
	}
}

func TestSelect_NilServerSkipsFiltering(t *testing.T) {
	s := NewSelector(rand.NewSource(3))
	candidates := []models.Reward{{ID: 1, Name: "A", Chances: 10, Servers: []int{5}}}

	if got := s.Select(candidates, nil); got == nil || got.ID != 1 {
		t.Errorf("expected A without server filter, got %+v", got)
	}
}

func TestSelect_DrawWalksInInputOrder(t *testing.T) {
	candidates := []models.Reward{
		{ID: 1, Name: "A", Chances: 25}, // 25000
		{ID: 2, Name: "B", Chances: 75}, // 75000
	}

	// Int63n(total) reduces the fixed value modulo total, so pick values around the boundary.
	tests := []struct {
		name     string
		value    int64
		expected int
	}{
		{"first slot", 0, 1},
		{"last of A", 24999, 1},
		{"first of B", 25000, 2},
		{"last of B", 99999, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(fixedSource(tt.value))
			got := s.Select(candidates, nil)
			if got == nil || got.ID != tt.expected {
				t.Errorf("expected reward %d, got %+v", tt.expected, got)
			}
		})
	}
}

func TestSelect_SkipsZeroWeightReward(t *testing.T) {
	candidates := []models.Reward{
		{ID: 1, Name: "Never", Chances: 0},
		{ID: 2, Name: "Always", Chances: 5},
	}
	s := NewSelector(fixedSource(0))

	if got := s.Select(candidates, nil); got == nil || got.ID != 2 {
		t.Errorf("expected zero-weight reward to be skipped, got %+v", got)
	}
}

func TestSelect_Distribution(t *testing.T) {
	s := NewSelector(rand.NewSource(1234))
	candidates := []models.Reward{
		{ID: 1, Name: "Common", Chances: 90},
		{ID: 2, Name: "Rare", Chances: 10},
	}

	counts := map[int]int{}
	const draws = 20000
	for i := 0; i < draws; i++ {
		counts[s.Select(candidates, nil).ID]++
	}

	rare := float64(counts[2]) / draws
	if rare < 0.08 || rare > 0.12 {
		t.Errorf("expected rare reward around 10%%, got %.3f", rare)
	}
}

func TestSelect_ReturnsCopy(t *testing.T) {
	s := NewSelector(rand.NewSource(1))
	candidates := []models.Reward{{ID: 1, Name: "A", Chances: 1}}

	got := s.Select(candidates, nil)
	got.Name = "changed"
	if candidates[0].Name != "A" {
		t.Error("expected candidates to be left untouched")
	}
}

func TestWeight(t *testing.T) {
	tests := []struct {
		chances  float64
		expected int64
	}{
		{0, 0},
		{-5, 0},
		{0.001, 1},
		{12.5, 12500},
		{33.3333, 33333},
		{100, 100000},
	}

	for _, tt := range tests {
		if got := Weight(tt.chances); got != tt.expected {
			t.Errorf("Weight(%v) = %d, want %d", tt.chances, got, tt.expected)
		}
	}
}

func TestSortByChances(t *testing.T) {
	rewards := []models.Reward{
		{ID: 3, Chances: 10},
		{ID: 1, Chances: 50},
		{ID: 2, Chances: 10},
		{ID: 4, Chances: 75},
	}

	SortByChances(rewards)

	expected := []int{4, 1, 2, 3}
	for i, id := range expected {
		if rewards[i].ID != id {
			t.Fatalf("position %d: expected %d, got %d", i, id, rewards[i].ID)
		}
	}
}
