package feed

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/pauljones0/dealboard/internal/models"
)

func makeDeals(perCategory map[string]int) []models.Deal {
	var deals []models.Deal
	cats := make([]string, 0, len(perCategory))
	for c := range perCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		for i := 0; i < perCategory[c]; i++ {
			deals = append(deals, models.Deal{ID: fmt.Sprintf("%s-%d", c, i), Category: c})
		}
	}
	return deals
}

func ids(deals []models.Deal) []string {
	out := make([]string, len(deals))
	for i, d := range deals {
		out[i] = d.ID
	}
	sort.Strings(out)
	return out
}

func TestInterleave_IsPermutation(t *testing.T) {
	inputs := [][]models.Deal{
		nil,
		makeDeals(map[string]int{"food": 1}),
		makeDeals(map[string]int{"food": 7, "travel": 2, "": 3}),
		makeDeals(map[string]int{"a": 1, "b": 1, "c": 1, "d": 10}),
	}
	for seed := uint64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*31+7))
		for _, in := range inputs {
			got := Interleave(in, rng)
			if len(got) != len(in) {
				t.Fatalf("seed %d: len = %d, want %d", seed, len(got), len(in))
			}
			want, have := ids(in), ids(got)
			for i := range want {
				if want[i] != have[i] {
					t.Fatalf("seed %d: ids differ: %v vs %v", seed, have, want)
				}
			}
		}
	}
}

func TestInterleave_FirstPassCoversEveryCategory(t *testing.T) {
	deals := makeDeals(map[string]int{"food": 5, "travel": 5, "tech": 5})
	for seed := uint64(0); seed < 50; seed++ {
		got := Interleave(deals, rand.New(rand.NewPCG(seed, 99)))
		seen := map[string]bool{}
		for _, d := range got[:3] {
			seen[d.Category] = true
		}
		if len(seen) != 3 {
			t.Fatalf("seed %d: first 3 categories = %v", seed, got[:3])
		}
	}
}

func TestInterleave_EmptyCategoryIsAGroup(t *testing.T) {
	deals := makeDeals(map[string]int{"": 3, "food": 1})
	got := Interleave(deals, rand.New(rand.NewPCG(1, 2)))
	seen := map[string]bool{got[0].Category: true, got[1].Category: true}
	if !seen[""] || !seen["food"] {
		t.Errorf("first two should span both groups, got %q and %q", got[0].Category, got[1].Category)
	}
}

func TestInterleave_DoesNotAliasInput(t *testing.T) {
	deals := makeDeals(map[string]int{"a": 3, "b": 3})
	before := make([]string, len(deals))
	for i, d := range deals {
		before[i] = d.ID
	}
	Interleave(deals, rand.New(rand.NewPCG(5, 5)))
	for i, d := range deals {
		if d.ID != before[i] {
			t.Fatalf("input reordered at %d: %s != %s", i, d.ID, before[i])
		}
	}
}

func TestInterleave_NilShuffler(t *testing.T) {
	deals := makeDeals(map[string]int{"a": 2, "b": 2})
	if got := Interleave(deals, nil); len(got) != 4 {
		t.Errorf("len = %d, want 4", len(got))
	}
}

func TestInterleave_SameSeedSameOrder(t *testing.T) {
	deals := makeDeals(map[string]int{"a": 4, "b": 4, "c": 2})
	first := Interleave(deals, rand.New(rand.NewPCG(42, 42)))
	second := Interleave(deals, rand.New(rand.NewPCG(42, 42)))
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("orders differ at %d", i)
		}
	}
}
