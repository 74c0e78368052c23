package runtime

import (
	"errors"
	"testing"

	errspkg "github.com/heraldbus/herald/internal/runtime/errors"
)

func noopBehavior() Behavior {
	return BehaviorFunc(func(ctx *Context, next Chain) (any, error) {
		return next.Proceed(ctx)
	})
}

func contribution(id string, p Placement) Contribution {
	return Contribution{ID: id, Name: id, Behavior: noopBehavior(), Placement: p}
}

func idsOf(contribs []Contribution) []string {
	out := make([]string, len(contribs))
	for i, c := range contribs {
		out[i] = c.ID
	}
	return out
}

func assertOrder(t *testing.T, got []Contribution, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d contributions, got %v", len(want), idsOf(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("position %d: expected %q, got %v", i, want[i], idsOf(got))
		}
	}
}

func TestSortByPlacementAnchors(t *testing.T) {
	t.Parallel()

	input := []Contribution{
		contribution("tail", Last()),
		contribution("mid-b", Ordered(20)),
		contribution("head", First()),
		contribution("mid-a", Ordered(10)),
	}

	got, warning, err := SortByPlacement(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warning != nil {
		t.Fatalf("unexpected warning: %v", warning)
	}
	assertOrder(t, got, "head", "mid-a", "mid-b", "tail")
}

func TestSortByPlacementDeterminism(t *testing.T) {
	t.Parallel()

	input := []Contribution{
		contribution("a", Ordered(5)),
		contribution("b", Ordered(5)),
		contribution("c", First()),
		contribution("d", Before("a")),
		contribution("e", Last()),
	}

	first, _, err := SortByPlacement(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _, err := SortByPlacement(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertOrder(t, second, idsOf(first)...)
}

func TestSortByPlacementRelative(t *testing.T) {
	t.Parallel()

	input := []Contribution{
		contribution("a", Ordered(0)),
		contribution("b", Before("a")),
		contribution("c", After("a")),
	}

	got, warning, err := SortByPlacement(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warning != nil {
		t.Fatalf("unexpected warning: %v", warning)
	}
	assertOrder(t, got, "b", "a", "c")
}

func TestSortByPlacementRelativeChain(t *testing.T) {
	t.Parallel()

	// d targets c, which itself only exists after b is placed relative to a.
	input := []Contribution{
		contribution("a", Ordered(0)),
		contribution("b", After("a")),
		contribution("c", After("b")),
		contribution("d", Before("c")),
	}

	got, _, err := SortByPlacement(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertOrder(t, got, "a", "b", "d", "c")
}

func TestSortByPlacementReplace(t *testing.T) {
	t.Parallel()

	input := []Contribution{
		contribution("a", Ordered(0)),
		contribution("b", Ordered(1)),
		contribution("patch", Replace("a")),
	}

	got, _, err := SortByPlacement(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertOrder(t, got, "patch", "b")
}

func TestSortByPlacementMissingTargetDegrades(t *testing.T) {
	t.Parallel()

	input := []Contribution{
		contribution("a", Ordered(0)),
		contribution("orphan", Before("missing-id")),
		contribution("z", Last()),
	}

	got, warning, err := SortByPlacement(input)
	if err != nil {
		t.Fatalf("expected graceful degradation, got %v", err)
	}
	if warning != nil {
		t.Fatalf("missing targets must not warn, got %v", warning)
	}
	assertOrder(t, got, "a", "orphan", "z")

	count := 0
	for _, c := range got {
		if c.ID == "orphan" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("orphan should appear exactly once, got %d", count)
	}
}

func TestSortByPlacementCycleDegradesWithWarning(t *testing.T) {
	t.Parallel()

	input := []Contribution{
		contribution("a", Before("b")),
		contribution("b", After("a")),
		contribution("base", Ordered(0)),
	}

	got, warning, err := SortByPlacement(input)
	if err != nil {
		t.Fatalf("cycles must degrade, not fail: %v", err)
	}
	if warning == nil || len(warning.IDs) != 2 {
		t.Fatalf("expected a warning naming both cycle members, got %v", warning)
	}
	if len(got) != 3 {
		t.Fatalf("all contributions must survive degradation, got %v", idsOf(got))
	}
}

func TestSortByPlacementDuplicateID(t *testing.T) {
	t.Parallel()

	input := []Contribution{
		contribution("dup", Ordered(0)),
		contribution("dup", Ordered(1)),
	}

	_, _, err := SortByPlacement(input)
	var dupErr *errspkg.DuplicateContributionError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateContributionError, got %v", err)
	}
	if dupErr.ID != "dup" {
		t.Fatalf("expected offending id, got %q", dupErr.ID)
	}
}

func TestSortByPlacementPriorityTieBreak(t *testing.T) {
	t.Parallel()

	input := []Contribution{
		{ID: "low", Behavior: noopBehavior(), Placement: Ordered(0), Priority: 10},
		{ID: "high", Behavior: noopBehavior(), Placement: Ordered(0), Priority: 1},
	}

	got, _, err := SortByPlacement(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertOrder(t, got, "high", "low")
}
