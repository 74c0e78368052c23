package runtime

import (
	"sort"

	errspkg "github.com/heraldbus/herald/internal/runtime/errors"
)

// SortByPlacement turns a set of contributions into a total chain order. It
// is pure and deterministic for a fixed input: ties break by (Order,
// Priority) and finally by insertion order via stable sorting.
//
// Resolution proceeds in four stages: First anchors, then Ordered items,
// then iterative insertion of Before/After/Replace relative to already
// placed targets, then the tail (unresolved relatives and missing-target
// relatives by Priority, Last anchors at the very end). The relative pass is
// bounded at twice the number of pending items; leftovers degrade to the
// tail and are reported through the returned CircularPlacementWarning
// instead of failing the resolution.
func SortByPlacement(contributions []Contribution) ([]Contribution, *errspkg.CircularPlacementWarning, error) {
	seen := make(map[string]struct{}, len(contributions))
	for _, c := range contributions {
		if _, dup := seen[c.ID]; dup {
			return nil, nil, &errspkg.DuplicateContributionError{ID: c.ID}
		}
		seen[c.ID] = struct{}{}
	}

	var firsts, ordereds, relatives, lasts []Contribution
	for _, c := range contributions {
		switch c.Placement.Kind {
		case PlacementFirst:
			firsts = append(firsts, c)
		case PlacementLast:
			lasts = append(lasts, c)
		case PlacementBefore, PlacementAfter, PlacementReplace:
			relatives = append(relatives, c)
		default:
			ordereds = append(ordereds, c)
		}
	}

	byOrderThenPriority := func(s []Contribution) {
		sort.SliceStable(s, func(i, j int) bool {
			if s[i].Placement.Order != s[j].Placement.Order {
				return s[i].Placement.Order < s[j].Placement.Order
			}
			return s[i].Priority < s[j].Priority
		})
	}
	byOrderThenPriority(firsts)
	byOrderThenPriority(ordereds)
	byOrderThenPriority(lasts)

	result := make([]Contribution, 0, len(contributions))
	result = append(result, firsts...)
	result = append(result, ordereds...)

	indexOf := func(id string) int {
		for i, c := range result {
			if c.ID == id {
				return i
			}
		}
		return -1
	}

	// Fixed-point insertion of relative placements. Each pass places every
	// contribution whose target is already in the result; chains of
	// relatives resolve across passes. The iteration cap breaks mutual
	// placement cycles.
	maxPasses := 2 * len(relatives)
	for pass := 0; pass < maxPasses && len(relatives) > 0; pass++ {
		progress := false
		pending := relatives[:0:0]
		for _, c := range relatives {
			at := indexOf(c.Placement.Target)
			if at < 0 {
				pending = append(pending, c)
				continue
			}
			switch c.Placement.Kind {
			case PlacementBefore:
				result = insertAt(result, at, c)
			case PlacementAfter:
				result = insertAt(result, at+1, c)
			case PlacementReplace:
				result[at] = c
			}
			progress = true
		}
		relatives = pending
		if !progress {
			break
		}
	}

	var warning *errspkg.CircularPlacementWarning
	if len(relatives) > 0 {
		// Leftovers split two ways: relatives whose target exists somewhere
		// in the input formed a cycle and are worth warning about; the rest
		// simply named a target that was never registered and degrade
		// silently to Ordered semantics.
		var cyclic []string
		for _, c := range relatives {
			if _, exists := seen[c.Placement.Target]; exists {
				cyclic = append(cyclic, c.ID)
			}
		}
		if len(cyclic) > 0 {
			warning = &errspkg.CircularPlacementWarning{IDs: cyclic}
		}

		tail := append([]Contribution(nil), relatives...)
		sort.SliceStable(tail, func(i, j int) bool {
			return tail[i].Priority < tail[j].Priority
		})
		result = append(result, tail...)
	}

	result = append(result, lasts...)
	return result, warning, nil
}

func insertAt(s []Contribution, at int, c Contribution) []Contribution {
	s = append(s, Contribution{})
	copy(s[at+1:], s[at:])
	s[at] = c
	return s
}
