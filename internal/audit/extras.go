package audit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chronicle-audit/backend/internal/models"
)

// NormalizeExtras resolves dotted attribute references against the entity's
// current state document, merges in manual pairs, and returns a deduplicated
// pair set. References walk nested maps segment by segment; the final segment
// is the field name. The result is sorted so identical inputs always produce
// identical output.
func NormalizeExtras(doc models.StateBlob, refs []string, manual []models.ExtraPair) ([]models.ExtraPair, error) {
	var pairs []models.ExtraPair

	for _, ref := range refs {
		pair, err := resolveRef(doc, ref)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	pairs = append(pairs, manual...)

	// Identical (field, value) pairs collapse to one, first occurrence kept.
	seen := make(map[models.ExtraPair]struct{}, len(pairs))
	unique := pairs[:0]
	for _, p := range pairs {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}

	sort.Slice(unique, func(i, j int) bool {
		if unique[i].Field != unique[j].Field {
			return unique[i].Field < unique[j].Field
		}
		return unique[i].Value < unique[j].Value
	})
	return unique, nil
}

func resolveRef(doc models.StateBlob, ref string) (models.ExtraPair, error) {
	segments := strings.Split(ref, ".")
	field := segments[len(segments)-1]

	cursor := doc
	for _, step := range segments[:len(segments)-1] {
		next, ok := cursor[step]
		if !ok {
			return models.ExtraPair{}, validationf("%q in extra reference %q is not a valid attribute", step, ref)
		}
		switch v := next.(type) {
		case map[string]any:
			cursor = v
		case models.StateBlob:
			cursor = v
		default:
			return models.ExtraPair{}, validationf("%q in extra reference %q does not resolve to a nested object", step, ref)
		}
	}

	value, ok := cursor[field]
	if !ok {
		return models.ExtraPair{}, validationf("attribute %q in extra reference %q does not exist", field, ref)
	}
	return models.ExtraPair{Field: field, Value: fmt.Sprint(value)}, nil
}

// pairSetsEqual compares two normalized pair slices as sets. Any asymmetric
// difference counts as inequality.
func pairSetsEqual(a, b []models.ExtraPair) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[models.ExtraPair]int, len(a))
	for _, p := range a {
		counts[p]++
	}
	for _, p := range b {
		counts[p]--
		if counts[p] < 0 {
			return false
		}
	}
	return true
}
