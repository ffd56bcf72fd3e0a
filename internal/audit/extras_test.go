package audit

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/chronicle-audit/backend/internal/models"
)

func TestNormalizeExtras(t *testing.T) {
	doc := models.StateBlob{
		"status": "open",
		"owner": map[string]any{
			"id": 42,
			"team": map[string]any{
				"name": "alpha",
			},
		},
	}

	tests := []struct {
		name   string
		refs   []string
		manual []models.ExtraPair
		want   []models.ExtraPair
	}{
		{
			name: "top level field",
			refs: []string{"status"},
			want: []models.ExtraPair{{Field: "status", Value: "open"}},
		},
		{
			name: "nested path",
			refs: []string{"owner.team.name", "owner.id"},
			want: []models.ExtraPair{
				{Field: "id", Value: "42"},
				{Field: "name", Value: "alpha"},
			},
		},
		{
			name:   "manual pairs merged",
			refs:   []string{"status"},
			manual: []models.ExtraPair{{Field: "region", Value: "eu"}},
			want: []models.ExtraPair{
				{Field: "region", Value: "eu"},
				{Field: "status", Value: "open"},
			},
		},
		{
			name:   "identical pairs collapse",
			refs:   []string{"status", "status"},
			manual: []models.ExtraPair{{Field: "status", Value: "open"}},
			want:   []models.ExtraPair{{Field: "status", Value: "open"}},
		},
		{
			name:   "same field different value kept",
			manual: []models.ExtraPair{{Field: "tag", Value: "a"}, {Field: "tag", Value: "b"}},
			want:   []models.ExtraPair{{Field: "tag", Value: "a"}, {Field: "tag", Value: "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeExtras(doc, tt.refs, tt.manual)
			if err != nil {
				t.Fatalf("NormalizeExtras: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeExtras = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeExtrasDeterministic(t *testing.T) {
	doc := models.StateBlob{"a": 1, "b": 2, "c": 3}
	refs := []string{"c", "a", "b"}

	first, err := NormalizeExtras(doc, refs, nil)
	if err != nil {
		t.Fatalf("NormalizeExtras: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := NormalizeExtras(doc, refs, nil)
		if err != nil {
			t.Fatalf("NormalizeExtras: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("output varies between runs: %v vs %v", first, again)
		}
	}
}

func TestNormalizeExtrasResolutionFailure(t *testing.T) {
	doc := models.StateBlob{
		"status": "open",
		"owner":  map[string]any{"id": 42},
	}

	tests := []struct {
		name string
		ref  string
	}{
		{"missing top level", "missing"},
		{"missing nested", "owner.missing"},
		{"missing step", "nowhere.id"},
		{"step through scalar", "status.id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeExtras(doc, []string{tt.ref}, nil)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("NormalizeExtras(%q) err = %v, want ValidationError", tt.ref, err)
			}
			if !strings.Contains(err.Error(), tt.ref) {
				t.Errorf("error %q does not name the offending reference %q", err, tt.ref)
			}
		})
	}
}

func TestPairSetsEqual(t *testing.T) {
	a := models.ExtraPair{Field: "a", Value: "1"}
	b := models.ExtraPair{Field: "b", Value: "2"}

	tests := []struct {
		name  string
		left  []models.ExtraPair
		right []models.ExtraPair
		want  bool
	}{
		{"both empty", nil, nil, true},
		{"order irrelevant", []models.ExtraPair{a, b}, []models.ExtraPair{b, a}, true},
		{"asymmetric left", []models.ExtraPair{a, b}, []models.ExtraPair{a}, false},
		{"asymmetric right", []models.ExtraPair{a}, []models.ExtraPair{a, b}, false},
		{"disjoint", []models.ExtraPair{a}, []models.ExtraPair{b}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pairSetsEqual(tt.left, tt.right); got != tt.want {
				t.Errorf("pairSetsEqual = %v, want %v", got, tt.want)
			}
		})
	}
}
