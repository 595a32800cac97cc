package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseQueueOrderForms(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []int64
	}{
		{"empty", "", nil},
		{"normalized", "3,1,2", []int64{3, 1, 2}},
		{"bracketed", "[3, 1, 2]", []int64{3, 1, 2}},
		{"bracketed empty", "[]", nil},
		{"spaced", " 7 , 9 ", []int64{7, 9}},
		{"single", "42", []int64{42}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseQueueOrder(tc.input)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.input, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("parse %q = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseQueueOrderRejectsMalformedInput(t *testing.T) {
	for _, input := range []string{"a,b", "1;2", "[1,2", "1,,2", "1.5"} {
		_, err := ParseQueueOrder(input)
		if err == nil {
			t.Fatalf("expected error for %q", input)
		}
		var verr ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError for %q, got %T", input, err)
		}
	}
}

func TestFormatQueueOrderRoundTrip(t *testing.T) {
	ids := []int64{3, 1, 2}
	encoded := FormatQueueOrder(ids)
	if encoded != "3,1,2" {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded, err := ParseQueueOrder(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(decoded, ids) {
		t.Fatalf("round trip mismatch: %v", decoded)
	}
	if FormatQueueOrder(nil) != "" {
		t.Fatalf("empty queue must encode as empty string")
	}
}

func TestReconcileQueueOrderDropsStaleEntries(t *testing.T) {
	// Issue 1 closed after the order was stored.
	updated, changed := ReconcileQueueOrder([]int64{3, 1, 2}, []int64{2, 3})
	if !changed {
		t.Fatalf("expected change")
	}
	if !reflect.DeepEqual(updated, []int64{3, 2}) {
		t.Fatalf("got %v, want [3 2]", updated)
	}
}

func TestReconcileQueueOrderAppendsNewIssues(t *testing.T) {
	updated, changed := ReconcileQueueOrder([]int64{3, 1}, []int64{1, 3, 5})
	if !changed {
		t.Fatalf("expected change")
	}
	if !reflect.DeepEqual(updated, []int64{3, 1, 5}) {
		t.Fatalf("got %v, want [3 1 5]", updated)
	}
}

func TestReconcileQueueOrderStableWhenCurrent(t *testing.T) {
	updated, changed := ReconcileQueueOrder([]int64{2, 1}, []int64{1, 2})
	if changed {
		t.Fatalf("unexpected change for %v", updated)
	}
	if !reflect.DeepEqual(updated, []int64{2, 1}) {
		t.Fatalf("order must be preserved, got %v", updated)
	}
}

func TestReconcileQueueOrderRemovesDuplicates(t *testing.T) {
	updated, changed := ReconcileQueueOrder([]int64{2, 2, 1, 2}, []int64{1, 2})
	if !changed {
		t.Fatalf("expected change")
	}
	if !reflect.DeepEqual(updated, []int64{2, 1}) {
		t.Fatalf("got %v, want [2 1]", updated)
	}
}

func TestReconcileQueueOrderEmpty(t *testing.T) {
	updated, changed := ReconcileQueueOrder(nil, nil)
	if changed || len(updated) != 0 {
		t.Fatalf("empty stored order with no open issues must stay empty")
	}
}
