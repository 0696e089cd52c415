package domain

import (
	"reflect"
	"testing"
)

func TestSplitConsolidated_ExactCount(t *testing.T) {
	got := SplitConsolidated("POL-4451; 03-15-25 ;YES", 3)
	want := []string{"POL-4451", "03-15-25", "YES"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSplitConsolidated_ShortResponsePadded(t *testing.T) {
	got := SplitConsolidated("POL-4451", 3)
	want := []string{"POL-4451", NotFound, NotFound}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSplitConsolidated_LongResponseTruncated(t *testing.T) {
	got := SplitConsolidated("a;b;c;d;e", 2)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSplitConsolidated_EmptySlotsBecomeNotFound(t *testing.T) {
	got := SplitConsolidated("a;;c", 3)
	want := []string{"a", NotFound, "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestJoinConsolidated_RoundTrip(t *testing.T) {
	values := []string{"a", "b", NotFound}
	if got := SplitConsolidated(JoinConsolidated(values), 3); !reflect.DeepEqual(got, values) {
		t.Errorf("round trip: got %v, want %v", got, values)
	}
}

func TestNotFoundRate(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   float64
	}{
		{"all found", []string{"a", "b"}, 0},
		{"half missing", []string{"a", NotFound}, 0.5},
		{"empty counts as missing", []string{"a", "", NotFound, "d"}, 0.5},
		{"no values", nil, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NotFoundRate(tc.values); got != tc.want {
				t.Errorf("got %f, want %f", got, tc.want)
			}
		})
	}
}

func TestFieldAnswerFound(t *testing.T) {
	if (FieldAnswer{Value: NotFound}).Found() {
		t.Error("NOT_FOUND answer should not be found")
	}
	if (FieldAnswer{Value: ""}).Found() {
		t.Error("empty answer should not be found")
	}
	if !(FieldAnswer{Value: "YES"}).Found() {
		t.Error("real value should be found")
	}
}
