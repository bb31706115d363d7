package normalization

import (
	"reflect"
	"testing"
)

func TestFold(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Lower The Risk", want: "lower the risk"},
		{name: "swedish_diacritics", in: "Sänk Risken", want: "sank risken"},
		{name: "whitespace_collapse", in: "  change   my\trisk  ", want: "change my risk"},
		{name: "empty", in: "", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Fold(tc.in); got != tc.want {
				t.Fatalf("Fold(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestVariants(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "ascii_input_single_variant",
			in:   "Change my risk",
			want: []string{"change my risk"},
		},
		{
			name: "accented_input_two_variants",
			in:   "sänk risken",
			want: []string{"sank risken", "sänk risken"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Variants(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Variants(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
