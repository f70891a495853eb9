package pagerange

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  []int
	}{
		{"single pages", "1, 3, 5", 10, []int{0, 2, 4}},
		{"mixed", "1-3, 5, 8-10", 10, []int{0, 1, 2, 4, 7, 8, 9}},
		{"clamp range end", "8-15", 10, []int{7, 8, 9}},
		{"clamp range start", "0-3", 10, []int{0, 1, 2}},
		{"reversed range", "5-3", 10, []int{2, 3, 4}},
		{"out of range singles skipped", "0, 11, 5", 10, []int{4}},
		{"duplicates removed and sorted", "5, 1-3, 2, 5", 10, []int{0, 1, 2, 4}},
		{"malformed tokens skipped", "abc, 2, xyz, 4", 10, []int{1, 3}},
		{"whitespace tolerated", "  1 - 3 , 5 , 7 - 9  ", 10, []int{0, 1, 2, 4, 6, 7, 8}},
		{"trailing comma", "1, 2,", 10, []int{0, 1}},
		{"empty input", "", 10, []int{}},
		{"blank input", "   ", 10, []int{}},
		{"zero max", "1-5", 0, []int{}},
		{"negative max", "1", -1, []int{}},
		{"negative-looking token", "-3", 10, []int{}},
		{"range entirely above max", "15-20", 10, []int{9}},
		{"zero range", "0-0", 10, []int{0}},
		{"reversed range above max", "30-9", 10, []int{8, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input, tt.max)
			if got == nil {
				t.Fatal("Parse() returned nil, want non-nil slice")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q, %d) = %v, want %v", tt.input, tt.max, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   []int
		want string
	}{
		{nil, ""},
		{[]int{0}, "1"},
		{[]int{0, 1, 2, 4}, "1-3, 5"},
		{[]int{9, 8, 7, 0}, "1, 8-10"},
		{[]int{3, 3, 4}, "4-5"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	in := []int{0, 1, 2, 4, 7, 8, 9}
	if got := Parse(Format(in), 10); !reflect.DeepEqual(got, in) {
		t.Errorf("Parse(Format(%v)) = %v", in, got)
	}
}

func TestAll(t *testing.T) {
	if got := All(3); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("All(3) = %v", got)
	}
	if got := All(0); len(got) != 0 {
		t.Errorf("All(0) = %v, want empty", got)
	}
}
