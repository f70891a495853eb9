// Package pagerange parses user page selections such as "1-3, 5, 8-10".
package pagerange

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	rangeToken  = regexp.MustCompile(`^(\d+)\s*-\s*(\d+)$`)
	singleToken = regexp.MustCompile(`^\d+$`)
)

// Parse converts a comma-separated selection of 1-based pages and ranges into
// ascending, de-duplicated 0-based indices.
//
// Each range bound is clamped into [1, maxPage] before a reversed range is
// swapped, so a range wholly past the end still selects the last page. A single
// page outside [1, maxPage] is dropped. Malformed tokens are ignored.
func Parse(input string, maxPage int) []int {
	out := []int{}
	if maxPage <= 0 || strings.TrimSpace(input) == "" {
		return out
	}

	seen := make(map[int]struct{})
	for _, raw := range strings.Split(input, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}

		if m := rangeToken.FindStringSubmatch(token); m != nil {
			start, err1 := strconv.Atoi(m[1])
			end, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil {
				continue
			}
			start = min(max(start, 1), maxPage)
			end = min(max(end, 1), maxPage)
			if start > end {
				start, end = end, start
			}
			for p := start; p <= end; p++ {
				seen[p-1] = struct{}{}
			}
			continue
		}

		if singleToken.MatchString(token) {
			p, err := strconv.Atoi(token)
			if err != nil || p < 1 || p > maxPage {
				continue
			}
			seen[p-1] = struct{}{}
		}
	}

	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Format renders 0-based indices back into compact 1-based ranges, e.g.
// [0 1 2 4] becomes "1-3, 5". Input order and duplicates do not matter.
func Format(indices []int) string {
	if len(indices) == 0 {
		return ""
	}
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)

	var parts []string
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start+1))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start+1, prev+1))
		}
	}
	for _, idx := range sorted[1:] {
		if idx == prev {
			continue
		}
		if idx == prev+1 {
			prev = idx
			continue
		}
		flush()
		start, prev = idx, idx
	}
	flush()
	return strings.Join(parts, ", ")
}

// All returns [0, n).
func All(n int) []int {
	out := make([]int, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, i)
	}
	return out
}
