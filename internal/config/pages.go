package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// maxSelection bounds a single range so a typo cannot allocate millions of
// page numbers.
const maxSelection = 100000

// ParsePages parses a page selection such as "101,103,105-110". The result
// is sorted and free of duplicates.
func ParsePages(selection string) ([]int, error) {
	seen := make(map[int]bool)

	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			n, err := parsePage(part)
			if err != nil {
				return nil, err
			}
			seen[n] = true
			continue
		}

		from, err := parsePage(lo)
		if err != nil {
			return nil, err
		}
		to, err := parsePage(hi)
		if err != nil {
			return nil, err
		}
		if from > to {
			return nil, fmt.Errorf("range %q is reversed", part)
		}
		if to-from >= maxSelection {
			return nil, fmt.Errorf("range %q selects more than %d pages", part, maxSelection)
		}
		for n := from; n <= to; n++ {
			seen[n] = true
		}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("no pages selected in %q", selection)
	}

	pages := make([]int, 0, len(seen))
	for n := range seen {
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages, nil
}

func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid page number %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("page number %d is negative", n)
	}
	return n, nil
}

// FormatPages renders pages in the compact form accepted by ParsePages.
func FormatPages(pages []int) string {
	if len(pages) == 0 {
		return ""
	}
	sorted := append([]int(nil), pages...)
	sort.Ints(sorted)

	var parts []string
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, n := range sorted[1:] {
		if n == prev {
			continue
		}
		if n == prev+1 {
			prev = n
			continue
		}
		flush()
		start, prev = n, n
	}
	flush()

	return strings.Join(parts, ",")
}
