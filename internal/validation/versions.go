package validation

import (
	"sort"

	"github.com/hashicorp/go-version"
)

// SortVersionLabels orders model version labels newest first. Labels that parse
// as versions ("v1.2", "2.0.0-rc1") come first in descending version order; any
// other labels ("main", "fp16") follow in ascending lexical order.
func SortVersionLabels(labels []string) {
	SortByVersionLabel(labels, func(s string) string { return s })
}

// SortByVersionLabel orders items by the label returned for each, using the
// same ordering as SortVersionLabels
func SortByVersionLabel[T any](items []T, label func(T) string) {
	parsed := make(map[string]*version.Version, len(items))
	for _, it := range items {
		l := label(it)
		if v, err := version.NewVersion(l); err == nil {
			parsed[l] = v
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		li, lj := label(items[i]), label(items[j])
		vi, iok := parsed[li]
		vj, jok := parsed[lj]
		switch {
		case iok && jok:
			if c := vi.Compare(vj); c != 0 {
				return c > 0
			}
			return li < lj
		case iok != jok:
			return iok
		default:
			return li < lj
		}
	})
}
