// Package tres handles the trackable-resources tuple, a comma separated
// list of <code>:<count> items. Codes: N nodes, C cores, M memory,
// L/<license> named license, G/<gres>[/<spec>] generic resource.
package tres

import (
	"sort"
	"strings"
)

type Item struct {
	Code  string
	Count string
}

// Parse splits a serialized tuple. Malformed items (no colon) are dropped.
func Parse(s string) []Item {
	var items []Item
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.LastIndex(part, ":")
		if i <= 0 {
			continue
		}
		items = append(items, Item{Code: part[:i], Count: part[i+1:]})
	}
	return items
}

func Serialize(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.Code+":"+it.Count)
	}
	return strings.Join(parts, ",")
}

// Merge applies per-code last-writer-wins: codes present in next replace the
// prior value, codes unmentioned in next are preserved. Order: prior order
// first, then new codes sorted for deterministic output.
func Merge(prior, next string) string {
	pitems := Parse(prior)
	nmap := map[string]string{}
	for _, it := range Parse(next) {
		nmap[it.Code] = it.Count
	}
	seen := map[string]bool{}
	merged := make([]Item, 0, len(pitems)+len(nmap))
	for _, it := range pitems {
		if v, ok := nmap[it.Code]; ok {
			it.Count = v
		}
		merged = append(merged, it)
		seen[it.Code] = true
	}
	var extra []string
	for code := range nmap {
		if !seen[code] {
			extra = append(extra, code)
		}
	}
	sort.Strings(extra)
	for _, code := range extra {
		merged = append(merged, Item{Code: code, Count: nmap[code]})
	}
	return Serialize(merged)
}
