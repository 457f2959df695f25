// Package grouping arranges fonts into families for display.
package grouping

import (
	"bytes"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultUnnamedLabel is shown for fonts without a family name.
const DefaultUnnamedLabel = "Unknown family"

// Group is one family and its member ids in discovery order.
type Group struct {
	Family  string   `json:"family"`
	Unnamed bool     `json:"unnamed,omitempty"`
	IDs     []string `json:"ids"`
}

// Options controls ordering.
type Options struct {
	// Language selects the collation; the zero value sorts with the root
	// collation.
	Language language.Tag
	// UnnamedFirst places the group of unnamed fonts before the others.
	UnnamedFirst bool
	// UnnamedLabel overrides DefaultUnnamedLabel.
	UnnamedLabel string
}

// FamilyFunc returns the family of a font, or "" if it has none.
type FamilyFunc func(id string) string

// Build groups ids by family. Members keep the order of ids; groups are
// sorted by family name with a locale-aware collation. Fonts whose family
// is empty form a single group.
func Build(ids []string, familyOf FamilyFunc, opts Options) []Group {
	index := make(map[string]int)
	var groups []Group
	unnamed := Group{Unnamed: true, Family: opts.UnnamedLabel}
	if unnamed.Family == "" {
		unnamed.Family = DefaultUnnamedLabel
	}

	for _, id := range ids {
		family := strings.TrimSpace(familyOf(id))
		if family == "" {
			unnamed.IDs = append(unnamed.IDs, id)
			continue
		}
		i, ok := index[family]
		if !ok {
			i = len(groups)
			index[family] = i
			groups = append(groups, Group{Family: family})
		}
		groups[i].IDs = append(groups[i].IDs, id)
	}

	c := collate.New(opts.Language, collate.IgnoreCase)
	var buf collate.Buffer
	keys := make(map[string][]byte, len(groups))
	for _, g := range groups {
		keys[g.Family] = append([]byte(nil), c.KeyFromString(&buf, g.Family)...)
		buf.Reset()
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].Family, groups[j].Family
		if cmp := bytes.Compare(keys[a], keys[b]); cmp != 0 {
			return cmp < 0
		}
		return a < b
	})

	if len(unnamed.IDs) == 0 {
		return groups
	}
	if opts.UnnamedFirst {
		return append([]Group{unnamed}, groups...)
	}
	return append(groups, unnamed)
}
