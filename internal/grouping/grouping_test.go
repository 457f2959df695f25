package grouping

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/language"
)

func families(m map[string]string) FamilyFunc {
	return func(id string) string { return m[id] }
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		fam  map[string]string
		opts Options
		want []Group
	}{
		{
			name: "two families sorted",
			ids:  []string{"1", "2"},
			fam:  map[string]string{"1": "Zelda", "2": "Arial"},
			want: []Group{
				{Family: "Arial", IDs: []string{"2"}},
				{Family: "Zelda", IDs: []string{"1"}},
			},
		},
		{
			name: "members keep discovery order",
			ids:  []string{"b", "a", "c"},
			fam:  map[string]string{"a": "Inter", "b": "Inter", "c": "Inter"},
			want: []Group{{Family: "Inter", IDs: []string{"b", "a", "c"}}},
		},
		{
			name: "full-string comparison",
			ids:  []string{"1", "2", "3"},
			fam:  map[string]string{"1": "Roboto Slab", "2": "Roboto", "3": "Raleway"},
			want: []Group{
				{Family: "Raleway", IDs: []string{"3"}},
				{Family: "Roboto", IDs: []string{"2"}},
				{Family: "Roboto Slab", IDs: []string{"1"}},
			},
		},
		{
			name: "case-insensitive collation",
			ids:  []string{"1", "2", "3"},
			fam:  map[string]string{"1": "bodoni", "2": "Avenir", "3": "Caslon"},
			want: []Group{
				{Family: "Avenir", IDs: []string{"2"}},
				{Family: "bodoni", IDs: []string{"1"}},
				{Family: "Caslon", IDs: []string{"3"}},
			},
		},
		{
			name: "unnamed group last",
			ids:  []string{"x", "1", "y"},
			fam:  map[string]string{"1": "Futura"},
			want: []Group{
				{Family: "Futura", IDs: []string{"1"}},
				{Family: DefaultUnnamedLabel, Unnamed: true, IDs: []string{"x", "y"}},
			},
		},
		{
			name: "unnamed group first",
			ids:  []string{"x", "1"},
			fam:  map[string]string{"1": "Futura"},
			opts: Options{UnnamedFirst: true, UnnamedLabel: "(none)"},
			want: []Group{
				{Family: "(none)", Unnamed: true, IDs: []string{"x"}},
				{Family: "Futura", IDs: []string{"1"}},
			},
		},
		{
			name: "empty",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(tt.ids, families(tt.fam), tt.opts)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Build() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuild_Locale(t *testing.T) {
	ids := []string{"1", "2", "3"}
	fam := families(map[string]string{"1": "Zapf", "2": "Ärmel", "3": "Bembo"})

	got := Build(ids, fam, Options{Language: language.German})
	want := []string{"Ärmel", "Bembo", "Zapf"}
	var names []string
	for _, g := range got {
		names = append(names, g.Family)
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("German order mismatch (-want +got):\n%s", diff)
	}

	got = Build(ids, fam, Options{Language: language.Swedish})
	want = []string{"Bembo", "Zapf", "Ärmel"}
	names = names[:0]
	for _, g := range got {
		names = append(names, g.Family)
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("Swedish order mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_EveryIDOnce(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	fam := families(map[string]string{"a": "One", "b": "Two", "c": "One", "e": "Three"})
	seen := map[string]int{}
	for _, g := range Build(ids, fam, Options{}) {
		for _, id := range g.IDs {
			seen[id]++
		}
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Errorf("id %s appears %d times", id, seen[id])
		}
	}
}
