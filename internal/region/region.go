// Package region maps raw deal region strings onto the continent-level groups
// offered by the map's region buttons.
package region

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// World is the designated group that covers every configured region.
const World = "World"

// ErrUnknownGroup is returned when a group key is not in the table.
var ErrUnknownGroup = errors.New("unknown region group")

// Group is a named continent/zone covering one or more raw region strings.
type Group struct {
	Key     string   `json:"key" yaml:"key" doc:"Group key used in selections" example:"Africa"`
	Label   string   `json:"label" yaml:"label" doc:"Display label" example:"Afrique"`
	Regions []string `json:"regions" yaml:"regions" doc:"Raw region names covered by the group"`
}

// Table is the static group → region-name mapping. It is read-only after
// construction and safe for concurrent use.
type Table struct {
	groups []Group
	sets   map[string]map[string]struct{}
	all    map[string]struct{}
}

// DefaultGroups is the mapping used when no regions file is configured.
var DefaultGroups = []Group{
	{Key: "Africa", Label: "Africa", Regions: []string{"Africa"}},
	{Key: "Asia", Label: "Asia", Regions: []string{"Asia"}},
	{Key: "Europe", Label: "Europe", Regions: []string{"Eastern Europe", "Western Europe"}},
	{Key: "LatinAmerica", Label: "Latin America", Regions: []string{"Latin America and the Caribbean"}},
	{Key: "NorthernAmerica", Label: "Northern America", Regions: []string{"Northern America"}},
	{Key: "Oceania", Label: "Oceania", Regions: []string{"Oceania"}},
}

// NewTable builds a table from groups. Keys must be unique and non-empty and
// World is reserved.
func NewTable(groups []Group) (*Table, error) {
	t := &Table{
		sets: make(map[string]map[string]struct{}, len(groups)),
		all:  make(map[string]struct{}),
	}
	for _, g := range groups {
		if g.Key == "" {
			return nil, fmt.Errorf("region group without key")
		}
		if g.Key == World {
			return nil, fmt.Errorf("region group %q is reserved", World)
		}
		if _, dup := t.sets[g.Key]; dup {
			return nil, fmt.Errorf("duplicate region group %q", g.Key)
		}
		if g.Label == "" {
			g.Label = g.Key
		}
		set := make(map[string]struct{}, len(g.Regions))
		for _, r := range g.Regions {
			set[r] = struct{}{}
			t.all[r] = struct{}{}
		}
		t.sets[g.Key] = set
		t.groups = append(t.groups, g)
	}
	return t, nil
}

// Default returns the table built from DefaultGroups.
func Default() *Table {
	t, err := NewTable(DefaultGroups)
	if err != nil {
		panic(err)
	}
	return t
}

type file struct {
	Groups []Group `yaml:"groups"`
}

// LoadFile reads a YAML table of the form
//
//	groups:
//	  - key: Africa
//	    regions: [Africa]
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading regions file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing regions file: %w", err)
	}
	return NewTable(f.Groups)
}

// Groups returns the configured groups followed by World.
func (t *Table) Groups() []Group {
	out := make([]Group, 0, len(t.groups)+1)
	out = append(out, t.groups...)
	out = append(out, Group{Key: World, Label: World, Regions: t.RegionNames()})
	return out
}

// Label returns the display label of group key, or key itself when no group
// has that key.
func (t *Table) Label(key string) string {
	for _, g := range t.groups {
		if g.Key == key {
			return g.Label
		}
	}
	return key
}

// RegionNames returns every configured raw region name, sorted.
func (t *Table) RegionNames() []string {
	names := make([]string, 0, len(t.all))
	for n := range t.all {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Valid reports whether key names a group. "" and World are valid.
func (t *Table) Valid(key string) bool {
	if key == "" || key == World {
		return true
	}
	_, ok := t.sets[key]
	return ok
}

// Check returns ErrUnknownGroup for keys that are not valid.
func (t *Table) Check(key string) error {
	if !t.Valid(key) {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, key)
	}
	return nil
}

// Contains reports whether regionName belongs to the group key. "" and World
// match any configured region; unknown keys match nothing. Unmapped region
// names never match.
func (t *Table) Contains(key, regionName string) bool {
	if key == "" || key == World {
		_, ok := t.all[regionName]
		return ok
	}
	set, ok := t.sets[key]
	if !ok {
		return false
	}
	_, ok = set[regionName]
	return ok
}

// Known reports whether regionName is covered by any group.
func (t *Table) Known(regionName string) bool {
	_, ok := t.all[regionName]
	return ok
}

// Unmapped returns the distinct region names, sorted, that no group covers.
func (t *Table) Unmapped(names []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, n := range names {
		if t.Known(n) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
