// Package registry holds the fixed table of detector classes shown to users.
package registry

import (
	"fmt"
	"image/color"
	"sort"
)

// ClassEntry maps one detector class id to a display name and color.
type ClassEntry struct {
	ID    int        `json:"id"`
	Name  string     `json:"name"`
	Color color.RGBA `json:"-"`
}

// Hex returns the entry color as #rrggbb.
func (e ClassEntry) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", e.Color.R, e.Color.G, e.Color.B)
}

// COCO label ids used by the pretrained checkpoints.
const (
	Person       = 0
	Car          = 2
	Motorcycle   = 3
	Bus          = 5
	Truck        = 7
	TrafficLight = 9
)

var (
	red     = color.RGBA{R: 255, A: 255}
	green   = color.RGBA{G: 255, A: 255}
	blue    = color.RGBA{B: 255, A: 255}
	orange  = color.RGBA{R: 255, G: 165, A: 255}
	magenta = color.RGBA{R: 255, B: 255, A: 255}
	yellow  = color.RGBA{R: 255, G: 255, A: 255}
)

var classSets = map[string][]ClassEntry{
	"en": {
		{ID: Car, Name: "Car", Color: red},
		{ID: Motorcycle, Name: "Motorcycle", Color: green},
		{ID: Bus, Name: "Bus", Color: orange},
		{ID: Truck, Name: "Truck", Color: magenta},
		{ID: Person, Name: "Person", Color: blue},
		{ID: TrafficLight, Name: "Traffic light", Color: yellow},
	},
	"es": {
		{ID: Car, Name: "Carro", Color: red},
		{ID: Motorcycle, Name: "Motocicleta", Color: green},
		{ID: Bus, Name: "Autobús", Color: orange},
		{ID: Truck, Name: "Camión", Color: magenta},
		{ID: Person, Name: "Persona", Color: blue},
		{ID: TrafficLight, Name: "Semáforo", Color: yellow},
	},
}

// Registry is an immutable lookup table. The zero value is empty.
type Registry struct {
	entries []ClassEntry
	byID    map[int]ClassEntry
	byName  map[string]ClassEntry
}

// New builds a registry from entries. Ids and names must be unique.
func New(entries []ClassEntry) (*Registry, error) {
	r := &Registry{
		entries: make([]ClassEntry, 0, len(entries)),
		byID:    make(map[int]ClassEntry, len(entries)),
		byName:  make(map[string]ClassEntry, len(entries)),
	}
	for _, e := range entries {
		if _, dup := r.byID[e.ID]; dup {
			return nil, fmt.Errorf("duplicate class id %d", e.ID)
		}
		if _, dup := r.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate class name %q", e.Name)
		}
		r.entries = append(r.entries, e)
		r.byID[e.ID] = e
		r.byName[e.Name] = e
	}
	return r, nil
}

// ForClassSet returns the built-in registry for a class set name ("en", "es").
func ForClassSet(name string) (*Registry, error) {
	entries, ok := classSets[name]
	if !ok {
		return nil, fmt.Errorf("unknown class set %q (available: %v)", name, ClassSets())
	}
	return New(entries)
}

// Default returns the English registry.
func Default() *Registry {
	r, err := ForClassSet("en")
	if err != nil {
		panic(err)
	}
	return r
}

// ClassSets lists the built-in class set names.
func ClassSets() []string {
	names := make([]string, 0, len(classSets))
	for name := range classSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the entry for a detector class id.
func (r *Registry) Lookup(id int) (ClassEntry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// ByName returns the entry for a display name.
func (r *Registry) ByName(name string) (ClassEntry, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Entries returns a copy of the table in definition order.
func (r *Registry) Entries() []ClassEntry {
	out := make([]ClassEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered classes.
func (r *Registry) Len() int {
	return len(r.entries)
}
