// go-toypad
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-toypad.
//
// go-toypad is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-toypad is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-toypad; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package catalog maps toy tag IDs to figure names. It reads the
// taglist.json layout (an object keyed by both ID and name) and plain YAML
// lists.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	toypad "github.com/ZaparooProject/go-toypad"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog is returned for catalog data that cannot be used.
var ErrInvalidCatalog = errors.New("invalid catalog")

//go:embed sample.yaml
var sample []byte

// Category is the kind of figure an entry describes.
type Category string

const (
	CategoryCharacter Category = "character"
	CategoryVehicle   Category = "vehicle"
)

// Entry is one figure.
type Entry struct {
	Name     string   `yaml:"name"`
	Category Category `yaml:"category"`
	World    string   `yaml:"world,omitempty"`
	ID       uint32   `yaml:"id"`
	Rebuild  int      `yaml:"rebuild,omitempty"`
}

// Content returns the tag content that represents e.
func (e Entry) Content() toypad.Content {
	if e.Category == CategoryVehicle {
		return toypad.Vehicle(e.ID)
	}
	return toypad.Character(e.ID)
}

func (e Entry) String() string {
	return fmt.Sprintf("%d %s", e.ID, e.Name)
}

// rawEntry accepts both the taglist.json field names and ours.
type rawEntry struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Category string `yaml:"category"`
	World    string `yaml:"world"`
	ID       int64  `yaml:"id"`
	Rebuild  int    `yaml:"rebuild"`
}

func (r rawEntry) entry() (Entry, error) {
	if r.ID < 0 || r.ID > int64(^uint32(0)) {
		return Entry{}, fmt.Errorf("%w: id %d out of range", ErrInvalidCatalog, r.ID)
	}
	if strings.TrimSpace(r.Name) == "" {
		return Entry{}, fmt.Errorf("%w: entry %d has no name", ErrInvalidCatalog, r.ID)
	}

	e := Entry{
		ID:      uint32(r.ID),
		Name:    strings.TrimSpace(r.Name),
		World:   r.World,
		Rebuild: r.Rebuild,
	}

	kind := r.Category
	if kind == "" {
		kind = r.Type
	}
	switch strings.ToLower(kind) {
	case "character":
		e.Category = CategoryCharacter
	case "vehicle", "token":
		e.Category = CategoryVehicle
	case "":
		if toypad.ContentForID(e.ID).Kind == toypad.KindVehicle {
			e.Category = CategoryVehicle
		} else {
			e.Category = CategoryCharacter
		}
	default:
		return Entry{}, fmt.Errorf("%w: entry %d has unknown type %q", ErrInvalidCatalog, r.ID, kind)
	}
	return e, nil
}

// Catalog is an immutable set of entries indexed by ID and name.
type Catalog struct {
	byID   map[uint32]Entry
	byName map[string]uint32
}

// New builds a catalog. Entries repeating an ID must be identical; names
// are matched without regard to case and must be unique.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		byID:   make(map[uint32]Entry, len(entries)),
		byName: make(map[string]uint32, len(entries)),
	}

	for _, e := range entries {
		if prev, ok := c.byID[e.ID]; ok {
			if prev != e {
				return nil, fmt.Errorf("%w: id %d listed as %q and %q", ErrInvalidCatalog, e.ID, prev.Name, e.Name)
			}
			continue
		}
		key := strings.ToLower(e.Name)
		if id, ok := c.byName[key]; ok {
			return nil, fmt.Errorf("%w: name %q used by %d and %d", ErrInvalidCatalog, e.Name, id, e.ID)
		}
		c.byID[e.ID] = e
		c.byName[key] = e.ID
	}
	return c, nil
}

// Load parses catalog data. A mapping is read as taglist.json, a sequence
// as a list of entries. JSON is accepted as YAML.
func Load(r io.Reader) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return New()
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidCatalog)
	}

	var raws []rawEntry
	root := doc.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		var m map[string]rawEntry
		if err := root.Decode(&m); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}
		for _, r := range m {
			raws = append(raws, r)
		}
		// map order is random; keep New's duplicate checks deterministic
		sort.Slice(raws, func(i, j int) bool { return raws[i].ID < raws[j].ID })
	case yaml.SequenceNode:
		if err := root.Decode(&raws); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}
	default:
		return nil, fmt.Errorf("%w: expected a mapping or a list at line %d", ErrInvalidCatalog, root.Line)
	}

	entries := make([]Entry, 0, len(raws))
	for _, r := range raws {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return New(entries...)
}

// LoadFile parses the catalog at path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path) //nolint:gosec // path is user supplied on purpose
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

var loadDefault = sync.OnceValue(func() *Catalog {
	c, err := Load(strings.NewReader(string(sample)))
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded sample: %v", err))
	}
	return c
})

// Default returns the embedded sample catalog.
func Default() *Catalog {
	return loadDefault()
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// ByID returns the entry for id.
func (c *Catalog) ByID(id uint32) (Entry, bool) {
	e, ok := c.byID[id]
	return e, ok
}

// Lookup finds an entry by decimal ID or by name, ignoring case.
func (c *Catalog) Lookup(query string) (Entry, bool) {
	query = strings.TrimSpace(query)
	if id, err := strconv.ParseUint(query, 10, 32); err == nil {
		return c.ByID(uint32(id))
	}
	id, ok := c.byName[strings.ToLower(query)]
	if !ok {
		return Entry{}, false
	}
	return c.ByID(id)
}

// Name returns the name for content, or "" when the catalog has no entry
// of the same category.
func (c *Catalog) Name(content toypad.Content) string {
	e, ok := c.ByID(content.ID)
	if !ok || e.Content() != content {
		return ""
	}
	return e.Name
}

// Entries returns all entries sorted by ID.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.byID))
	for _, e := range c.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Names returns all names sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.byID))
	for _, e := range c.byID {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}
