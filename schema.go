package vstore

import (
	"fmt"
	"slices"
)

// DefaultKeyPath is the primary key path of every store the handle manages.
const DefaultKeyPath = FieldID

// StoreDescriptor describes a store to create during a version upgrade.
type StoreDescriptor struct {
	Name    string            `msgpack:"n" json:"name"`
	KeyPath string            `msgpack:"k" json:"keyPath"`
	Indexes []IndexDescriptor `msgpack:"i,omitempty" json:"indexes,omitempty"`
}

// IndexDescriptor describes a secondary index. Several key paths make a
// compound index whose keys are arrays.
type IndexDescriptor struct {
	Name     string   `msgpack:"n" json:"name"`
	KeyPath  []string `msgpack:"k" json:"keyPath"`
	IsUnique bool     `msgpack:"u,omitempty" json:"unique,omitempty"`
	IsMulti  bool     `msgpack:"m,omitempty" json:"multiEntry,omitempty"`
}

// NewIndex describes an index over the given key paths. With no paths the
// index name doubles as its key path.
func NewIndex(name string, keyPath ...string) IndexDescriptor {
	if len(keyPath) == 0 {
		keyPath = []string{name}
	}
	return IndexDescriptor{Name: name, KeyPath: keyPath}
}

func (idx IndexDescriptor) Unique() IndexDescriptor {
	idx.IsUnique = true
	return idx
}

// MultiEntry makes an array value contribute one index entry per element.
func (idx IndexDescriptor) MultiEntry() IndexDescriptor {
	idx.IsMulti = true
	return idx
}

func (desc StoreDescriptor) index(name string) *IndexDescriptor {
	for i := range desc.Indexes {
		if desc.Indexes[i].Name == name {
			return &desc.Indexes[i]
		}
	}
	return nil
}

func (desc StoreDescriptor) validate() error {
	if desc.Name == "" {
		return fmt.Errorf("store name must not be empty")
	}
	if desc.KeyPath == "" {
		return fmt.Errorf("store %s: key path must not be empty", desc.Name)
	}
	seen := make(map[string]bool)
	for _, idx := range desc.Indexes {
		if idx.Name == "" || len(idx.KeyPath) == 0 {
			return fmt.Errorf("store %s: index needs a name and a key path", desc.Name)
		}
		if idx.IsMulti && len(idx.KeyPath) > 1 {
			return fmt.Errorf("store %s: multi-entry index %s cannot be compound", desc.Name, idx.Name)
		}
		if seen[idx.Name] {
			return fmt.Errorf("store %s: duplicate index %s", desc.Name, idx.Name)
		}
		seen[idx.Name] = true
	}
	return nil
}

// Schema declares the record stores and singleton-object stores a handle
// manages. Declared stores are created lazily when the database opens.
type Schema struct {
	stores  []StoreDescriptor
	objects []StoreDescriptor
}

func NewSchema() *Schema {
	return &Schema{}
}

// AddStore declares a record store keyed by id.
func (scm *Schema) AddStore(name string, indexes ...IndexDescriptor) *Schema {
	scm.mustBeNew(name)
	scm.stores = append(scm.stores, StoreDescriptor{
		Name:    name,
		KeyPath: DefaultKeyPath,
		Indexes: indexes,
	})
	return scm
}

// AddObject declares a singleton-object store.
func (scm *Schema) AddObject(name string) *Schema {
	scm.mustBeNew(name)
	scm.objects = append(scm.objects, StoreDescriptor{
		Name:    name,
		KeyPath: DefaultKeyPath,
	})
	return scm
}

func (scm *Schema) mustBeNew(name string) {
	if scm.has(name) {
		panic(fmt.Errorf("store %q declared twice", name))
	}
}

func (scm *Schema) has(name string) bool {
	for _, d := range scm.declared() {
		if d.Name == name {
			return true
		}
	}
	return false
}

func (scm *Schema) StoreNames() []string {
	return descriptorNames(scm.stores)
}

func (scm *Schema) ObjectNames() []string {
	return descriptorNames(scm.objects)
}

// declared returns record stores followed by object stores.
func (scm *Schema) declared() []StoreDescriptor {
	return slices.Concat(scm.stores, scm.objects)
}

func descriptorNames(descs []StoreDescriptor) []string {
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}
