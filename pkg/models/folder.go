package models

import (
	"fmt"

	"github.com/olsync/olsync/pkg/constants"
)

type Folder struct {
	ID       string        `json:"_id"`
	Name     string        `json:"name"`
	Docs     []*Document   `json:"docs"`
	FileRefs []*FileRef    `json:"fileRefs"`
	Folders  []*Folder     `json:"folders"`
	Outputs  []*OutputFile `json:"outputs,omitempty"`
}

func (f *Folder) EntityID() string    { return f.ID }
func (f *Folder) EntityName() string  { return f.Name }
func (f *Folder) SetName(name string) { f.Name = name }
func (f *Folder) Kind() EntityKind    { return KindFolder }

// Insert appends e to the collection matching its kind.
func (f *Folder) Insert(e Entity) error {
	switch v := e.(type) {
	case *Folder:
		f.Folders = append(f.Folders, v)
	case *Document:
		f.Docs = append(f.Docs, v)
	case *FileRef:
		f.FileRefs = append(f.FileRefs, v)
	case *OutputFile:
		f.Outputs = append(f.Outputs, v)
	default:
		return fmt.Errorf("%w: cannot insert %T into folder %s", constants.ErrWrongKind, e, f.ID)
	}
	return nil
}

// Remove splices the entity with the given id out of the kind's collection.
func (f *Folder) Remove(kind EntityKind, id string) (Entity, bool) {
	switch kind {
	case KindFolder:
		return removeByID(&f.Folders, id)
	case KindDoc:
		return removeByID(&f.Docs, id)
	case KindFile:
		return removeByID(&f.FileRefs, id)
	case KindOutput:
		return removeByID(&f.Outputs, id)
	}
	return nil, false
}

// Lookup finds a direct child by name across all collections.
func (f *Folder) Lookup(name string) (Entity, bool) {
	for _, c := range f.Folders {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range f.Docs {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range f.FileRefs {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range f.Outputs {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Leaves returns the non-folder children in the order they are searched:
// documents, file references, then outputs.
func (f *Folder) Leaves() []Entity {
	out := make([]Entity, 0, len(f.Docs)+len(f.FileRefs)+len(f.Outputs))
	for _, d := range f.Docs {
		out = append(out, d)
	}
	for _, r := range f.FileRefs {
		out = append(out, r)
	}
	for _, o := range f.Outputs {
		out = append(out, o)
	}
	return out
}

// Clone deep-copies the folder and everything below it.
func (f *Folder) Clone() *Folder {
	if f == nil {
		return nil
	}
	c := &Folder{ID: f.ID, Name: f.Name}
	if f.Docs != nil {
		c.Docs = make([]*Document, len(f.Docs))
		for i, d := range f.Docs {
			c.Docs[i] = d.Clone()
		}
	}
	if f.FileRefs != nil {
		c.FileRefs = make([]*FileRef, len(f.FileRefs))
		for i, r := range f.FileRefs {
			c.FileRefs[i] = r.Clone()
		}
	}
	if f.Folders != nil {
		c.Folders = make([]*Folder, len(f.Folders))
		for i, sub := range f.Folders {
			c.Folders[i] = sub.Clone()
		}
	}
	if f.Outputs != nil {
		c.Outputs = make([]*OutputFile, len(f.Outputs))
		for i, o := range f.Outputs {
			out := *o
			c.Outputs[i] = &out
		}
	}
	return c
}

func removeByID[E Entity](items *[]E, id string) (Entity, bool) {
	for i, item := range *items {
		if item.EntityID() == id {
			*items = append((*items)[:i], (*items)[i+1:]...)
			return item, true
		}
	}
	return nil, false
}
