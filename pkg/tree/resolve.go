// Package tree resolves entities of a project tree by id or by path.
//
// All functions are pure: they read the tree they are given and never
// mutate it. Callers must hold exclusive access to the tree for the duration
// of a call and of any use of the returned pointers.
package tree

import (
	"fmt"
	"path"
	"strings"

	"github.com/olsync/olsync/pkg/constants"
	"github.com/olsync/olsync/pkg/models"
)

// Match is the result of ResolveByID.
type Match struct {
	// Container is the folder new children of the match are inserted into.
	// It is the matched folder itself when the match is a folder,
	// and the holding folder otherwise.
	Container *models.Folder
	// Parent is the folder whose collection holds Entity.
	// It is nil when Entity is the root folder.
	Parent *models.Folder
	Entity models.Entity
	Kind   models.EntityKind
	// Path is the "/"-joined location of Entity, "/" for the root folder.
	Path string
}

// ResolveByID searches the tree below root depth-first.
// Documents, file references and outputs of a folder are searched
// before its sub-folders.
func ResolveByID(root *models.Folder, id string) (*Match, error) {
	if root == nil {
		return nil, constants.ErrNoRoot
	}
	if m := resolveByID(root, nil, id, "/"); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("%w: id %s", constants.ErrNotFound, id)
}

func resolveByID(folder, parent *models.Folder, id, prefix string) *Match {
	if folder.ID == id {
		return &Match{
			Container: folder,
			Parent:    parent,
			Entity:    folder,
			Kind:      models.KindFolder,
			Path:      folderPath(prefix),
		}
	}

	for _, leaf := range folder.Leaves() {
		if leaf.EntityID() == id {
			return &Match{
				Container: folder,
				Parent:    folder,
				Entity:    leaf,
				Kind:      leaf.Kind(),
				Path:      prefix + leaf.EntityName(),
			}
		}
	}

	for _, sub := range folder.Folders {
		if m := resolveByID(sub, folder, id, prefix+sub.Name+"/"); m != nil {
			return m
		}
	}

	return nil
}

func folderPath(prefix string) string {
	if prefix == "/" {
		return prefix
	}
	return strings.TrimSuffix(prefix, "/")
}

// PathMatch is the result of ResolveByPath.
type PathMatch struct {
	// Parent is the folder named by all but the last segment.
	Parent *models.Folder
	// Name is the last segment.
	Name string
	// Entity is nil when Parent has no child called Name.
	Entity models.Entity
	Kind   models.EntityKind
}

// Found reports whether the final segment names an existing entity.
func (m *PathMatch) Found() bool {
	return m.Entity != nil
}

// ResolveByPath walks from root one segment at a time.
// An empty path resolves to root itself.
func ResolveByPath(root *models.Folder, segments []string) (*PathMatch, error) {
	if root == nil {
		return nil, constants.ErrNoRoot
	}
	if len(segments) == 0 {
		return &PathMatch{Parent: root, Name: root.Name, Entity: root, Kind: models.KindFolder}, nil
	}

	parent := root
	for i, seg := range segments[:len(segments)-1] {
		child, ok := parent.Lookup(seg)
		if !ok {
			return nil, fmt.Errorf("%w: %s", constants.ErrNotFound, "/"+strings.Join(segments[:i+1], "/"))
		}
		folder, ok := child.(*models.Folder)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a folder", constants.ErrNotFound, "/"+strings.Join(segments[:i+1], "/"))
		}
		parent = folder
	}

	name := segments[len(segments)-1]
	m := &PathMatch{Parent: parent, Name: name}
	if e, ok := parent.Lookup(name); ok {
		m.Entity = e
		m.Kind = e.Kind()
	}
	return m, nil
}

// SplitPath turns "/a/b/../c.tex" into ["a", "c.tex"].
// The root path yields no segments.
func SplitPath(p string) []string {
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(cleaned, "/"), "/")
}

// Walk visits every entity below root, root included, depth-first.
// Returning false from fn stops the walk.
func Walk(root *models.Folder, fn func(e models.Entity, p string) bool) {
	if root == nil {
		return
	}
	walk(root, "/", fn)
}

func walk(folder *models.Folder, prefix string, fn func(models.Entity, string) bool) bool {
	if !fn(folder, folderPath(prefix)) {
		return false
	}
	for _, leaf := range folder.Leaves() {
		if !fn(leaf, prefix+leaf.EntityName()) {
			return false
		}
	}
	for _, sub := range folder.Folders {
		if !walk(sub, prefix+sub.Name+"/", fn) {
			return false
		}
	}
	return true
}

// Contains reports whether the folder with id is ancestor's descendant
// or ancestor itself.
func Contains(ancestor *models.Folder, id string) bool {
	found := false
	Walk(ancestor, func(e models.Entity, _ string) bool {
		if e.EntityID() == id {
			found = true
			return false
		}
		return true
	})
	return found
}
