package models

import (
	"fmt"

	"github.com/olsync/olsync/pkg/constants"
)

// EntityKind identifies which collection of a Folder an entity lives in.
type EntityKind int

const (
	KindUnknown EntityKind = iota
	KindFolder
	KindDoc
	KindFile
	KindOutput
)

func (k EntityKind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindDoc:
		return "doc"
	case KindFile:
		return "file"
	case KindOutput:
		return "outputs"
	default:
		return "unknown"
	}
}

// ParseEntityKind maps the server's file type names onto EntityKind.
func ParseEntityKind(s string) (EntityKind, error) {
	switch s {
	case "folder":
		return KindFolder, nil
	case "doc":
		return KindDoc, nil
	case "file":
		return KindFile, nil
	case "outputs", "output":
		return KindOutput, nil
	}
	return KindUnknown, fmt.Errorf("%w: unknown file type %q", constants.ErrWrongKind, s)
}

// Entity is any addressable node of the project tree.
type Entity interface {
	EntityID() string
	EntityName() string
	SetName(name string)
	Kind() EntityKind
}

var (
	_ Entity = (*Folder)(nil)
	_ Entity = (*Document)(nil)
	_ Entity = (*FileRef)(nil)
	_ Entity = (*OutputFile)(nil)
)
