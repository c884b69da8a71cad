// Package models contains the project tree mirrored from the server:
// a Project with a single root Folder, whose collections hold Documents,
// FileRefs, sub-Folders and compile OutputFiles.
//
// Struct tags carry the server's field names, and are honoured by both the
// JSON and the CBOR codecs.
//
// The tree is mutated in place. Folder.Insert and Folder.Remove operate on the
// collection matching the entity kind and never look further than the
// receiver; locating the right folder is the job of the tree package.
package models
