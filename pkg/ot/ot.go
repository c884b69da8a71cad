// Package ot applies version-gated operational updates to cached document text.
package ot

import (
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/olsync/olsync/pkg/constants"
	"github.com/olsync/olsync/pkg/models"
)

// Op is a single insert or delete at position P.
// Exactly one of I and D is set.
type Op struct {
	P int    `json:"p"`
	I string `json:"i,omitempty"`
	D string `json:"d,omitempty"`
	// U marks an op the server flagged as an undo.
	U bool `json:"u,omitempty"`
}

type Meta struct {
	Source    string `json:"source,omitempty"`
	Timestamp int64  `json:"ts,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// Update is the payload of a content change notification.
type Update struct {
	Doc     string `json:"doc"`
	Ops     []Op   `json:"op"`
	Version int    `json:"v"`
	LastV   int    `json:"lastV,omitempty"`
	Meta    Meta   `json:"meta,omitempty"`
}

// Apply gates u on doc's version and applies its ops to the cached text.
//
// On a version mismatch both caches are dropped and ErrVersionMismatch is
// returned; the next read refetches. A malformed op drops the caches, marks
// doc stale and returns ErrMalformedOp. The caches are never partially
// written.
func Apply(doc *models.Document, u Update) error {
	if u.Version != doc.Version {
		doc.Invalidate()
		return fmt.Errorf("%w: doc %s at %d, update for %d", constants.ErrVersionMismatch, doc.ID, doc.Version, u.Version)
	}

	if doc.RemoteCache == nil {
		doc.Version++
		return nil
	}

	text, err := applyOps(*doc.RemoteCache, u.Ops)
	if err != nil {
		doc.Invalidate()
		doc.Stale = true
		return fmt.Errorf("doc %s: %w", doc.ID, err)
	}

	followRemote := doc.LocalCache == nil || *doc.LocalCache == *doc.RemoteCache
	doc.RemoteCache = &text
	if followRemote {
		local := text
		doc.LocalCache = &local
	}
	doc.Version++
	return nil
}

func applyOps(text string, ops []Op) (string, error) {
	units := utf16.Encode([]rune(text))

	for i, op := range ops {
		if (op.I == "") == (op.D == "") {
			return "", fmt.Errorf("%w: op %d has no single insert or delete", constants.ErrMalformedOp, i)
		}
		if op.P < 0 || op.P > len(units) {
			return "", fmt.Errorf("%w: op %d position %d outside [0,%d]", constants.ErrMalformedOp, i, op.P, len(units))
		}

		if op.I != "" {
			ins := utf16.Encode([]rune(op.I))
			next := make([]uint16, 0, len(units)+len(ins))
			next = append(next, units[:op.P]...)
			next = append(next, ins...)
			units = append(next, units[op.P:]...)
			continue
		}

		n := Len(DecodeBytes(op.D))
		if op.P+n > len(units) {
			return "", fmt.Errorf("%w: op %d deletes %d at %d past end %d", constants.ErrMalformedOp, i, n, op.P, len(units))
		}
		units = append(units[:op.P], units[op.P+n:]...)
	}

	return string(utf16.Decode(units)), nil
}

// Len is the length of s in UTF-16 code units, the unit of op positions.
func Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 && r <= utf8.MaxRune {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// DecodeBytes undoes the server's byte-per-character encoding of text.
// A string whose runes all fit in a byte and whose bytes form valid UTF-8
// is reinterpreted as UTF-8. Anything else is returned unchanged.
func DecodeBytes(s string) string {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return s
		}
		buf = append(buf, byte(r))
	}
	if !utf8.Valid(buf) {
		return s
	}
	return string(buf)
}

// DecodeLines joins the lines of a joinDoc reply into document text.
func DecodeLines(lines []string) string {
	decoded := make([]string, len(lines))
	for i, l := range lines {
		decoded[i] = DecodeBytes(l)
	}
	return strings.Join(decoded, "\n")
}
