// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package resourcepath

import (
	"strings"

	"github.com/pkg/errors"
)

// ReservedName is the one field-path identifier with document-identity
// meaning rather than naming a document field. Spec §3: it may only
// appear as the entirety of a FieldPath, never as one segment among
// others.
const ReservedName = "__name__"

// FieldPath is an immutable, ordered list of field names identifying
// a (possibly nested) document field.
type FieldPath struct {
	segments []string
}

// NewFieldPath builds a FieldPath directly from already-split segment
// names, validating spec §3's invariants (non-empty names, __name__
// only as the whole path).
func NewFieldPath(segments ...string) (FieldPath, error) {
	if len(segments) == 0 {
		return FieldPath{}, errors.New("fieldpath: empty field path")
	}
	for i, s := range segments {
		if s == "" {
			return FieldPath{}, errors.New("fieldpath: empty segment")
		}
		if s == ReservedName && len(segments) != 1 {
			return FieldPath{}, errors.Errorf("fieldpath: %q is reserved and may only appear as a whole path, found at segment %d of %d", ReservedName, i, len(segments))
		}
	}
	return FieldPath{segments: append([]string(nil), segments...)}, nil
}

// ParseFieldPath parses the user-input grammar described in spec
// §4.4: dot-separated segments, where a backtick-escaped segment may
// contain any character including '.' and '`' (a literal backtick
// inside an escaped segment is written doubled, "``").
func ParseFieldPath(input string) (FieldPath, error) {
	segments, err := splitFieldPath(input)
	if err != nil {
		return FieldPath{}, err
	}
	return NewFieldPath(segments...)
}

func splitFieldPath(input string) ([]string, error) {
	var segments []string
	var cur strings.Builder
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		switch runes[i] {
		case '`':
			i++
			for {
				if i >= len(runes) {
					return nil, errors.Errorf("fieldpath: unterminated backtick-escaped segment in %q", input)
				}
				if runes[i] == '`' {
					// doubled backtick is a literal backtick
					if i+1 < len(runes) && runes[i+1] == '`' {
						cur.WriteRune('`')
						i += 2
						continue
					}
					i++
					break
				}
				cur.WriteRune(runes[i])
				i++
			}
		case '.':
			segments = append(segments, cur.String())
			cur.Reset()
			i++
		default:
			cur.WriteRune(runes[i])
			i++
		}
	}
	segments = append(segments, cur.String())
	return segments, nil
}

// Segments returns a copy of fp's ordered field names.
func (fp FieldPath) Segments() []string {
	return append([]string(nil), fp.segments...)
}

// IsReservedName reports whether fp is exactly the reserved
// "__name__" path.
func (fp FieldPath) IsReservedName() bool {
	return len(fp.segments) == 1 && fp.segments[0] == ReservedName
}

// HasPrefix reports whether other is a strict prefix of fp (used to
// validate that Update's field paths are pairwise non-prefix, spec
// §4.4).
func (fp FieldPath) HasPrefix(other FieldPath) bool {
	if len(other.segments) >= len(fp.segments) {
		return false
	}
	for i, s := range other.segments {
		if fp.segments[i] != s {
			return false
		}
	}
	return true
}

// String renders fp back into the dotted/backtick grammar, escaping
// any segment that contains '.' or '`' or is empty.
func (fp FieldPath) String() string {
	parts := make([]string, len(fp.segments))
	for i, s := range fp.segments {
		if needsEscaping(s) {
			parts[i] = "`" + strings.ReplaceAll(s, "`", "``") + "`"
		} else {
			parts[i] = s
		}
	}
	return strings.Join(parts, ".")
}

func needsEscaping(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, ".`")
}

// ValidateNonPrefix checks that no path in paths is a strict prefix of
// another, spec §4.4 ("all top-level field paths pairwise non-prefix").
func ValidateNonPrefix(paths []FieldPath) error {
	for i := range paths {
		for j := range paths {
			if i == j {
				continue
			}
			if paths[j].HasPrefix(paths[i]) {
				return errors.Errorf("fieldpath: %q is a prefix of %q", paths[i].String(), paths[j].String())
			}
		}
	}
	return nil
}
