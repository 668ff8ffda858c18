// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package writeop implements the tagged write-operation and
// precondition model (spec §3, §4.4): Create, Set, Update and Delete
// variants, each carrying a validated Precondition and targeting a
// DocumentID. Validation happens once, at construction, the same way
// the teacher's write.Point construction validates field types up
// front rather than at encode time.
package writeop

import (
	"time"

	"github.com/pkg/errors"

	"github.com/docdbio/admin-go/resourcepath"
)

// Kind distinguishes the write-operation variants of spec §3.
type Kind int

const (
	KindCreate Kind = iota
	KindSet
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindSet:
		return "set"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// PreconditionKind distinguishes the precondition variants of spec §3.
type PreconditionKind int

const (
	PreconditionNone PreconditionKind = iota
	PreconditionExists
	PreconditionLastUpdateTime
)

// Precondition is a server-checked condition attached to a write.
// Exists and LastUpdateTime are mutually exclusive, enforced by the
// constructors below rather than by a hand-set struct literal.
type Precondition struct {
	kind           PreconditionKind
	exists         bool
	lastUpdateTime time.Time
}

// NoPrecondition is the zero-value, unconditioned precondition.
var NoPrecondition = Precondition{kind: PreconditionNone}

// PreconditionExistsTrue requires the document to exist.
func PreconditionExistsTrue() Precondition {
	return Precondition{kind: PreconditionExists, exists: true}
}

// PreconditionExistsFalse requires the document not to exist.
func PreconditionExistsFalse() Precondition {
	return Precondition{kind: PreconditionExists, exists: false}
}

// PreconditionUpdatedAt requires the document's last update time to
// equal t exactly.
func PreconditionUpdatedAt(t time.Time) Precondition {
	return Precondition{kind: PreconditionLastUpdateTime, lastUpdateTime: t}
}

func (p Precondition) Kind() PreconditionKind { return p.kind }
func (p Precondition) Exists() bool           { return p.exists }
func (p Precondition) LastUpdateTime() time.Time { return p.lastUpdateTime }

// FieldValues is a field-path keyed value map, used by Set (full
// document body) and Update (sparse patch). Values are opaque to this
// package: wire-format serialization of document values is out of
// scope (spec §1 Non-goals) — callers supply whatever representation
// their transport collaborator understands.
type FieldValues map[string]interface{}

// Op is a single write operation: a tag, its payload, a precondition,
// and the DocumentID it targets.
type Op struct {
	kind         Kind
	target       resourcepath.DocumentID
	precondition Precondition

	// Set-only.
	values     FieldValues
	merge      bool
	mergePaths []resourcepath.FieldPath

	// Update-only: the field-path → value map and its parsed field
	// paths.
	updates    FieldValues
	fieldPaths []resourcepath.FieldPath
}

func (o Op) Kind() Kind                           { return o.kind }
func (o Op) Target() resourcepath.DocumentID      { return o.target }
func (o Op) Precondition() Precondition           { return o.precondition }
func (o Op) Values() FieldValues                  { return o.values }
func (o Op) Merge() bool                          { return o.merge }
func (o Op) MergePaths() []resourcepath.FieldPath { return append([]resourcepath.FieldPath(nil), o.mergePaths...) }
func (o Op) Updates() FieldValues                 { return o.updates }
func (o Op) FieldPaths() []resourcepath.FieldPath {
	return append([]resourcepath.FieldPath(nil), o.fieldPaths...)
}

// Create builds a Create operation. Its precondition is fixed to
// exists=false (spec §4.4): a Create only succeeds against a document
// that does not yet exist.
func Create(target resourcepath.DocumentID, values FieldValues) (Op, error) {
	if err := validateTarget(target); err != nil {
		return Op{}, err
	}
	return Op{
		kind:         KindCreate,
		target:       target,
		precondition: PreconditionExistsFalse(),
		values:       values,
	}, nil
}

// SetOption configures an optional Set behavior.
type SetOption func(*Op)

// WithMerge enables merge semantics: fields not present in values are
// left untouched server-side, rather than the default full replace.
func WithMerge() SetOption {
	return func(o *Op) { o.merge = true }
}

// WithMergePaths restricts a merge to exactly these field paths; it
// implies WithMerge.
func WithMergePaths(paths ...resourcepath.FieldPath) SetOption {
	return func(o *Op) {
		o.merge = true
		o.mergePaths = append(o.mergePaths, paths...)
	}
}

// Set builds a Set operation: full replace by default, or a merge
// when WithMerge/WithMergePaths is supplied (spec §4.4).
func Set(target resourcepath.DocumentID, values FieldValues, precondition Precondition, opts ...SetOption) (Op, error) {
	if err := validateTarget(target); err != nil {
		return Op{}, err
	}
	o := Op{
		kind:         KindSet,
		target:       target,
		precondition: precondition,
		values:       values,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o, nil
}

// Update builds an Update operation. updates must be non-empty and
// its field paths must be pairwise non-prefix (spec §3, §4.4);
// precondition defaults to exists=true unless overridden.
func Update(target resourcepath.DocumentID, updates FieldValues, precondition ...Precondition) (Op, error) {
	if err := validateTarget(target); err != nil {
		return Op{}, err
	}
	if len(updates) == 0 {
		return Op{}, errors.New("writeop: update requires a non-empty field map")
	}
	paths := make([]resourcepath.FieldPath, 0, len(updates))
	for k := range updates {
		fp, err := resourcepath.ParseFieldPath(k)
		if err != nil {
			return Op{}, errors.Wrapf(err, "writeop: invalid field path %q", k)
		}
		paths = append(paths, fp)
	}
	if err := resourcepath.ValidateNonPrefix(paths); err != nil {
		return Op{}, errors.Wrap(err, "writeop: update")
	}
	pre := PreconditionExistsTrue()
	if len(precondition) > 0 {
		pre = precondition[0]
	}
	return Op{
		kind:         KindUpdate,
		target:       target,
		precondition: pre,
		updates:      updates,
		fieldPaths:   paths,
	}, nil
}

// Delete builds a Delete operation with an optional precondition.
func Delete(target resourcepath.DocumentID, precondition ...Precondition) (Op, error) {
	if err := validateTarget(target); err != nil {
		return Op{}, err
	}
	pre := NoPrecondition
	if len(precondition) > 0 {
		pre = precondition[0]
	}
	return Op{kind: KindDelete, target: target, precondition: pre}, nil
}

func validateTarget(target resourcepath.DocumentID) error {
	if target == "" {
		return errors.New("writeop: empty target document id")
	}
	return nil
}
