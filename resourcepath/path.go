// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package resourcepath implements the document database's resource
// path and document identity model (spec §3): an ordered sequence of
// path segments rooted at a project/database pair, with predicates
// for whether a path names a document or a collection.
package resourcepath

import (
	"strings"

	"github.com/pkg/errors"
)

// ResourcePath is an immutable, ordered sequence of path segments
// under a project/database scope.
type ResourcePath struct {
	project  string
	database string
	segments []string
}

// New parses the canonical form
// "projects/P/databases/D/documents/seg1/seg2/...". The
// "projects/P/databases/D/documents" prefix is mandatory; everything
// after it becomes segments.
func New(canonical string) (ResourcePath, error) {
	const prefix = "projects/"
	if !strings.HasPrefix(canonical, prefix) {
		return ResourcePath{}, errors.Errorf("resourcepath: missing %q prefix in %q", prefix, canonical)
	}
	parts := strings.Split(canonical, "/")
	// parts: ["projects", P, "databases", D, "documents", seg1, seg2, ...]
	if len(parts) < 5 || parts[0] != "projects" || parts[2] != "databases" || parts[4] != "documents" {
		return ResourcePath{}, errors.Errorf("resourcepath: malformed canonical path %q", canonical)
	}
	project, database := parts[1], parts[3]
	if project == "" || database == "" {
		return ResourcePath{}, errors.Errorf("resourcepath: empty project or database in %q", canonical)
	}
	segments := parts[5:]
	for _, s := range segments {
		if s == "" {
			return ResourcePath{}, errors.Errorf("resourcepath: empty segment in %q", canonical)
		}
	}
	return ResourcePath{project: project, database: database, segments: append([]string(nil), segments...)}, nil
}

// Root returns the empty resource path ("collection group root") for
// a project/database pair.
func Root(project, database string) ResourcePath {
	return ResourcePath{project: project, database: database}
}

// Append returns a new ResourcePath with seg appended. seg must be
// non-empty and must not itself contain '/'.
func (p ResourcePath) Append(seg string) (ResourcePath, error) {
	if seg == "" {
		return ResourcePath{}, errors.New("resourcepath: empty segment")
	}
	if strings.Contains(seg, "/") {
		return ResourcePath{}, errors.Errorf("resourcepath: segment %q must not contain '/'", seg)
	}
	next := make([]string, len(p.segments)+1)
	copy(next, p.segments)
	next[len(p.segments)] = seg
	return ResourcePath{project: p.project, database: p.database, segments: next}, nil
}

// Parent returns the path with its final segment removed, and false
// if p is already the root.
func (p ResourcePath) Parent() (ResourcePath, bool) {
	if len(p.segments) == 0 {
		return ResourcePath{}, false
	}
	return ResourcePath{
		project:  p.project,
		database: p.database,
		segments: append([]string(nil), p.segments[:len(p.segments)-1]...),
	}, true
}

// Child is Append that panics instead of returning an error for an
// invalid segment; callers that need the error should use Append.
func (p ResourcePath) Child(seg string) ResourcePath {
	c, err := p.Append(seg)
	if err != nil {
		panic(err)
	}
	return c
}

// IsDocument reports whether p names a document: an even number of
// segments (spec §3 — excluding the fixed ".../documents" prefix).
func (p ResourcePath) IsDocument() bool {
	return len(p.segments) > 0 && len(p.segments)%2 == 0
}

// IsCollection reports whether p names a collection: an odd number of
// segments.
func (p ResourcePath) IsCollection() bool {
	return len(p.segments)%2 == 1
}

// IsRoot reports whether p has no segments at all (the documents root
// itself, neither a document nor a collection).
func (p ResourcePath) IsRoot() bool { return len(p.segments) == 0 }

// Segments returns a copy of p's path segments.
func (p ResourcePath) Segments() []string {
	return append([]string(nil), p.segments...)
}

// Project returns the project id p is scoped to.
func (p ResourcePath) Project() string { return p.project }

// Database returns the database id p is scoped to.
func (p ResourcePath) Database() string { return p.database }

// String returns the canonical resource path string, spec §3.
func (p ResourcePath) String() string {
	var b strings.Builder
	b.WriteString("projects/")
	b.WriteString(p.project)
	b.WriteString("/databases/")
	b.WriteString(p.database)
	b.WriteString("/documents")
	for _, s := range p.segments {
		b.WriteByte('/')
		b.WriteString(s)
	}
	return b.String()
}

// Equal reports whether p and other denote the same resource path.
func (p ResourcePath) Equal(other ResourcePath) bool {
	return p.String() == other.String()
}

// DocumentID is the canonical resource string identifying a document:
// by spec §3 it equals the canonical string of its owning
// ResourcePath. It is the identity used for BulkWriter's per-document
// ordering and in-flight tracking.
type DocumentID string

// Of derives the DocumentID for a document-shaped ResourcePath. It
// returns an error if p does not name a document.
func Of(p ResourcePath) (DocumentID, error) {
	if !p.IsDocument() {
		return "", errors.Errorf("resourcepath: %q is not a document path", p.String())
	}
	return DocumentID(p.String()), nil
}

// MustOf is Of, panicking on error. Intended for call sites (tests,
// constants) where the path is statically known to be a document.
func MustOf(p ResourcePath) DocumentID {
	id, err := Of(p)
	if err != nil {
		panic(err)
	}
	return id
}
