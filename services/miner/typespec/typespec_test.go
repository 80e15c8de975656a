// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package typespec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SingleTriple(t *testing.T) {
	spec, err := New([]Triple{
		{Core: "author", Relation: "published", NonCore: "article"},
	}, "author")
	require.NoError(t, err)

	assert.Equal(t, "author", spec.CoreType())
	assert.Equal(t, []string{"article"}, spec.NonCoreTypes())
	assert.Equal(t, 1, spec.NumNonCoreTypes())
	assert.Equal(t, 1, spec.NumRelations())
	assert.False(t, spec.IsEmpty())

	id, ok := spec.TypeIDOf("article")
	require.True(t, ok)
	assert.Equal(t, TypeID(1), id)
	assert.Equal(t, 1, spec.Multiplicity(id))

	core, ok := spec.TypeIDOf("author")
	require.True(t, ok)
	assert.Equal(t, CoreTypeID, core)
	assert.Equal(t, 1, spec.Multiplicity(CoreTypeID))
}

func TestNew_InfersCoreType(t *testing.T) {
	spec, err := New([]Triple{
		{Core: "user", Relation: "joined", NonCore: "group"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "user", spec.CoreType())
}

func TestNew_DeclarationOrderAssignsIDs(t *testing.T) {
	spec, err := New([]Triple{
		{Core: "author", Relation: "published", NonCore: "article"},
		{Core: "author", Relation: "reviewed", NonCore: "book"},
		{Core: "author", Relation: "published", NonCore: "book"},
	}, "author")
	require.NoError(t, err)

	article, ok := spec.TypeIDOf("article")
	require.True(t, ok)
	book, ok := spec.TypeIDOf("book")
	require.True(t, ok)
	assert.Equal(t, TypeID(1), article)
	assert.Equal(t, TypeID(2), book)
	assert.Equal(t, "article", spec.TypeName(article))
	assert.Equal(t, "book", spec.TypeName(book))

	published, ok := spec.RelationIDOf("published")
	require.True(t, ok)
	reviewed, ok := spec.RelationIDOf("reviewed")
	require.True(t, ok)
	assert.Equal(t, RelationID(0), published)
	assert.Equal(t, RelationID(1), reviewed)

	// book participates in two relations, article in one
	assert.Equal(t, 2, spec.Multiplicity(book))
	assert.Equal(t, 1, spec.Multiplicity(article))

	assert.True(t, spec.Allows(book, published))
	assert.True(t, spec.Allows(book, reviewed))
	assert.True(t, spec.Allows(article, published))
	assert.False(t, spec.Allows(article, reviewed))
}

func TestNew_EmptySpecWithExplicitCore(t *testing.T) {
	spec, err := New(nil, "author")
	require.NoError(t, err)
	assert.True(t, spec.IsEmpty())
	assert.Equal(t, "author", spec.CoreType())
	assert.Equal(t, 0, spec.NumNonCoreTypes())
}

func TestNew_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		triples  []Triple
		coreType string
	}{
		{
			name:     "empty list without core type",
			triples:  nil,
			coreType: "",
		},
		{
			name: "mixed core types",
			triples: []Triple{
				{Core: "author", Relation: "published", NonCore: "article"},
				{Core: "editor", Relation: "reviewed", NonCore: "article"},
			},
			coreType: "",
		},
		{
			name: "core type mismatch with explicit core",
			triples: []Triple{
				{Core: "author", Relation: "published", NonCore: "article"},
			},
			coreType: "editor",
		},
		{
			name: "self-related core type",
			triples: []Triple{
				{Core: "author", Relation: "cites", NonCore: "author"},
			},
			coreType: "author",
		},
		{
			name: "reserved relation name",
			triples: []Triple{
				{Core: "author", Relation: CoreRelation, NonCore: "article"},
			},
			coreType: "author",
		},
		{
			name: "duplicate triple",
			triples: []Triple{
				{Core: "author", Relation: "published", NonCore: "article"},
				{Core: "author", Relation: "published", NonCore: "article"},
			},
			coreType: "author",
		},
		{
			name: "empty field",
			triples: []Triple{
				{Core: "author", Relation: "", NonCore: "article"},
			},
			coreType: "author",
		},
		{
			name: "tab in type name",
			triples: []Triple{
				{Core: "author", Relation: "published", NonCore: "art\ticle"},
			},
			coreType: "author",
		},
		{
			name: "newline in relation name",
			triples: []Triple{
				{Core: "author", Relation: "pub\nlished", NonCore: "article"},
			},
			coreType: "author",
		},
		{
			name:     "malformed explicit core type",
			triples:  nil,
			coreType: "au thor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.triples, tt.coreType)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSpec)
		})
	}
}

func TestResolveEdge(t *testing.T) {
	spec, err := New([]Triple{
		{Core: "author", Relation: "published", NonCore: "article"},
		{Core: "author", Relation: "reviewed", NonCore: "book"},
	}, "author")
	require.NoError(t, err)

	t.Run("core to non-core", func(t *testing.T) {
		ends, err := spec.ResolveEdge("author", "article", "published")
		require.NoError(t, err)
		assert.Equal(t, TypeID(1), ends.NonCoreType)
		assert.False(t, ends.Swapped)
	})

	t.Run("non-core first swaps", func(t *testing.T) {
		ends, err := spec.ResolveEdge("article", "author", "published")
		require.NoError(t, err)
		assert.Equal(t, TypeID(1), ends.NonCoreType)
		assert.True(t, ends.Swapped)
	})

	t.Run("core-core with implicit relation", func(t *testing.T) {
		ends, err := spec.ResolveEdge("author", "author", CoreRelation)
		require.NoError(t, err)
		assert.Equal(t, CoreTypeID, ends.NonCoreType)
	})

	t.Run("core-core with declared relation rejected", func(t *testing.T) {
		_, err := spec.ResolveEdge("author", "author", "published")
		assert.ErrorIs(t, err, ErrUndeclaredRelation)
	})

	t.Run("two non-core endpoints rejected", func(t *testing.T) {
		_, err := spec.ResolveEdge("article", "book", "published")
		assert.ErrorIs(t, err, ErrUndeclaredRelation)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := spec.ResolveEdge("author", "journal", "published")
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("relation not declared for type", func(t *testing.T) {
		_, err := spec.ResolveEdge("author", "book", "published")
		assert.ErrorIs(t, err, ErrUndeclaredRelation)
	})
}
