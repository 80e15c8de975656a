// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package typespec declares the schema for typed hypergraphs.
//
// A schema is an ordered list of (core-type, relation, non-core-type)
// triples. Exactly one node type is the core type for a mining run; every
// triple connects that core type to one non-core type under a named
// relation. Core nodes may additionally connect to each other through the
// reserved implicit relation (see CoreRelation).
//
// # Type and Relation IDs
//
// The core type always has TypeID 0. Non-core types receive TypeIDs 1..N
// in order of first appearance in the triple list; relations receive
// RelationIDs 0..M-1 the same way. IDs are stable for a given triple list,
// which keeps downstream indexes and output ordering deterministic.
//
// # Multiplicity
//
// A schema may declare several relations between the core type and the
// same non-core type. The multiplicity of a non-core type is the number of
// such triples: the maximum number of distinct edges one core node can
// share with one node of that type. Density denominators downstream scale
// by multiplicity so densities stay within [0, 1].
//
// # Thread Safety
//
// Spec is immutable after New returns and safe for unsynchronized
// concurrent reads.
package typespec

import (
	"fmt"

	"github.com/AleutianAI/trawl/pkg/validation"
)

// TypeID identifies a node type within one Spec. The core type is always
// CoreTypeID; non-core types are numbered from 1 in declaration order.
type TypeID int

// CoreTypeID is the TypeID of the core type in every Spec.
const CoreTypeID TypeID = 0

// RelationID identifies a declared relation within one Spec.
type RelationID int

// CoreRelation is the reserved name of the implicit core-core relation.
// It cannot be declared in a triple; edges between two core nodes carry it.
const CoreRelation = "core"

// Triple is one declared schema row: the core type relates to one
// non-core type under a named relation.
type Triple struct {
	Core     string `json:"core" yaml:"core" validate:"required"`
	Relation string `json:"relation" yaml:"relation" validate:"required"`
	NonCore  string `json:"non_core" yaml:"non_core" validate:"required"`
}

// Spec is a validated, immutable schema.
type Spec struct {
	coreType string
	triples  []Triple

	nonCoreNames []string           // index = TypeID-1
	nonCoreIDs   map[string]TypeID  // name -> id
	relNames     []string           // index = RelationID
	relIDs       map[string]RelationID

	// allowed marks declared (non-core type, relation) pairs.
	allowed map[pairKey]struct{}

	// multiplicity is indexed by TypeID; slot 0 (core) is always 1.
	multiplicity []int
}

type pairKey struct {
	typ TypeID
	rel RelationID
}

// New builds a Spec from an ordered triple list.
//
// Description:
//
//	Validates the triple list and assigns type and relation IDs. Every
//	triple must name the same core type; when coreType is non-empty it
//	must match that shared core type. An empty triple list is legal when
//	coreType is given: the resulting schema admits only implicit
//	core-core edges, and mining over it yields empty results rather than
//	an error.
//
// Inputs:
//
//	triples - Ordered schema rows. May be empty.
//	coreType - The designated core type for this run. Required when
//	           triples is empty; otherwise may be "" to infer it from
//	           the triples.
//
// Outputs:
//
//	*Spec - The validated schema.
//	error - ErrInvalidSpec (wrapped with detail) when the list is
//	        inconsistent: mixed core types, a triple whose two sides name
//	        the same type, the reserved relation name, an exact duplicate
//	        triple, an empty field, or a name rejected by
//	        validation.ValidateTypeName.
//
// Example:
//
//	spec, err := typespec.New([]typespec.Triple{
//	    {Core: "author", Relation: "published", NonCore: "article"},
//	}, "author")
func New(triples []Triple, coreType string) (*Spec, error) {
	if len(triples) == 0 && coreType == "" {
		return nil, fmt.Errorf("%w: empty triple list requires an explicit core type", ErrInvalidSpec)
	}
	if coreType != "" {
		if err := validation.ValidateTypeName(coreType); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
	}

	s := &Spec{
		coreType:     coreType,
		triples:      make([]Triple, len(triples)),
		nonCoreIDs:   make(map[string]TypeID),
		relIDs:       make(map[string]RelationID),
		allowed:      make(map[pairKey]struct{}),
		multiplicity: []int{1},
	}
	copy(s.triples, triples)

	seen := make(map[Triple]struct{}, len(triples))
	for i, t := range triples {
		if t.Core == "" || t.Relation == "" || t.NonCore == "" {
			return nil, fmt.Errorf("%w: triple %d has an empty field", ErrInvalidSpec, i)
		}
		if err := validation.ValidateTypeNames([]string{t.Core, t.Relation, t.NonCore}); err != nil {
			return nil, fmt.Errorf("%w: triple %d: %v", ErrInvalidSpec, i, err)
		}
		if s.coreType == "" {
			s.coreType = t.Core
		}
		if t.Core != s.coreType {
			return nil, fmt.Errorf("%w: triple %d declares core type %q, want %q",
				ErrInvalidSpec, i, t.Core, s.coreType)
		}
		if t.NonCore == s.coreType {
			return nil, fmt.Errorf("%w: triple %d relates core type %q to itself",
				ErrInvalidSpec, i, t.Core)
		}
		if t.Relation == CoreRelation {
			return nil, fmt.Errorf("%w: triple %d uses reserved relation %q",
				ErrInvalidSpec, i, CoreRelation)
		}
		if _, dup := seen[t]; dup {
			return nil, fmt.Errorf("%w: duplicate triple (%s, %s, %s)",
				ErrInvalidSpec, t.Core, t.Relation, t.NonCore)
		}
		seen[t] = struct{}{}

		typ, ok := s.nonCoreIDs[t.NonCore]
		if !ok {
			typ = TypeID(len(s.nonCoreNames) + 1)
			s.nonCoreIDs[t.NonCore] = typ
			s.nonCoreNames = append(s.nonCoreNames, t.NonCore)
			s.multiplicity = append(s.multiplicity, 0)
		}
		rel, ok := s.relIDs[t.Relation]
		if !ok {
			rel = RelationID(len(s.relNames))
			s.relIDs[t.Relation] = rel
			s.relNames = append(s.relNames, t.Relation)
		}

		s.allowed[pairKey{typ: typ, rel: rel}] = struct{}{}
		s.multiplicity[typ]++
	}
	return s, nil
}

// CoreType returns the designated core type name.
func (s *Spec) CoreType() string { return s.coreType }

// NonCoreTypes returns the non-core type names in declaration order.
// The returned slice is a copy.
func (s *Spec) NonCoreTypes() []string {
	out := make([]string, len(s.nonCoreNames))
	copy(out, s.nonCoreNames)
	return out
}

// NumNonCoreTypes returns the number of distinct non-core types.
func (s *Spec) NumNonCoreTypes() int { return len(s.nonCoreNames) }

// NumRelations returns the number of distinct declared relations,
// excluding the implicit core-core relation.
func (s *Spec) NumRelations() int { return len(s.relNames) }

// IsEmpty reports whether the schema declares no triples.
func (s *Spec) IsEmpty() bool { return len(s.triples) == 0 }

// Triples returns a copy of the declared triples in order.
func (s *Spec) Triples() []Triple {
	out := make([]Triple, len(s.triples))
	copy(out, s.triples)
	return out
}

// TypeIDOf resolves a type name to its TypeID.
func (s *Spec) TypeIDOf(name string) (TypeID, bool) {
	if name == s.coreType {
		return CoreTypeID, true
	}
	id, ok := s.nonCoreIDs[name]
	return id, ok
}

// TypeName returns the name for a TypeID, or "" when out of range.
func (s *Spec) TypeName(id TypeID) string {
	if id == CoreTypeID {
		return s.coreType
	}
	i := int(id) - 1
	if i < 0 || i >= len(s.nonCoreNames) {
		return ""
	}
	return s.nonCoreNames[i]
}

// RelationIDOf resolves a declared relation name to its RelationID.
// The implicit core-core relation has no RelationID.
func (s *Spec) RelationIDOf(name string) (RelationID, bool) {
	id, ok := s.relIDs[name]
	return id, ok
}

// RelationName returns the name for a RelationID, or "" when out of range.
func (s *Spec) RelationName(id RelationID) string {
	if int(id) < 0 || int(id) >= len(s.relNames) {
		return ""
	}
	return s.relNames[id]
}

// Allows reports whether the schema declares the (non-core type, relation)
// pair. The core type is never allowed here; core-core edges go through
// the implicit relation instead.
func (s *Spec) Allows(typ TypeID, rel RelationID) bool {
	if typ == CoreTypeID {
		return false
	}
	_, ok := s.allowed[pairKey{typ: typ, rel: rel}]
	return ok
}

// Multiplicity returns the maximum number of distinct edges one core node
// can share with one node of the given type: 1 for the core type, and the
// number of declared relations for a non-core type.
func (s *Spec) Multiplicity(typ TypeID) int {
	i := int(typ)
	if i < 0 || i >= len(s.multiplicity) {
		return 0
	}
	return s.multiplicity[i]
}

// EdgeEnds is a resolved edge orientation: the core endpoint first.
type EdgeEnds struct {
	// NonCoreType is the resolved type of the non-core endpoint, or
	// CoreTypeID for a core-core edge.
	NonCoreType TypeID

	// Relation is the resolved relation, meaningful only when
	// NonCoreType != CoreTypeID.
	Relation RelationID

	// Swapped is true when the caller's first endpoint was the non-core
	// side and the endpoints must be exchanged to put the core node first.
	Swapped bool
}

// ResolveEdge validates one raw edge against the schema and normalizes its
// orientation.
//
// Description:
//
//	Checks that both endpoint type names are declared and that the
//	relation is legal between them. Core-core edges must carry the
//	reserved CoreRelation name. Exactly one endpoint must be core unless
//	the edge is core-core; two non-core endpoints are never legal.
//
// Inputs:
//
//	typeA, typeB - Endpoint type names as parsed from input.
//	relation - Relation name as parsed from input.
//
// Outputs:
//
//	EdgeEnds - Normalized orientation and resolved IDs.
//	error - ErrUnknownType for an undeclared type name;
//	        ErrUndeclaredRelation for a relation not declared between the
//	        resolved types.
func (s *Spec) ResolveEdge(typeA, typeB, relation string) (EdgeEnds, error) {
	idA, okA := s.TypeIDOf(typeA)
	if !okA {
		return EdgeEnds{}, fmt.Errorf("%w: %q", ErrUnknownType, typeA)
	}
	idB, okB := s.TypeIDOf(typeB)
	if !okB {
		return EdgeEnds{}, fmt.Errorf("%w: %q", ErrUnknownType, typeB)
	}

	if idA == CoreTypeID && idB == CoreTypeID {
		if relation != CoreRelation {
			return EdgeEnds{}, fmt.Errorf("%w: core-core edge requires relation %q, got %q",
				ErrUndeclaredRelation, CoreRelation, relation)
		}
		return EdgeEnds{NonCoreType: CoreTypeID}, nil
	}
	if idA != CoreTypeID && idB != CoreTypeID {
		return EdgeEnds{}, fmt.Errorf("%w: edge between non-core types %q and %q",
			ErrUndeclaredRelation, typeA, typeB)
	}

	swapped := idA != CoreTypeID
	nonCore := idB
	if swapped {
		nonCore = idA
	}
	rel, ok := s.RelationIDOf(relation)
	if !ok || !s.Allows(nonCore, rel) {
		return EdgeEnds{}, fmt.Errorf("%w: %q between %q and %q",
			ErrUndeclaredRelation, relation, s.coreType, s.TypeName(nonCore))
	}
	return EdgeEnds{NonCoreType: nonCore, Relation: rel, Swapped: swapped}, nil
}
