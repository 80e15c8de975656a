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

import "errors"

var (
	// ErrInvalidSpec indicates an inconsistent or malformed triple list.
	ErrInvalidSpec = errors.New("invalid type spec")

	// ErrUnknownType indicates a type name not declared by the spec.
	ErrUnknownType = errors.New("unknown node type")

	// ErrUndeclaredRelation indicates a relation not declared between the
	// given endpoint types.
	ErrUndeclaredRelation = errors.New("undeclared relation")
)
