// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for names that
// cross trust boundaries.
//
// This package contains validators for user-provided identifiers that are
// echoed into tab-separated output rows, storage keys, and log fields. A
// type name carrying a tab or newline would silently corrupt the TSV wire
// format for every downstream consumer, so names are validated once at
// schema construction rather than escaped at every write site.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// typeNamePattern matches valid node type and relation names.
// Allows: letters, digits, underscores, dots, hyphens
// Max length: 64 characters
var typeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]{0,63}$`)

// ValidateTypeName validates a node type or relation name before it is
// used in output rows or storage keys.
//
// Valid names:
//   - 1-64 characters
//   - Letters A-Z and a-z
//   - Digits 0-9
//   - Underscores (_) anywhere, dots (.) and hyphens (-) after the first
//     character
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateTypeName(name); err != nil {
//	    return nil, fmt.Errorf("invalid type name: %w", err)
//	}
//	// Safe to echo into TSV output
func ValidateTypeName(name string) error {
	if name == "" {
		return fmt.Errorf("type name cannot be empty")
	}

	if !typeNamePattern.MatchString(name) {
		return fmt.Errorf("invalid type name: %q (must be 1-64 letters, digits, underscores, dots, or hyphens)", name)
	}

	return nil
}

// ValidateTypeNames validates multiple type or relation names.
// Returns an error listing all invalid names if any fail validation.
func ValidateTypeNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateTypeName(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid type names: %v", invalid)
	}
	return nil
}

// SanitizeTypeName normalizes and validates a type or relation name.
// Returns the trimmed name if valid, or an error if invalid. Case is
// preserved: "Author" and "author" are distinct types.
//
// Use this when accepting names from hand-edited schema files:
//
//	safeName, err := validation.SanitizeTypeName(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeName is trimmed and validated
func SanitizeTypeName(name string) (string, error) {
	normalized := strings.TrimSpace(name)
	if err := ValidateTypeName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
