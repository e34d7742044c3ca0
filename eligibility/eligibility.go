// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package eligibility maps academic credentials to classifications and
// decides whether a classification may vote in an election. Everything here
// is pure: no I/O, no shared mutable state.
package eligibility

import (
	"regexp"
	"slices"

	"github.com/danielhkuo/univote/models"
)

// Credentials look like 21CG029830: entry year, two-letter program code,
// six-digit serial.
var credentialPattern = regexp.MustCompile(`^\d{2}[A-Z]{2}\d{6}$`)

// programCodes is keyed by the program code embedded in a credential.
var programCodes = map[string]models.Classification{
	"CG": {
		Department: "Computer and Information Science",
		Program:    "BSc Computer Science",
	},
	"CH": {
		Department: "Computer and Information Science",
		Program:    "BSc Management and Information Science",
	},
}

// ValidFormat reports whether credential is shaped like a credential,
// regardless of whether its program code is known.
func ValidFormat(credential string) bool {
	return credentialPattern.MatchString(credential)
}

// Classify returns the classification of a credential, or false when the
// credential is malformed or its program code is unrecognized.
func Classify(credential string) (models.Classification, bool) {
	if !ValidFormat(credential) {
		return models.Classification{}, false
	}
	c, ok := programCodes[credential[2:4]]
	return c, ok
}

// IsEligible decides membership. General elections admit everyone;
// department elections compare the department and program elections compare
// the program, never the other field. An empty classification (unrecognized
// credential) is never a member of a restricted election.
func IsEligible(election models.Election, c models.Classification) bool {
	switch election.Type {
	case models.TypeGeneral:
		return true
	case models.TypeDepartment:
		return c.Department != "" && slices.Contains(election.AllowedValues, c.Department)
	case models.TypeProgram:
		return c.Program != "" && slices.Contains(election.AllowedValues, c.Program)
	default:
		return false
	}
}
