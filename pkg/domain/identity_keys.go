package domain

import (
	"regexp"

	dErrors "registro/pkg/domain-errors"
)

// EntityType tags which kind of registry entity a record describes.
type EntityType string

const (
	EntityTypeHousehold  EntityType = "HOUSEHOLD"
	EntityTypeIndividual EntityType = "INDIVIDUAL"
)

// IsValid reports whether the entity type is one the registry knows.
// Unknown types are tolerated at the dedupe boundary (they yield zero
// matches) but rejected at ingestion.
func (t EntityType) IsValid() bool {
	return t == EntityTypeHousehold || t == EntityTypeIndividual
}

var (
	psnPattern             = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}(-\d{4})?$`)
	householdNumberPattern = regexp.MustCompile(`^HH-\d{4}-\d{8}$`)
)

// PSN is a PhilSys Number, the national identity number. When present it is
// the strongest matching key an individual record can carry.
type PSN string

// ParsePSN validates the dashed PSN format (three or four groups of four digits).
func ParsePSN(s string) (PSN, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "psn is required")
	}
	if !psnPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "psn does not match the expected format")
	}
	return PSN(s), nil
}

// Valid reports whether a non-empty PSN matches the expected format.
func (p PSN) Valid() bool { return psnPattern.MatchString(string(p)) }

func (p PSN) String() string { return string(p) }

// HouseholdNumber is the stable identifier assigned to registered households.
type HouseholdNumber string

// ParseHouseholdNumber validates the HH-YYYY-NNNNNNNN format.
func ParseHouseholdNumber(s string) (HouseholdNumber, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "household_number is required")
	}
	if !householdNumberPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "household_number does not match the expected format")
	}
	return HouseholdNumber(s), nil
}

// Valid reports whether a non-empty household number matches the expected format.
func (h HouseholdNumber) Valid() bool { return householdNumberPattern.MatchString(string(h)) }

func (h HouseholdNumber) String() string { return string(h) }
