// Package validate enforces per-entity-type field rules at the ingestion
// boundary. Validation is side-effect free; a failed record never reaches the
// normalizer.
package validate

import (
	"fmt"
	"time"

	"registro/internal/dedupe/models"
	"registro/internal/dedupe/normalize"
	id "registro/pkg/domain"
)

// FieldError is one field-level validation failure, returned as structured
// data so batch ingestion can continue past individual record failures.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

const (
	maxNameLength    = 200
	maxAddressLength = 500
	maxMemberCount   = 50
	minBirthYear     = 1900
)

// Validator checks typed records. The zero value is not usable; construct
// with New.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate returns nil when the record passes. now anchors the
// birth-date-in-the-future check so validation stays deterministic in tests.
func (v *Validator) Validate(rec models.Record, now time.Time) []FieldError {
	switch rec.Type {
	case id.EntityTypeHousehold:
		if rec.Household == nil {
			return []FieldError{{Field: "dataPayload", Message: "household payload is required"}}
		}
		return v.validateHousehold(*rec.Household)
	case id.EntityTypeIndividual:
		if rec.Individual == nil {
			return []FieldError{{Field: "dataPayload", Message: "individual payload is required"}}
		}
		return v.validateIndividual(*rec.Individual, now)
	default:
		return []FieldError{{Field: "dataType", Message: fmt.Sprintf("unsupported entity type %q", string(rec.Type))}}
	}
}

func (v *Validator) validateHousehold(attrs models.HouseholdAttrs) []FieldError {
	var errs []FieldError

	if attrs.HouseholdNumber == "" {
		errs = append(errs, FieldError{Field: "householdNumber", Message: "household number is required"})
	} else if !attrs.HouseholdNumber.Valid() {
		errs = append(errs, FieldError{Field: "householdNumber", Message: "must match HH-YYYY-NNNNNNNN"})
	}
	if attrs.HeadName == "" {
		errs = append(errs, FieldError{Field: "headName", Message: "head of household name is required"})
	} else if len(attrs.HeadName) > maxNameLength {
		errs = append(errs, FieldError{Field: "headName", Message: "name exceeds maximum length"})
	}
	if attrs.Address == "" {
		errs = append(errs, FieldError{Field: "address", Message: "address is required"})
	} else if len(attrs.Address) > maxAddressLength {
		errs = append(errs, FieldError{Field: "address", Message: "address exceeds maximum length"})
	}
	if attrs.MemberCount < 1 {
		errs = append(errs, FieldError{Field: "memberCount", Message: "member count must be at least 1"})
	} else if attrs.MemberCount > maxMemberCount {
		errs = append(errs, FieldError{Field: "memberCount", Message: fmt.Sprintf("member count exceeds %d", maxMemberCount)})
	}
	if attrs.MonthlyIncome < 0 {
		errs = append(errs, FieldError{Field: "monthlyIncome", Message: "monthly income cannot be negative"})
	}
	return errs
}

func (v *Validator) validateIndividual(attrs models.IndividualAttrs, now time.Time) []FieldError {
	var errs []FieldError

	if attrs.FirstName == "" {
		errs = append(errs, FieldError{Field: "firstName", Message: "first name is required"})
	} else if len(attrs.FirstName) > maxNameLength {
		errs = append(errs, FieldError{Field: "firstName", Message: "name exceeds maximum length"})
	}
	if attrs.LastName == "" {
		errs = append(errs, FieldError{Field: "lastName", Message: "last name is required"})
	} else if len(attrs.LastName) > maxNameLength {
		errs = append(errs, FieldError{Field: "lastName", Message: "name exceeds maximum length"})
	}
	if attrs.PSN != "" && !attrs.PSN.Valid() {
		errs = append(errs, FieldError{Field: "psn", Message: "must match NNNN-NNNN-NNNN or NNNN-NNNN-NNNN-NNNN"})
	}
	if attrs.BirthDate == "" {
		errs = append(errs, FieldError{Field: "birthDate", Message: "birth date is required"})
	} else {
		iso, year := normalize.CanonicalDate(attrs.BirthDate)
		switch {
		case iso == "":
			errs = append(errs, FieldError{Field: "birthDate", Message: "unrecognized date format"})
		case year < minBirthYear:
			errs = append(errs, FieldError{Field: "birthDate", Message: fmt.Sprintf("birth year cannot be before %d", minBirthYear)})
		default:
			if parsed, err := time.Parse("2006-01-02", iso); err == nil && parsed.After(now) {
				errs = append(errs, FieldError{Field: "birthDate", Message: "birth date cannot be in the future"})
			}
		}
	}
	if len(attrs.Address) > maxAddressLength {
		errs = append(errs, FieldError{Field: "address", Message: "address exceeds maximum length"})
	}
	return errs
}
