package validate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registro/internal/dedupe/models"
	"registro/internal/ingest/validate"
	id "registro/pkg/domain"
)

type ValidateSuite struct {
	suite.Suite
	validator *validate.Validator
	now       time.Time
}

func TestValidateSuite(t *testing.T) {
	suite.Run(t, new(ValidateSuite))
}

func (s *ValidateSuite) SetupTest() {
	s.validator = validate.New()
	s.now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func fieldNames(errs []validate.FieldError) []string {
	names := make([]string, 0, len(errs))
	for _, e := range errs {
		names = append(names, e.Field)
	}
	return names
}

func (s *ValidateSuite) TestValidIndividualPasses() {
	rec := models.Record{
		Type: id.EntityTypeIndividual,
		Individual: &models.IndividualAttrs{
			FirstName: "Juan",
			LastName:  "Dela Cruz",
			PSN:       "1234-5678-9012",
			BirthDate: "1990-01-01",
			Address:   "123 Main St",
		},
	}

	s.Empty(s.validator.Validate(rec, s.now))
}

func (s *ValidateSuite) TestIndividualFieldRules() {
	cases := []struct {
		name  string
		attrs models.IndividualAttrs
		field string
	}{
		{"missing first name", models.IndividualAttrs{LastName: "Santos"}, "firstName"},
		{"missing last name", models.IndividualAttrs{FirstName: "Juan"}, "lastName"},
		{"malformed psn", models.IndividualAttrs{FirstName: "Juan", LastName: "Santos", PSN: "1234-56"}, "psn"},
		{"missing birth date", models.IndividualAttrs{FirstName: "Juan", LastName: "Santos"}, "birthDate"},
		{"garbage birth date", models.IndividualAttrs{FirstName: "Juan", LastName: "Santos", BirthDate: "not-a-date"}, "birthDate"},
		{"future birth date", models.IndividualAttrs{FirstName: "Juan", LastName: "Santos", BirthDate: "2030-01-01"}, "birthDate"},
		{"birth year before 1900", models.IndividualAttrs{FirstName: "Juan", LastName: "Santos", BirthDate: "1888-05-05"}, "birthDate"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			attrs := tc.attrs
			errs := s.validator.Validate(models.Record{Type: id.EntityTypeIndividual, Individual: &attrs}, s.now)
			s.Contains(fieldNames(errs), tc.field)
		})
	}
}

func (s *ValidateSuite) TestPSNIsOptional() {
	rec := models.Record{
		Type: id.EntityTypeIndividual,
		Individual: &models.IndividualAttrs{
			FirstName: "Juan",
			LastName:  "Santos",
			BirthDate: "1990-01-01",
		},
	}

	s.Empty(s.validator.Validate(rec, s.now))
}

func (s *ValidateSuite) TestValidHouseholdPasses() {
	rec := models.Record{
		Type: id.EntityTypeHousehold,
		Household: &models.HouseholdAttrs{
			HouseholdNumber: "HH-2024-00001234",
			HeadName:        "Pedro Reyes",
			Address:         "45 Rizal Ave",
			MemberCount:     5,
			MonthlyIncome:   12000,
		},
	}

	s.Empty(s.validator.Validate(rec, s.now))
}

func (s *ValidateSuite) TestHouseholdFieldRules() {
	cases := []struct {
		name  string
		attrs models.HouseholdAttrs
		field string
	}{
		{"missing household number", models.HouseholdAttrs{HeadName: "Pedro Reyes"}, "householdNumber"},
		{"malformed household number", models.HouseholdAttrs{HouseholdNumber: "2024-1234", HeadName: "Pedro Reyes"}, "householdNumber"},
		{"missing head name", models.HouseholdAttrs{HouseholdNumber: "HH-2024-00001234"}, "headName"},
		{"missing address", models.HouseholdAttrs{HouseholdNumber: "HH-2024-00001234", HeadName: "Pedro Reyes", MemberCount: 5}, "address"},
		{"zero member count", models.HouseholdAttrs{HouseholdNumber: "HH-2024-00001234", HeadName: "Pedro Reyes", Address: "45 Rizal Ave"}, "memberCount"},
		{"negative member count", models.HouseholdAttrs{HouseholdNumber: "HH-2024-00001234", HeadName: "Pedro Reyes", MemberCount: -1}, "memberCount"},
		{"negative income", models.HouseholdAttrs{HouseholdNumber: "HH-2024-00001234", HeadName: "Pedro Reyes", MonthlyIncome: -5}, "monthlyIncome"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			attrs := tc.attrs
			errs := s.validator.Validate(models.Record{Type: id.EntityTypeHousehold, Household: &attrs}, s.now)
			s.Contains(fieldNames(errs), tc.field)
		})
	}
}

func (s *ValidateSuite) TestUnsupportedEntityType() {
	errs := s.validator.Validate(models.Record{Type: id.EntityType("BARANGAY")}, s.now)

	s.Require().Len(errs, 1)
	s.Equal("dataType", errs[0].Field)
}

func (s *ValidateSuite) TestMissingPayloadVariant() {
	errs := s.validator.Validate(models.Record{Type: id.EntityTypeIndividual}, s.now)

	s.Require().Len(errs, 1)
	s.Equal("dataPayload", errs[0].Field)
}
