package models

import (
	"fmt"
	"strconv"

	id "registro/pkg/domain"
)

// RecordFromPayload converts the untyped entityData map arriving at the HTTP
// boundary into a typed Record. The conversion is lenient: unknown keys are
// ignored and scalar values are coerced from whatever JSON decoded them as.
// Unknown entity types produce a Record that normalizes to empty, which the
// pipeline treats as zero candidates rather than a failure.
func RecordFromPayload(entityType id.EntityType, payload map[string]any) Record {
	switch entityType {
	case id.EntityTypeHousehold:
		return Record{
			Type: id.EntityTypeHousehold,
			Household: &HouseholdAttrs{
				HouseholdNumber: id.HouseholdNumber(stringValue(payload, "householdNumber")),
				HeadName:        stringValue(payload, "headName", "headOfHouseholdName"),
				Address:         stringValue(payload, "address"),
				MemberCount:     intValue(payload, "memberCount"),
				MonthlyIncome:   floatValue(payload, "monthlyIncome"),
			},
		}
	case id.EntityTypeIndividual:
		return Record{
			Type: id.EntityTypeIndividual,
			Individual: &IndividualAttrs{
				FirstName:  stringValue(payload, "firstName"),
				MiddleName: stringValue(payload, "middleName"),
				LastName:   stringValue(payload, "lastName"),
				PSN:        id.PSN(stringValue(payload, "psn")),
				BirthDate:  stringValue(payload, "birthDate", "dateOfBirth"),
				Address:    stringValue(payload, "address"),
			},
		}
	default:
		return Record{Type: entityType}
	}
}

// stringValue returns the first present key, coercing non-string scalars.
func stringValue(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		default:
			return fmt.Sprintf("%v", t)
		}
	}
	return ""
}

func intValue(payload map[string]any, keys ...string) int {
	for _, key := range keys {
		switch t := payload[key].(type) {
		case float64:
			return int(t)
		case int:
			return t
		case string:
			if n, err := strconv.Atoi(t); err == nil {
				return n
			}
		}
	}
	return 0
}

func floatValue(payload map[string]any, keys ...string) float64 {
	for _, key := range keys {
		switch t := payload[key].(type) {
		case float64:
			return t
		case int:
			return float64(t)
		case string:
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				return f
			}
		}
	}
	return 0
}
