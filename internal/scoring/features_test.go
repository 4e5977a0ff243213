package scoring

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const validPayload = `{
	"total_debt": 50000,
	"penalty_amount": 5000,
	"days_overdue": 120,
	"payments_ratio": 0.3,
	"is_physical_person": true
}`

func TestParseFeatures_Valid(t *testing.T) {
	f, err := ParseFeatures(json.RawMessage(validPayload))
	if err != nil {
		t.Fatalf("ParseFeatures: %v", err)
	}
	if f.TotalDebt != 50000 || f.DaysOverdue != 120 || !f.IsPhysicalPerson {
		t.Errorf("unexpected features: %+v", f)
	}
}

func TestValidateFeatures_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		field   string
	}{
		{
			name:    "missing days_overdue",
			payload: `{"total_debt":50000,"penalty_amount":5000,"payments_ratio":0.3,"is_physical_person":true}`,
			field:   "days_overdue",
		},
		{
			name:    "zero total_debt",
			payload: `{"total_debt":0,"penalty_amount":0,"days_overdue":0,"payments_ratio":0,"is_physical_person":false}`,
			field:   "total_debt",
		},
		{
			name:    "negative penalty_amount",
			payload: `{"total_debt":100,"penalty_amount":-1,"days_overdue":0,"payments_ratio":0,"is_physical_person":false}`,
			field:   "penalty_amount",
		},
		{
			name:    "fractional days_overdue",
			payload: `{"total_debt":100,"penalty_amount":0,"days_overdue":3.5,"payments_ratio":0,"is_physical_person":false}`,
			field:   "days_overdue",
		},
		{
			name:    "ratio above one",
			payload: `{"total_debt":100,"penalty_amount":0,"days_overdue":0,"payments_ratio":1.2,"is_physical_person":false}`,
			field:   "payments_ratio",
		},
		{
			name:    "non-boolean flag",
			payload: `{"total_debt":100,"penalty_amount":0,"days_overdue":0,"payments_ratio":0,"is_physical_person":"yes"}`,
			field:   "is_physical_person",
		},
		{
			name:    "not JSON",
			payload: `{`,
			field:   "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFeatures(json.RawMessage(tc.payload))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got: %v", err)
			}
			if tc.field != "" && !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error should name field %q, got: %v", tc.field, err)
			}
		})
	}
}
