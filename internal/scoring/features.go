package scoring

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrValidation marks feature payload validation failures. Callers detect it
// with errors.Is and turn it into a failed task rather than a crash.
var ErrValidation = errors.New("validation failed")

// Features is the fixed feature vector every scorer consumes.
type Features struct {
	TotalDebt        float64 `json:"total_debt"`
	PenaltyAmount    float64 `json:"penalty_amount"`
	DaysOverdue      int     `json:"days_overdue"`
	PaymentsRatio    float64 `json:"payments_ratio"`
	IsPhysicalPerson bool    `json:"is_physical_person"`
}

const featureSchema = `{
	"type": "object",
	"required": ["total_debt", "penalty_amount", "days_overdue", "payments_ratio", "is_physical_person"],
	"properties": {
		"total_debt":         {"type": "number", "exclusiveMinimum": 0},
		"penalty_amount":     {"type": "number", "minimum": 0},
		"days_overdue":       {"type": "integer", "minimum": 0},
		"payments_ratio":     {"type": "number", "minimum": 0, "maximum": 1},
		"is_physical_person": {"type": "boolean"}
	}
}`

var compiledFeatureSchema = jsonschema.MustCompileString(
	"https://lexscore.dev/schemas/features", featureSchema)

// ValidateFeatures checks a raw payload against the feature schema: every
// required field present, numeric fields within their declared domain. The
// returned error names the offending field and wraps ErrValidation.
func ValidateFeatures(raw json.RawMessage) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := compiledFeatureSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// ParseFeatures validates raw and decodes it into a Features value.
func ParseFeatures(raw json.RawMessage) (Features, error) {
	if err := ValidateFeatures(raw); err != nil {
		return Features{}, err
	}
	var f Features
	if err := json.Unmarshal(raw, &f); err != nil {
		return Features{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return f, nil
}
