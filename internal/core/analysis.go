package core

import (
	"encoding/json"
	"fmt"
	"promptx/pkg/api"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ValidateAnalysis checks that an analysis carries everything the prompt
// assembly needs. Failures are reported as a ValidationError.
func ValidateAnalysis(analysis api.Analysis) error {
	err := validation.ValidateStruct(&analysis,
		validation.Field(&analysis.Task, validation.Required, validation.By(notBlank)),
		validation.Field(&analysis.Goal, validation.Required, validation.By(notBlank)),
		validation.Field(&analysis.Output, validation.By(validOutputSpec)),
	)
	if err != nil {
		return validationErrorf("invalid analysis: %v", err)
	}
	return nil
}

func notBlank(value any) error {
	if s, ok := value.(string); !ok || strings.TrimSpace(s) == "" {
		return fmt.Errorf("cannot be blank")
	}
	return nil
}

func validOutputSpec(value any) error {
	spec, ok := value.(api.OutputSpec)
	if !ok {
		return fmt.Errorf("must be an output spec")
	}
	switch spec.Type {
	case api.OutputTypeJson, api.OutputTypeText:
		return nil
	default:
		return fmt.Errorf("unrecognized type %q", spec.Type)
	}
}

// ParseAnalysis decodes the contents of an analysis.json artifact.
func ParseAnalysis(data []byte) (api.Analysis, error) {
	var analysis api.Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return api.Analysis{}, validationErrorf("malformed analysis document: %v", err)
	}
	return analysis, nil
}

// ParseTestData decodes the contents of a test_data.json artifact.
func ParseTestData(data []byte) (api.TestData, error) {
	var testData api.TestData
	if err := json.Unmarshal(data, &testData); err != nil {
		return api.TestData{}, validationErrorf("malformed test data document: %v", err)
	}
	return testData, nil
}
