package api

const (
	OutputTypeJson = "json"
	OutputTypeText = "text"
)

// OutputSpec describes the expected shape of the model's output. Type must be
// one of OutputTypeJson or OutputTypeText; any other value is a data error.
// Notion is free-form text hinting at a sub-format, e.g. "python code".
type OutputSpec struct {
	Type   string `json:"type"`
	Notion string `json:"notion,omitempty"`
}

// Analysis is the technical specification produced by the upstream architect
// step. Task and Goal are mandatory; Constraint may be empty.
type Analysis struct {
	Task       string     `json:"task"`
	Goal       string     `json:"goal"`
	Constraint string     `json:"constraint,omitempty"`
	Output     OutputSpec `json:"output"`
}

// TestDataItem is one labeled example. Sequence order is preserved when the
// items are converted to conversation history.
type TestDataItem struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// TestData matches the on-disk test_data.json contract produced by the
// upstream generator step.
type TestData struct {
	Dataset []TestDataItem `json:"dataset"`
}
