package core

import (
	"fmt"
	"promptx/pkg/api"
	"strings"
)

const (
	// DefaultPlaceholder stands in for the runtime input. Callers substitute
	// it at dispatch time; the builder treats it as an opaque token.
	DefaultPlaceholder = "{{user_input}}"

	thinkingPrimer = "<thinking>"
	jsonPrimer     = "{\n"
)

// BuilderConfig customizes a PayloadBuilder. Zero values fall back to the
// defaults built from the embedded rules.
type BuilderConfig struct {
	Placeholder string
	Reasoning   ReasoningDetector
	CodeHint    CodeHintDetector
}

// PayloadBuilder turns an analysis plus labeled examples into a few-shot
// conversation payload. It holds no mutable state and is safe for
// concurrent use.
type PayloadBuilder struct {
	placeholder string
	reasoning   ReasoningDetector
	codeHint    CodeHintDetector
}

func NewPayloadBuilder(cfg BuilderConfig) (*PayloadBuilder, error) {
	builder := &PayloadBuilder{
		placeholder: cfg.Placeholder,
		reasoning:   cfg.Reasoning,
		codeHint:    cfg.CodeHint,
	}
	if builder.placeholder == "" {
		builder.placeholder = DefaultPlaceholder
	}
	if builder.reasoning == nil {
		detector, err := DefaultReasoningDetector()
		if err != nil {
			return nil, fmt.Errorf("loading reasoning detector: %w", err)
		}
		builder.reasoning = detector
	}
	if builder.codeHint == nil {
		detector, err := DefaultCodeHintDetector()
		if err != nil {
			return nil, fmt.Errorf("loading code hint detector: %w", err)
		}
		builder.codeHint = detector
	}
	return builder, nil
}

// WithPlaceholder returns a builder that assembles payloads around the given
// marker but shares this builder's detectors. An empty marker keeps the
// current one.
func (b *PayloadBuilder) WithPlaceholder(placeholder string) *PayloadBuilder {
	if placeholder == "" || placeholder == b.placeholder {
		return b
	}
	clone := *b
	clone.placeholder = placeholder
	return &clone
}

// SystemMessage composes the single system message from the analysis fields.
// Examples belong to the history and the output notion only drives priming,
// so neither appears here.
func (b *PayloadBuilder) SystemMessage(analysis api.Analysis) (api.Message, error) {
	if err := ValidateAnalysis(analysis); err != nil {
		return api.Message{}, err
	}

	var sb strings.Builder
	sb.WriteString("## Task\n")
	sb.WriteString(strings.TrimSpace(analysis.Task))
	sb.WriteString("\n\n## Goal\n")
	sb.WriteString(strings.TrimSpace(analysis.Goal))
	if constraint := strings.TrimSpace(analysis.Constraint); constraint != "" {
		sb.WriteString("\n\n## Constraint\n")
		sb.WriteString(constraint)
	}
	if analysis.Output.Type == api.OutputTypeJson {
		sb.WriteString("\n\nAlways respond with a single valid JSON object.")
	}
	return api.Message{Role: api.RoleSystem, Content: sb.String()}, nil
}

// History expands labeled examples into alternating user/assistant turns,
// preserving both order and content verbatim. An empty dataset yields an
// empty history.
func (b *PayloadBuilder) History(items []api.TestDataItem) []api.Message {
	messages := make([]api.Message, 0, 2*len(items))
	for _, item := range items {
		messages = append(messages,
			api.Message{Role: api.RoleUser, Content: item.Input},
			api.Message{Role: api.RoleAssistant, Content: item.Output},
		)
	}
	return messages
}

// Primer evaluates the priming decision table. The rules are strictly
// ordered: a reasoning requirement in the goal wins over json priming, which
// wins over a code fence. At most one primer is ever produced.
func (b *PayloadBuilder) Primer(analysis api.Analysis) (api.Message, bool) {
	if b.reasoning(analysis.Goal) {
		return api.Message{Role: api.RoleAssistant, Content: thinkingPrimer, Prefix: true}, true
	}
	if analysis.Output.Type == api.OutputTypeJson {
		return api.Message{Role: api.RoleAssistant, Content: jsonPrimer, Prefix: true}, true
	}
	if analysis.Output.Type == api.OutputTypeText {
		if lang, ok := b.codeHint(analysis.Output.Notion, analysis.Goal); ok {
			content := "```" + strings.ToLower(lang) + "\n"
			return api.Message{Role: api.RoleAssistant, Content: content, Prefix: true}, true
		}
	}
	return api.Message{}, false
}

// Build assembles the full payload: system message, example history, the
// runtime input placeholder, and an optional trailing primer.
func (b *PayloadBuilder) Build(analysis api.Analysis, testData api.TestData) ([]api.Message, error) {
	system, err := b.SystemMessage(analysis)
	if err != nil {
		return nil, err
	}

	payload := make([]api.Message, 0, 2*len(testData.Dataset)+3)
	payload = append(payload, system)
	payload = append(payload, b.History(testData.Dataset)...)
	payload = append(payload, api.Message{Role: api.RoleUser, Content: b.placeholder})
	if primer, ok := b.Primer(analysis); ok {
		payload = append(payload, primer)
	}

	if err := checkPayload(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// checkPayload asserts the structural contract of a finished payload: one
// leading system message, strict user/assistant alternation after it, and at
// most one prefix message, which must be a trailing assistant message.
func checkPayload(payload []api.Message) error {
	if len(payload) == 0 || payload[0].Role != api.RoleSystem {
		return validationErrorf("payload must start with a system message")
	}
	expected := api.RoleUser
	for i, msg := range payload[1:] {
		if msg.Role == api.RoleSystem {
			return validationErrorf("payload contains more than one system message")
		}
		if msg.Role != expected {
			return validationErrorf("payload roles must alternate, got %q at position %d", msg.Role, i+1)
		}
		if expected == api.RoleUser {
			expected = api.RoleAssistant
		} else {
			expected = api.RoleUser
		}
	}
	for i, msg := range payload {
		if !msg.Prefix {
			continue
		}
		if i != len(payload)-1 {
			return validationErrorf("prefix message must be the last element")
		}
		if msg.Role != api.RoleAssistant {
			return validationErrorf("prefix message must have the assistant role")
		}
	}
	return nil
}
