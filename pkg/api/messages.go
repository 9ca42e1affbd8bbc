package api

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation payload. Prefix marks a trailing
// assistant message whose content is a forced prefix of the model's response
// rather than a complete turn; it is only ever set on the last message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Prefix  bool   `json:"prefix,omitempty"`
}
