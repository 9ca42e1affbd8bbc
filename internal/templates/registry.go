package templates

import (
	_ "embed"
	"fmt"
	"promptx/pkg/api"
	"regexp"
	"sort"

	"gopkg.in/yaml.v2"
)

// MetaPrompt is a reusable message list with {{variable}} slots. The service
// renders these for external LLM collaborators; it never calls a model
// itself.
type MetaPrompt struct {
	Name        string
	Description string
	Messages    []api.Message
}

//go:embed meta_prompts.yaml
var metaPromptsYaml []byte

var varPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

type Registry struct {
	prompts map[string]MetaPrompt
	names   []string
}

func LoadRegistry() (*Registry, error) {
	var parsed struct {
		Templates []struct {
			Name        string        `yaml:"name"`
			Description string        `yaml:"description"`
			Messages    []api.Message `yaml:"messages"`
		} `yaml:"templates"`
	}
	if err := yaml.Unmarshal(metaPromptsYaml, &parsed); err != nil {
		return nil, fmt.Errorf("error parsing meta prompt templates: %w", err)
	}

	registry := &Registry{prompts: make(map[string]MetaPrompt, len(parsed.Templates))}
	for _, tpl := range parsed.Templates {
		if tpl.Name == "" || len(tpl.Messages) == 0 {
			return nil, fmt.Errorf("meta prompt template missing name or messages")
		}
		if _, ok := registry.prompts[tpl.Name]; ok {
			return nil, fmt.Errorf("duplicate meta prompt template %s", tpl.Name)
		}
		registry.prompts[tpl.Name] = MetaPrompt{
			Name:        tpl.Name,
			Description: tpl.Description,
			Messages:    tpl.Messages,
		}
		registry.names = append(registry.names, tpl.Name)
	}

	return registry, nil
}

// Names returns template names in file order.
func (r *Registry) Names() []string {
	return r.names
}

func (r *Registry) Get(name string) (MetaPrompt, bool) {
	prompt, ok := r.prompts[name]
	return prompt, ok
}

// Variables lists the distinct {{variable}} slots of a template in order of
// first appearance.
func (r *Registry) Variables(name string) ([]string, error) {
	prompt, ok := r.prompts[name]
	if !ok {
		return nil, fmt.Errorf("unknown meta prompt template %s", name)
	}

	seen := make(map[string]struct{})
	var variables []string
	for _, msg := range prompt.Messages {
		for _, match := range varPattern.FindAllStringSubmatch(msg.Content, -1) {
			if _, ok := seen[match[1]]; ok {
				continue
			}
			seen[match[1]] = struct{}{}
			variables = append(variables, match[1])
		}
	}
	return variables, nil
}

// Render substitutes vars into a template's messages. Slots with no value
// are left in place and reported in the second return value, sorted.
func (r *Registry) Render(name string, vars map[string]string) ([]api.Message, []string, error) {
	prompt, ok := r.prompts[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown meta prompt template %s", name)
	}

	unresolved := make(map[string]struct{})
	rendered := make([]api.Message, len(prompt.Messages))
	for i, msg := range prompt.Messages {
		content := varPattern.ReplaceAllStringFunc(msg.Content, func(match string) string {
			varName := varPattern.FindStringSubmatch(match)[1]
			if value, ok := vars[varName]; ok {
				return value
			}
			unresolved[varName] = struct{}{}
			return match
		})
		rendered[i] = api.Message{Role: msg.Role, Content: content}
	}

	missing := make([]string, 0, len(unresolved))
	for varName := range unresolved {
		missing = append(missing, varName)
	}
	sort.Strings(missing)

	return rendered, missing, nil
}
