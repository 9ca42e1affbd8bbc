package core

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v2"
)

// ReasoningDetector reports whether a goal asks the model to reason step by
// step before producing its answer.
type ReasoningDetector func(goal string) bool

// CodeHintDetector inspects the output notion and, as a fallback, the goal
// for mentions of a programming language. The returned tag is the markdown
// fence tag to prime with. A hit with an empty tag means the output is code
// but no specific language could be named.
type CodeHintDetector func(notion, goal string) (string, bool)

// CodeLanguage maps keyword aliases onto a markdown fence tag.
type CodeLanguage struct {
	Tag     string   `yaml:"tag"`
	Matches []string `yaml:"matches"`
}

//go:embed rules.yaml
var rulesYaml []byte

type detectionRules struct {
	ReasoningSignals []string       `yaml:"reasoning_signals"`
	CodeLanguages    []CodeLanguage `yaml:"code_languages"`
	CodeSignals      []string       `yaml:"code_signals"`
}

func loadRules() (detectionRules, error) {
	var parsed detectionRules
	if err := yaml.Unmarshal(rulesYaml, &parsed); err != nil {
		return detectionRules{}, fmt.Errorf("error parsing detection rules: %w", err)
	}
	return parsed, nil
}

// NewReasoningDetector matches any of the given signal phrases as a
// case-insensitive substring of the goal.
func NewReasoningDetector(signals []string) ReasoningDetector {
	return func(goal string) bool {
		lowered := strings.ToLower(goal)
		for _, signal := range signals {
			if strings.Contains(lowered, signal) {
				return true
			}
		}
		return false
	}
}

// NewCodeHintDetector scans the notion and then the goal for language
// aliases, in the order the languages are listed. If no language matches, a
// generic code signal still reports a hit with an empty tag.
func NewCodeHintDetector(languages []CodeLanguage, signals []string) CodeHintDetector {
	return func(notion, goal string) (string, bool) {
		for _, text := range []string{notion, goal} {
			lowered := strings.ToLower(text)
			for _, lang := range languages {
				for _, alias := range lang.Matches {
					if matchesKeyword(lowered, alias) {
						return lang.Tag, true
					}
				}
			}
		}
		for _, text := range []string{notion, goal} {
			lowered := strings.ToLower(text)
			for _, signal := range signals {
				if matchesKeyword(lowered, signal) {
					return "", true
				}
			}
		}
		return "", false
	}
}

// DefaultReasoningDetector builds a detector from the embedded rules.
func DefaultReasoningDetector() (ReasoningDetector, error) {
	rules, err := loadRules()
	if err != nil {
		return nil, err
	}
	return NewReasoningDetector(rules.ReasoningSignals), nil
}

// DefaultCodeHintDetector builds a detector from the embedded rules.
func DefaultCodeHintDetector() (CodeHintDetector, error) {
	rules, err := loadRules()
	if err != nil {
		return nil, err
	}
	return NewCodeHintDetector(rules.CodeLanguages, rules.CodeSignals), nil
}

// matchesKeyword requires ASCII keywords to appear as standalone tokens so
// that short aliases like "js" or "ts" do not fire inside longer words.
// Keywords with non-ASCII runes match as plain substrings since scripts like
// CJK have no word boundaries to check.
func matchesKeyword(text, keyword string) bool {
	if !isASCII(keyword) {
		return strings.Contains(text, keyword)
	}
	for start := 0; ; {
		idx := strings.Index(text[start:], keyword)
		if idx < 0 {
			return false
		}
		idx += start
		if standaloneAt(text, idx, idx+len(keyword)) {
			return true
		}
		start = idx + 1
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// '+' and '#' count as word runes so that "c" does not match inside "c++"
// or "c#".
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#'
}

func standaloneAt(text string, start, end int) bool {
	if start > 0 {
		if prev, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(prev) {
			return false
		}
	}
	if end < len(text) {
		if next, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(next) {
			return false
		}
	}
	return true
}
