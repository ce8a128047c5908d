package templates

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the YAML header of a template file.
// Unknown fields cause parse errors.
type Frontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Dialects    []string `yaml:"dialects"`
	Params      []Param  `yaml:"params"`
	Tags        []string `yaml:"tags"`
}

// Param documents one named placeholder.
type Param struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ParamType values accepted in frontmatter.
const (
	TypeString    = "string"
	TypeTimestamp = "timestamp"
	TypeDate      = "date"
	TypeInt       = "int"
	TypeNumber    = "number"
	TypeDecimal   = "decimal"
	TypeBool      = "bool"
	TypeAny       = "any"
)

var validParamTypes = map[string]bool{
	TypeString:    true,
	TypeTimestamp: true,
	TypeDate:      true,
	TypeInt:       true,
	TypeNumber:    true,
	TypeDecimal:   true,
	TypeBool:      true,
	TypeAny:       true,
}

// frontmatterPattern matches a leading /*--- ... ---*/ block.
var frontmatterPattern = regexp.MustCompile(`(?s)^\s*/\*---\s*\n(.*?)\s*---\*/`)

// splitFrontmatter separates the YAML header from the statement body.
// Content without a header is returned unchanged with a nil header.
func splitFrontmatter(content string) (*Frontmatter, string, error) {
	matches := frontmatterPattern.FindStringSubmatch(content)
	if len(matches) < 2 {
		return nil, strings.TrimSpace(content), nil
	}

	body := strings.TrimSpace(content[len(matches[0]):])
	fm, err := parseFrontmatter(matches[1])
	if err != nil {
		return nil, "", err
	}
	return fm, body, nil
}

var knownFields = map[string]bool{
	"name":        true,
	"description": true,
	"dialects":    true,
	"params":      true,
	"tags":        true,
}

func parseFrontmatter(content string) (*Frontmatter, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return nil, &FrontmatterError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	for field := range raw {
		if !knownFields[field] {
			return nil, &UnknownFieldError{Field: field}
		}
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(content), &fm); err != nil {
		return nil, &FrontmatterError{Message: fmt.Sprintf("failed to parse frontmatter: %v", err)}
	}

	seen := make(map[string]bool, len(fm.Params))
	for i, p := range fm.Params {
		if p.Name == "" {
			return nil, &FrontmatterError{Message: fmt.Sprintf("params[%d] has no name", i)}
		}
		if seen[p.Name] {
			return nil, &FrontmatterError{Message: fmt.Sprintf("param %q documented twice", p.Name)}
		}
		seen[p.Name] = true
		if p.Type == "" {
			fm.Params[i].Type = TypeAny
		} else if !validParamTypes[p.Type] {
			return nil, &FrontmatterError{Message: fmt.Sprintf("param %q has invalid type %q", p.Name, p.Type)}
		}
	}
	for i, d := range fm.Dialects {
		fm.Dialects[i] = strings.ToLower(strings.TrimSpace(d))
	}
	return &fm, nil
}

// FrontmatterError is a malformed template header.
type FrontmatterError struct {
	File    string
	Message string
}

func (e *FrontmatterError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// UnknownFieldError reports an unrecognised frontmatter key.
type UnknownFieldError struct {
	File  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	msg := fmt.Sprintf("unknown field %q in frontmatter", e.Field)
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, msg)
	}
	return msg
}
