// ABOUTME: Variable and VariableType definitions for prompt templates
// ABOUTME: Describes the typed metadata attached to each {{placeholder}}

package prompt

// VariableType is the declared kind of value a variable expects.
type VariableType string

const (
	TypeString  VariableType = "string"
	TypeNumber  VariableType = "number"
	TypeBoolean VariableType = "boolean"
	TypeArray   VariableType = "array"
	TypeDate    VariableType = "date"
	TypeEmail   VariableType = "email"
	TypeURL     VariableType = "url"
)

// ValidTypes lists every supported variable type.
var ValidTypes = []VariableType{
	TypeString,
	TypeNumber,
	TypeBoolean,
	TypeArray,
	TypeDate,
	TypeEmail,
	TypeURL,
}

// IsValid reports whether t is one of the supported variable types.
func (t VariableType) IsValid() bool {
	for _, v := range ValidTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Variable describes one placeholder of a template.
type Variable struct {
	Name         string       `json:"name" yaml:"name"`
	Description  string       `json:"description" yaml:"description,omitempty"`
	Type         VariableType `json:"type" yaml:"type"`
	DefaultValue *string      `json:"default_value,omitempty" yaml:"default,omitempty"`
	Required     bool         `json:"required" yaml:"required"`
}

// NewVariable returns the registry entry created for a freshly scanned name.
func NewVariable(name string) Variable {
	return Variable{
		Name:     name,
		Type:     TypeString,
		Required: true,
	}
}

// HasDefault reports whether the variable carries a default value.
func (v Variable) HasDefault() bool {
	return v.DefaultValue != nil
}

// StringPtr is a helper for building DefaultValue literals.
func StringPtr(s string) *string {
	return &s
}

// Names returns the variable names in registry order.
func Names(vars []Variable) []string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	return names
}

// Clone returns a deep copy of vars.
func Clone(vars []Variable) []Variable {
	if vars == nil {
		return nil
	}
	out := make([]Variable, len(vars))
	for i, v := range vars {
		out[i] = v
		if v.DefaultValue != nil {
			d := *v.DefaultValue
			out[i].DefaultValue = &d
		}
	}
	return out
}

// indexOf returns the position of name in vars, or -1.
func indexOf(vars []Variable, name string) int {
	for i, v := range vars {
		if v.Name == name {
			return i
		}
	}
	return -1
}
