// ABOUTME: Explicit registry edits: add, remove, rename and update variables
// ABOUTME: Enforces unique names within a single template's registry

package prompt

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateVariable is returned when a name is already used by another variable.
	ErrDuplicateVariable = errors.New("variable name already in use")

	// ErrVariableNotFound is returned when the named variable is not registered.
	ErrVariableNotFound = errors.New("variable not found")

	// ErrInvalidVariableName is returned for names the placeholder syntax cannot express.
	ErrInvalidVariableName = errors.New("invalid variable name")
)

// ValidateName checks that name can appear inside a placeholder: non-empty
// after trimming, no braces, no leading or trailing whitespace.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidVariableName)
	}
	if name != strings.TrimSpace(name) {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidVariableName, name)
	}
	if strings.ContainsAny(name, "{}") {
		return fmt.Errorf("%w: %q contains a brace", ErrInvalidVariableName, name)
	}
	return nil
}

// AddVariable appends v to vars. The name must be valid and unused.
func AddVariable(vars []Variable, v Variable) ([]Variable, error) {
	if err := ValidateName(v.Name); err != nil {
		return nil, err
	}
	if indexOf(vars, v.Name) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateVariable, v.Name)
	}
	if v.Type == "" {
		v.Type = TypeString
	}
	out := Clone(vars)
	return append(out, v), nil
}

// RemoveVariable deletes the named variable. This is the only operation in
// the pipeline that drops registry entries.
func RemoveVariable(vars []Variable, name string) ([]Variable, error) {
	idx := indexOf(vars, name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrVariableNotFound, name)
	}
	out := make([]Variable, 0, len(vars)-1)
	out = append(out, Clone(vars[:idx])...)
	out = append(out, Clone(vars[idx+1:])...)
	return out, nil
}

// RenameVariable renames oldName to newName, keeping its position and
// metadata. Renaming to a name held by any other variable is rejected.
func RenameVariable(vars []Variable, oldName, newName string) ([]Variable, error) {
	idx := indexOf(vars, oldName)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrVariableNotFound, oldName)
	}
	if err := ValidateName(newName); err != nil {
		return nil, err
	}
	if oldName == newName {
		return Clone(vars), nil
	}
	if indexOf(vars, newName) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateVariable, newName)
	}

	out := Clone(vars)
	out[idx].Name = newName
	return out, nil
}

// UpdateVariable replaces the metadata of the named variable with v.
// If v.Name differs from name the rename rules apply.
func UpdateVariable(vars []Variable, name string, v Variable) ([]Variable, error) {
	out, err := RenameVariable(vars, name, v.Name)
	if err != nil {
		return nil, err
	}
	if v.Type == "" {
		v.Type = TypeString
	}
	idx := indexOf(out, v.Name)
	out[idx] = Clone([]Variable{v})[0]
	return out, nil
}

// RenamePlaceholders rewrites every placeholder naming oldName in content to
// {{newName}}. Other text, including unrelated placeholders, is untouched.
func RenamePlaceholders(content, oldName, newName string) string {
	var b strings.Builder
	b.Grow(len(content))

	pos := 0
	for {
		p, ok := nextPlaceholder(content, pos)
		if !ok {
			break
		}
		b.WriteString(content[pos:p.start])
		if p.name == oldName {
			b.WriteString(openDelim + newName + closeDelim)
		} else {
			b.WriteString(content[p.start:p.end])
		}
		pos = p.end
	}
	b.WriteString(content[pos:])
	return b.String()
}
