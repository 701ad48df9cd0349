// ABOUTME: Template renderer substituting values into {{placeholders}}
// ABOUTME: Single pass over the source text; inserted values are never rescanned

package prompt

import "strings"

// MissingMarker returns the text shown for a variable with no value and no
// default.
func MissingMarker(name string) string {
	return "[" + name + "]"
}

// Render substitutes each registered variable's placeholders in content.
//
// The value used is values[name] when present and non-empty, otherwise the
// variable's default, otherwise MissingMarker(name). Placeholders that name
// no registered variable are left as they are. Substitution walks the
// original text once, so a value that itself looks like a placeholder is
// emitted literally.
func Render(content string, vars []Variable, values map[string]string) string {
	if len(vars) == 0 {
		return content
	}

	resolved := make(map[string]string, len(vars))
	for _, v := range vars {
		resolved[v.Name] = resolveValue(v, values)
	}

	var b strings.Builder
	b.Grow(len(content))

	pos := 0
	for {
		p, ok := nextPlaceholder(content, pos)
		if !ok {
			break
		}
		b.WriteString(content[pos:p.start])
		if val, known := resolved[p.name]; known {
			b.WriteString(val)
		} else {
			b.WriteString(content[p.start:p.end])
		}
		pos = p.end
	}
	b.WriteString(content[pos:])
	return b.String()
}

func resolveValue(v Variable, values map[string]string) string {
	if val, ok := values[v.Name]; ok && val != "" {
		return val
	}
	if v.DefaultValue != nil {
		return *v.DefaultValue
	}
	return MissingMarker(v.Name)
}

// RenderReport describes what a strict render found wrong with its inputs.
type RenderReport struct {
	// Missing lists required variables that had neither a value nor a default.
	Missing []string `json:"missing"`
	// Errors lists values that do not match their variable's type.
	Errors []ValidationError `json:"errors"`
}

// OK reports whether the render had no missing values and no type errors.
func (r RenderReport) OK() bool {
	return len(r.Missing) == 0 && len(r.Errors) == 0
}

// RenderStrict renders like Render and additionally reports required
// variables without a value and values that fail type validation. Only
// variables referenced by content are checked.
func RenderStrict(content string, vars []Variable, values map[string]string) (string, RenderReport) {
	report := RenderReport{
		Missing: MissingRequired(content, vars, values),
		Errors:  ValidateValues(vars, values),
	}
	return Render(content, vars, values), report
}

// MissingRequired returns the required variables referenced in content that
// have no usable value and no default, in registry order.
func MissingRequired(content string, vars []Variable, values map[string]string) []string {
	present := make(map[string]struct{})
	for _, name := range Scan(content) {
		present[name] = struct{}{}
	}

	missing := []string{}
	for _, v := range vars {
		if _, ok := present[v.Name]; !ok || !v.Required {
			continue
		}
		if val, ok := values[v.Name]; ok && val != "" {
			continue
		}
		if v.DefaultValue != nil {
			continue
		}
		missing = append(missing, v.Name)
	}
	return missing
}
