// ABOUTME: Registry and value validation for prompt variables
// ABOUTME: Checks unique names, known types, and per-type value formats

package prompt

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ValidationError ties a validation failure to a variable.
type ValidationError struct {
	Variable string `json:"variable"`
	Message  string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Variable, e.Message)
}

// ValidateVariables checks registry integrity: empty or duplicate names,
// unknown types and defaults that fail their own type. It does not apply the
// ValidateName grammar, since Reconcile registers whatever Scan yields and
// names like "{a" are legitimate there.
func ValidateVariables(vars []Variable) []ValidationError {
	errs := []ValidationError{}
	seen := make(map[string]struct{}, len(vars))

	for _, v := range vars {
		if strings.TrimSpace(v.Name) == "" {
			errs = append(errs, ValidationError{Variable: v.Name, Message: "name is empty"})
			continue
		}
		if _, dup := seen[v.Name]; dup {
			errs = append(errs, ValidationError{Variable: v.Name, Message: "duplicate variable name"})
			continue
		}
		seen[v.Name] = struct{}{}

		if !v.Type.IsValid() {
			errs = append(errs, ValidationError{Variable: v.Name, Message: fmt.Sprintf("unknown type %q", v.Type)})
			continue
		}
		if v.DefaultValue != nil && *v.DefaultValue != "" {
			if msg := checkValue(v.Type, *v.DefaultValue); msg != "" {
				errs = append(errs, ValidationError{Variable: v.Name, Message: "default " + msg})
			}
		}
	}
	return errs
}

// ValidateValues checks each non-empty value against its variable's type.
// Values for unregistered names are ignored.
func ValidateValues(vars []Variable, values map[string]string) []ValidationError {
	errs := []ValidationError{}
	for _, v := range vars {
		val, ok := values[v.Name]
		if !ok || val == "" {
			continue
		}
		if msg := checkValue(v.Type, val); msg != "" {
			errs = append(errs, ValidationError{Variable: v.Name, Message: msg})
		}
	}
	return errs
}

// dateLayouts are the accepted formats for date variables.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// checkValue returns an empty string when val is acceptable for t.
func checkValue(t VariableType, val string) string {
	val = strings.TrimSpace(val)
	switch t {
	case TypeNumber:
		if _, err := strconv.ParseFloat(val, 64); err != nil {
			return "must be a number"
		}
	case TypeBoolean:
		if _, err := strconv.ParseBool(val); err != nil {
			return "must be true or false"
		}
	case TypeDate:
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, val); err == nil {
				return ""
			}
		}
		return "must be a date (YYYY-MM-DD or RFC 3339)"
	case TypeEmail:
		addr, err := mail.ParseAddress(val)
		if err != nil || addr.Address != val {
			return "must be an email address"
		}
	case TypeURL:
		u, err := url.Parse(val)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "must be an absolute URL"
		}
	case TypeArray:
		if strings.HasPrefix(val, "[") {
			var items []any
			if err := json.Unmarshal([]byte(val), &items); err != nil {
				return "must be a JSON array or comma-separated list"
			}
		}
	}
	return ""
}
