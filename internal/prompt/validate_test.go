// ABOUTME: Tests for registry and value validation
// ABOUTME: Covers integrity checks and per-type value formats

package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateVariables(t *testing.T) {
	vars := []Variable{
		{Name: "ok", Type: TypeString},
		{Name: "ok", Type: TypeString},
		{Name: "  ", Type: TypeString},
		{Name: "weird", Type: "color"},
		{Name: "n", Type: TypeNumber, DefaultValue: StringPtr("abc")},
	}

	errs := ValidateVariables(vars)
	require.Len(t, errs, 4)
	assert.Equal(t, "ok", errs[0].Variable)
	assert.Equal(t, "  ", errs[1].Variable)
	assert.Equal(t, "weird", errs[2].Variable)
	assert.Equal(t, "n", errs[3].Variable)
}

func TestValidateVariables_AcceptsScannedNames(t *testing.T) {
	content := "JSON example: {{{a}} and {{x {{y}}"
	vars := Reconcile(content, nil)
	require.Equal(t, []string{"{a", "x {{y"}, Names(vars))
	assert.Empty(t, ValidateVariables(vars))

	// explicit edits still refuse them
	_, err := AddVariable(nil, Variable{Name: "{a"})
	assert.ErrorIs(t, err, ErrInvalidVariableName)
}

func TestValidateValues(t *testing.T) {
	vars := []Variable{
		{Name: "n", Type: TypeNumber},
		{Name: "b", Type: TypeBoolean},
		{Name: "d", Type: TypeDate},
		{Name: "e", Type: TypeEmail},
		{Name: "u", Type: TypeURL},
		{Name: "a", Type: TypeArray},
		{Name: "s", Type: TypeString},
	}

	good := map[string]string{
		"n": "3.14",
		"b": "true",
		"d": "2024-05-01",
		"e": "ann@example.com",
		"u": "https://example.com/x",
		"a": `["x","y"]`,
		"s": "anything",
	}
	assert.Empty(t, ValidateValues(vars, good))

	bad := map[string]string{
		"n": "pi",
		"b": "maybe",
		"d": "01/05/2024",
		"e": "not-an-email",
		"u": "/relative",
		"a": "[unterminated",
	}
	errs := ValidateValues(vars, bad)
	assert.Len(t, errs, 6)
}

func TestValidateValues_SkipsEmpty(t *testing.T) {
	vars := []Variable{{Name: "n", Type: TypeNumber}}
	assert.Empty(t, ValidateValues(vars, map[string]string{"n": ""}))
}

func TestVariableType_IsValid(t *testing.T) {
	assert.True(t, TypeEmail.IsValid())
	assert.False(t, VariableType("blob").IsValid())
}
