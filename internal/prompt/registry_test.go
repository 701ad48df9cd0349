// ABOUTME: Tests for explicit registry edits
// ABOUTME: Add, remove and rename, including placeholder rewrites

package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameVariable(t *testing.T) {
	vars := []Variable{{Name: "a", Type: TypeNumber}, {Name: "b"}}

	out, err := RenameVariable(vars, "a", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, Names(out))
	assert.Equal(t, TypeNumber, out[0].Type)
	assert.Equal(t, "a", vars[0].Name, "input must not be mutated")
}

func TestRenameVariable_Collision(t *testing.T) {
	vars := []Variable{{Name: "a"}, {Name: "b"}}
	_, err := RenameVariable(vars, "a", "b")
	assert.ErrorIs(t, err, ErrDuplicateVariable)
}

func TestRenameVariable_NotFound(t *testing.T) {
	_, err := RenameVariable([]Variable{{Name: "a"}}, "zzz", "b")
	assert.ErrorIs(t, err, ErrVariableNotFound)
}

func TestRenameVariable_InvalidName(t *testing.T) {
	vars := []Variable{{Name: "a"}}
	for _, name := range []string{"", "  ", "x}", "{x", " padded "} {
		_, err := RenameVariable(vars, "a", name)
		assert.ErrorIs(t, err, ErrInvalidVariableName, "name %q", name)
	}
}

func TestRenameVariable_SameName(t *testing.T) {
	vars := []Variable{{Name: "a"}}
	out, err := RenameVariable(vars, "a", "a")
	require.NoError(t, err)
	assert.Equal(t, vars, out)
}

func TestAddVariable(t *testing.T) {
	out, err := AddVariable(nil, Variable{Name: "city"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, TypeString, out[0].Type)

	_, err = AddVariable(out, Variable{Name: "city"})
	assert.ErrorIs(t, err, ErrDuplicateVariable)
}

func TestRemoveVariable(t *testing.T) {
	vars := []Variable{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	out, err := RemoveVariable(vars, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, Names(out))

	_, err = RemoveVariable(vars, "nope")
	assert.ErrorIs(t, err, ErrVariableNotFound)
}

func TestUpdateVariable(t *testing.T) {
	vars := []Variable{{Name: "a"}, {Name: "b"}}

	out, err := UpdateVariable(vars, "a", Variable{Name: "a", Type: TypeURL, Description: "site"})
	require.NoError(t, err)
	assert.Equal(t, TypeURL, out[0].Type)
	assert.Equal(t, "site", out[0].Description)

	_, err = UpdateVariable(vars, "a", Variable{Name: "b"})
	assert.ErrorIs(t, err, ErrDuplicateVariable)
}

func TestRenamePlaceholders(t *testing.T) {
	content := "Hi {{name}}, {{ name }} and {{other}} {{name"
	got := RenamePlaceholders(content, "name", "first_name")
	assert.Equal(t, "Hi {{first_name}}, {{first_name}} and {{other}} {{name", got)
}
