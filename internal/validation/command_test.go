package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateArgument(t *testing.T) {
	tests := []struct {
		name      string
		arg       string
		expectErr bool
	}{
		{name: "script name", arg: "build:docs", expectErr: false},
		{name: "flag", arg: "--silent", expectErr: false},
		{name: "relative path", arg: "scripts/sync.js", expectErr: false},
		{name: "semicolon", arg: "a;rm", expectErr: true},
		{name: "pipe", arg: "a|b", expectErr: true},
		{name: "command substitution", arg: "$(id)", expectErr: true},
		{name: "backtick", arg: "`id`", expectErr: true},
		{name: "quote", arg: "'x'", expectErr: true},
		{name: "traversal", arg: "../secrets", expectErr: true},
		{name: "absolute", arg: "/etc/passwd", expectErr: true},
		{name: "newline", arg: "a\nb", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArgument(tt.arg)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCommand(t *testing.T) {
	allowed := map[string]bool{"npm": true, "npm;id": true}

	assert.NoError(t, ValidateCommand("npm", allowed))
	assert.ErrorContains(t, ValidateCommand("", allowed), "empty")
	assert.ErrorContains(t, ValidateCommand("curl", allowed), "not allowed")
	// allowlisted entries are still checked as arguments
	assert.ErrorContains(t, ValidateCommand("npm;id", allowed), "metacharacter")
}

func TestParseHookCommand(t *testing.T) {
	name, args, err := ParseHookCommand("  npm run   build:docs ")
	require.NoError(t, err)
	assert.Equal(t, "npm", name)
	assert.Equal(t, []string{"run", "build:docs"}, args)

	_, _, err = ParseHookCommand("")
	assert.ErrorContains(t, err, "empty hook command")

	_, _, err = ParseHookCommand("sh -c true")
	assert.ErrorContains(t, err, `"sh" is not allowed`)

	_, _, err = ParseHookCommand("npm run build;curl")
	assert.Error(t, err)
}
