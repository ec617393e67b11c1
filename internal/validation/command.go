package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// HookCommands lists the programs a watch hook may run.
var HookCommands = map[string]bool{
	"npm":  true,
	"npx":  true,
	"pnpm": true,
	"yarn": true,
	"node": true,
	"make": true,
	"git":  true,
	"echo": true,
}

// shellMeta are characters only a shell would interpret. Hooks are executed
// directly, so an argument carrying one is almost certainly a mistake.
const shellMeta = ";&|$`()<>\\\"'"

// ValidateArgument rejects shell metacharacters, parent directory references
// and absolute paths in a command argument.
func ValidateArgument(arg string) error {
	if i := strings.IndexAny(arg, shellMeta); i >= 0 {
		return fmt.Errorf("argument %q contains shell metacharacter %q", arg, arg[i])
	}
	if err := rejectControl(arg); err != nil {
		return err
	}
	if strings.Contains(arg, "..") {
		return fmt.Errorf("argument %q contains a path traversal", arg)
	}
	if filepath.IsAbs(arg) {
		return fmt.Errorf("argument %q is an absolute path", arg)
	}
	return nil
}

// ValidateCommand checks command against allowed.
func ValidateCommand(command string, allowed map[string]bool) error {
	if command == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if !allowed[command] {
		return fmt.Errorf("command %q is not allowed", command)
	}
	return ValidateArgument(command)
}

// ParseHookCommand splits a watch hook such as "npm run build:docs" into its
// program and arguments and validates both.
func ParseHookCommand(line string) (string, []string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty hook command")
	}
	if err := ValidateCommand(fields[0], HookCommands); err != nil {
		return "", nil, err
	}
	for _, arg := range fields[1:] {
		if err := ValidateArgument(arg); err != nil {
			return "", nil, err
		}
	}
	return fields[0], fields[1:], nil
}
