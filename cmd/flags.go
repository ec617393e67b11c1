package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/nomicfoundation/sitedata/internal/redirects"
)

// enumValue is a string flag restricted to a fixed set of values.
type enumValue struct {
	value   *string
	allowed []string
}

var _ pflag.Value = (*enumValue)(nil)

func newEnumValue(p *string, value string, allowed ...string) *enumValue {
	*p = value
	return &enumValue{value: p, allowed: allowed}
}

func (e *enumValue) String() string { return *e.value }

func (e *enumValue) Set(s string) error {
	for _, a := range e.allowed {
		if s == a {
			*e.value = s
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(e.allowed, ", "))
}

func (e *enumValue) Type() string { return "string" }

// formatValue selects a redirect output format. Empty means the configured
// redirects.format.
type formatValue struct {
	format *redirects.Format
}

var _ pflag.Value = (*formatValue)(nil)

func (f *formatValue) String() string { return string(*f.format) }

func (f *formatValue) Set(s string) error {
	format, err := redirects.ParseFormat(s)
	if err != nil {
		return err
	}
	*f.format = format
	return nil
}

func (f *formatValue) Type() string { return "format" }

// addFormatFlag registers --format on fs.
func addFormatFlag(fs *pflag.FlagSet, p *redirects.Format) {
	formats := make([]string, len(redirects.Formats))
	for i, f := range redirects.Formats {
		formats[i] = string(f)
	}
	fs.Var(&formatValue{format: p}, "format",
		fmt.Sprintf("redirect output format (%s; default from redirects.format)", strings.Join(formats, ", ")))
}

// addOutputFlag registers --output/-o for text or json command output.
func addOutputFlag(fs *pflag.FlagSet, p *string) {
	fs.VarP(newEnumValue(p, "text", "text", "json"), "output", "o", "output format (text, json)")
}
