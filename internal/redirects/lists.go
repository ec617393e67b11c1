package redirects

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yml
var builtinFS embed.FS

// Names of the built-in categories, in increasing precedence.
const (
	ListNextToStarlight = "next-to-starlight"
	ListErrorCodes      = "error-codes"
	ListShortlinks      = "shortlinks"
	ListInAppShortlinks = "in-app-shortlinks"
	ListMovedPages      = "moved-pages"
)

// listFile is the on-disk shape of a redirect list. Entries are either a
// [source, destination] pair or a mapping with an optional permanent flag.
type listFile struct {
	Name      string      `yaml:"name"`
	Permanent bool        `yaml:"permanent"`
	Redirects []fileEntry `yaml:"redirects"`
}

type fileEntry struct {
	Source      string
	Destination string
	Permanent   *bool
}

func (e *fileEntry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var pair []string
		if err := node.Decode(&pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("line %d: redirect pair must have exactly 2 elements, got %d", node.Line, len(pair))
		}
		e.Source, e.Destination = pair[0], pair[1]
		return nil
	case yaml.MappingNode:
		var m struct {
			Source      string `yaml:"source"`
			Destination string `yaml:"destination"`
			Permanent   *bool  `yaml:"permanent"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		e.Source, e.Destination, e.Permanent = m.Source, m.Destination, m.Permanent
		return nil
	default:
		return fmt.Errorf("line %d: redirect must be a [source, destination] pair or a mapping", node.Line)
	}
}

// Parse decodes a YAML redirect list. fallbackName is used when the document
// does not name itself.
func Parse(r io.Reader, fallbackName string) (List, error) {
	var f listFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return List{}, fmt.Errorf("parsing redirect list %s: %w", fallbackName, err)
	}

	name := f.Name
	if name == "" {
		name = fallbackName
	}

	l := List{Name: name, Entries: make([]Entry, 0, len(f.Redirects))}
	for _, fe := range f.Redirects {
		permanent := f.Permanent
		if fe.Permanent != nil {
			permanent = *fe.Permanent
		}
		l.Entries = append(l.Entries, Entry{
			Source:      fe.Source,
			Destination: fe.Destination,
			Permanent:   permanent,
		})
	}

	if err := Validate(l); err != nil {
		return List{}, err
	}
	return l, nil
}

// LoadFile reads and validates a YAML redirect list from disk.
func LoadFile(path string) (List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return List{}, fmt.Errorf("reading redirect list: %w", err)
	}
	return Parse(bytes.NewReader(data), path)
}

// Builtin returns one of the embedded redirect lists by name.
func Builtin(name string) (List, error) {
	data, err := builtinFS.ReadFile("data/" + name + ".yml")
	if err != nil {
		return List{}, fmt.Errorf("unknown built-in redirect list %q", name)
	}
	return Parse(bytes.NewReader(data), name)
}

// Assemble returns the site's redirect lists in precedence order: the
// built-in categories with errorCodes in its slot, followed by extra.
func Assemble(errorCodes List, extra ...List) ([]List, error) {
	if errorCodes.Name == "" {
		errorCodes.Name = ListErrorCodes
	}

	lists := make([]List, 0, 5+len(extra))
	for _, name := range []string{ListNextToStarlight, ListErrorCodes, ListShortlinks, ListInAppShortlinks, ListMovedPages} {
		if name == ListErrorCodes {
			lists = append(lists, errorCodes)
			continue
		}
		l, err := Builtin(name)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}

	return append(lists, extra...), nil
}
