package redirects

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"gopkg.in/yaml.v3"
)

// Format selects how a Table is serialized for the hosting platform.
type Format string

const (
	// FormatMap is {"<source>": {"destination": ..., "status": ...}}.
	FormatMap Format = "map"
	// FormatVercel is {"redirects": [{"source", "destination", "permanent"}]}.
	FormatVercel Format = "vercel"
	// FormatYAML is FormatMap rendered as YAML.
	FormatYAML Format = "yaml"
)

// Formats lists every supported output format.
var Formats = []Format{FormatMap, FormatVercel, FormatYAML}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown redirect format %q (map, vercel, yaml)", s)
}

// Encode writes t to w in format f. The vercel and yaml formats keep
// insertion order; the map format is a JSON object with sorted keys.
func (t *Table) Encode(w io.Writer, f Format) error {
	switch f {
	case FormatMap:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t.Map())
	case FormatVercel:
		type vercelRedirect struct {
			Source      string `json:"source"`
			Destination string `json:"destination"`
			Permanent   bool   `json:"permanent"`
		}
		doc := struct {
			Redirects []vercelRedirect `json:"redirects"`
		}{Redirects: make([]vercelRedirect, 0, t.Len())}
		for _, src := range t.order {
			r := t.rows[src]
			doc.Redirects = append(doc.Redirects, vercelRedirect{
				Source:      src,
				Destination: r.target.Destination,
				Permanent:   r.target.Status == http.StatusMovedPermanently,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		root := &yaml.Node{Kind: yaml.MappingNode}
		for _, src := range t.order {
			var value yaml.Node
			if err := value.Encode(t.rows[src].target); err != nil {
				return err
			}
			root.Content = append(root.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: src},
				&value)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(root); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown redirect format %q", f)
	}
}
