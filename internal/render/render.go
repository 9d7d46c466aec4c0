// Package render turns a controller Snapshot into document bytes.
package render

import (
	"fmt"
	"strings"

	"github.com/loryanstrant/unifi-documenter/internal/model"
)

// Format is an output format name.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// ParseFormat validates a configured format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMarkdown, FormatJSON, FormatYAML:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatYAML:
		return "yaml"
	default:
		return string(f)
	}
}

// Renderer produces the bytes of one artifact.
type Renderer interface {
	Render(snap *model.Snapshot) ([]byte, error)
	Format() Format
}

// New returns the renderer for f.
func New(f Format) (Renderer, error) {
	switch f {
	case FormatMarkdown:
		return Markdown{}, nil
	case FormatJSON:
		return JSON{}, nil
	case FormatYAML:
		return YAML{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", f)
	}
}
