package render

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/loryanstrant/unifi-documenter/internal/model"
)

// JSON dumps the full snapshot as indented JSON. Map keys are sorted by the
// encoder.
type JSON struct{}

// Format implements Renderer.
func (JSON) Format() Format { return FormatJSON }

// Render implements Renderer.
func (JSON) Render(snap *model.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to encode json: %w", err)
	}
	return buf.Bytes(), nil
}

// YAML dumps the full snapshot as YAML.
type YAML struct{}

// Format implements Renderer.
func (YAML) Format() Format { return FormatYAML }

// Render implements Renderer.
func (YAML) Render(snap *model.Snapshot) ([]byte, error) {
	plain := plainSnapshot(snap)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&plain); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// plainSnapshot copies snap with json.Number values converted to Go numbers,
// which the YAML encoder would otherwise quote as strings.
func plainSnapshot(snap *model.Snapshot) model.Snapshot {
	out := model.Snapshot{
		Controller: snap.Controller,
		SystemInfo: plainRecord(snap.SystemInfo),
		Sites:      make([]model.SiteSnapshot, 0, len(snap.Sites)),
	}
	for _, site := range snap.Sites {
		var collections [model.NumResourceKinds][]model.Record
		for _, kind := range model.ResourceKinds() {
			src := site.Collection(kind)
			dst := make([]model.Record, len(src))
			for i, r := range src {
				dst[i] = plainRecord(r)
			}
			collections[kind] = dst
		}
		out.Sites = append(out.Sites, model.NewSiteSnapshot(plainRecord(site.Info), collections))
	}
	return out
}

func plainRecord(r model.Record) model.Record {
	if r == nil {
		return nil
	}
	out := make(model.Record, len(r))
	for k, v := range r {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return string(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = plainValue(item)
		}
		return out
	case model.Record:
		return plainRecord(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}
