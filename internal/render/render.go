package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents an output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts json, yaml (or yml) and table, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "table", "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected json, yaml or table)", s)
	}
}

// FormatForPath guesses a document format from a file extension, falling
// back to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	format Format
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, format Format) *Renderer {
	return &Renderer{writer: writer, format: format}
}

// Render writes data as a JSON or YAML document. Table output has no generic
// form; callers render tables with RenderTable.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.RenderJSON(data)
	case FormatYAML:
		return r.RenderYAML(data)
	default:
		return fmt.Errorf("format %s cannot render documents", r.format)
	}
}

// RenderJSON renders data as indented JSON
func (r *Renderer) RenderJSON(data any) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// RenderYAML renders data as YAML
func (r *Renderer) RenderYAML(data any) error {
	encoder := yaml.NewEncoder(r.writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return err
	}
	return encoder.Close()
}

// RenderTable renders rows under headers with aligned columns.
func (r *Renderer) RenderTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var buf bytes.Buffer
	writeRow(&buf, headers, widths)
	separators := make([]string, len(widths))
	for i, w := range widths {
		separators[i] = strings.Repeat("-", w)
	}
	writeRow(&buf, separators, widths)
	for _, row := range rows {
		writeRow(&buf, row, widths)
	}

	_, err := r.writer.Write(buf.Bytes())
	return err
}

func writeRow(buf *bytes.Buffer, cells []string, widths []int) {
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		if i > 0 {
			buf.WriteString("  ")
		}
		if i == len(cells)-1 || i == len(widths)-1 {
			buf.WriteString(cell)
		} else {
			fmt.Fprintf(buf, "%-*s", widths[i], cell)
		}
	}
	buf.WriteByte('\n')
}

// WriteFile renders data to path in the given document format.
func WriteFile(path string, format Format, data any) error {
	var buf bytes.Buffer
	if err := NewRenderer(&buf, format).Render(data); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
