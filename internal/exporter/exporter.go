// Package exporter appends fused leads to newline-delimited JSON files,
// one file per city per UTC day. Files are append-only; nothing in the
// pipeline ever rewrites or truncates them.
package exporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/civicsignal/civicsignal/internal/models"
)

// Line is one exported record: the fused event and its lead.
type Line struct {
	Event *models.Event `json:"event"`
	Lead  *models.Lead  `json:"lead"`
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses every run of non-alphanumeric
// characters to a single dash, so city names become safe path segments.
func Slugify(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	slug := nonSlugChars.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// Writer appends export lines under a root directory.
type Writer struct {
	root string
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir}
}

// Path returns the target file for a city on a given day:
// {root}/{city-slug}/{YYYY-MM-DD}.ndjson. Cities that slugify to nothing
// land under "unknown".
func (w *Writer) Path(city string, day time.Time) string {
	slug := Slugify(city)
	if slug == "" {
		slug = "unknown"
	}
	return filepath.Join(w.root, slug, day.UTC().Format("2006-01-02")+".ndjson")
}

// Append writes line as one JSON line to the city/day partition, creating
// the directory as needed. It returns the file path the line landed in.
func (w *Writer) Append(city string, day time.Time, line Line) (string, error) {
	data, err := json.Marshal(line)
	if err != nil {
		return "", fmt.Errorf("failed to marshal export line: %w", err)
	}

	path := w.Path(city, day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open export file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return path, nil
}
