// Package export serializes monitor snapshots for download and file storage
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/riskpulse/riskpulse/internal/monitor"
	"gopkg.in/yaml.v3"
)

// Format is a snapshot encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml. An empty value means JSON.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", value)
	}
}

// FormatFromPath picks the format from a file extension, defaulting to JSON
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ContentType returns the HTTP media type for the format
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Extension returns the file extension for the format, without the dot
func (f Format) Extension() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// FileName returns the suggested download name for a snapshot
func FileName(snap monitor.Snapshot, f Format) string {
	return fmt.Sprintf("riskpulse-%s.%s", snap.ExportedAt.UTC().Format("20060102T150405Z"), f.Extension())
}

// Marshal encodes a snapshot
func Marshal(snap monitor.Snapshot, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode snapshot as json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("failed to encode snapshot as yaml: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
}

// Write encodes a snapshot to w
func Write(w io.Writer, snap monitor.Snapshot, f Format) error {
	data, err := Marshal(snap, f)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Read decodes a snapshot written by Write
func Read(r io.Reader, f Format) (monitor.Snapshot, error) {
	var snap monitor.Snapshot

	data, err := io.ReadAll(r)
	if err != nil {
		return snap, fmt.Errorf("failed to read snapshot: %w", err)
	}

	switch f {
	case FormatJSON:
		err = json.Unmarshal(data, &snap)
	case FormatYAML:
		err = yaml.Unmarshal(data, &snap)
	default:
		return snap, fmt.Errorf("unsupported export format %q", f)
	}
	if err != nil {
		return snap, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// LoadFile reads a snapshot file, choosing the format from its extension
func LoadFile(path string) (monitor.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return monitor.Snapshot{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, FormatFromPath(path))
}

// SaveFile writes a snapshot atomically: it encodes to a temp file in the
// target directory and renames it into place.
func SaveFile(path string, snap monitor.Snapshot) error {
	data, err := Marshal(snap, FormatFromPath(path))
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".riskpulse-export-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move export into %s: %w", path, err)
	}
	return nil
}

// SaveAsync runs SaveFile on its own goroutine. The channel receives exactly
// one result and is then closed.
func SaveAsync(path string, snap monitor.Snapshot) <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(result)
		result <- SaveFile(path, snap)
	}()
	return result
}
