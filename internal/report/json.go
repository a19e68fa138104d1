// Package report renders run results as the JSON results artifact, a Markdown
// summary and the console summary.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/segmentio/encoding/json"

	"github.com/sqleval/sqleval/pkg/types"
)

// MarshalJSON encodes the report as indented JSON.
func MarshalJSON(r *types.Report) ([]byte, error) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(out, '\n'), nil
}

// WriteJSON writes the report to path, replacing any previous file
// atomically.
func WriteJSON(path string, r *types.Report) error {
	data, err := MarshalJSON(r)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sqleval-report-*.json")
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// DecodeJSON reads a report previously produced by MarshalJSON.
func DecodeJSON(r io.Reader) (*types.Report, error) {
	var rep types.Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

// LoadJSON reads the report stored at path.
func LoadJSON(path string) (*types.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	defer f.Close()
	return DecodeJSON(f)
}
