package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ogulcanaydogan/finprep/internal/pipeline"
)

func WriteJSON(path string, r pipeline.Report) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func ReadJSON(path string) (pipeline.Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Report{}, fmt.Errorf("read run report: %w", err)
	}
	var r pipeline.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return pipeline.Report{}, fmt.Errorf("parse run report %s: %w", path, err)
	}
	return r, nil
}

// Write picks Markdown for .md paths and JSON otherwise.
func Write(path string, r pipeline.Report) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return WriteMarkdown(path, r)
	default:
		return WriteJSON(path, r)
	}
}
