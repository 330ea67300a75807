// Package compact reduces corpus documents to their markdown table content.
package compact

import (
	"context"
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/finprep/pkg/types"
)

const (
	rowPrefix    = "| "
	lineSep      = "\n"
	paragraphSep = "\n\n"
)

// ErrUnsupportedSubset is returned when a document has no table and its
// subset has no fallback policy.
var ErrUnsupportedSubset = fmt.Errorf("%w: subset does not exist", types.ErrInvalid)

// Table is one contiguous run of table rows. Before and After hold the lines
// adjacent to the run; they are informational and never part of the output.
type Table struct {
	Content string
	Before  string
	After   string
}

// ExtractTables returns every table block of text in document order.
func ExtractTables(text string) []Table {
	lines := strings.Split(text, lineSep)
	var tables []Table
	start := -1
	for i, line := range lines {
		if !strings.HasPrefix(line, rowPrefix) {
			continue
		}
		if start < 0 {
			start = i
		}
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], rowPrefix) {
			continue
		}
		t := Table{Content: strings.TrimSpace(strings.Join(lines[start:i+1], lineSep))}
		if start > 0 {
			t.Before = lines[start-1]
		}
		if i+1 < len(lines) {
			t.After = lines[i+1]
		}
		tables = append(tables, t)
		start = -1
	}
	return tables
}

// Compact keeps only the tables of text. A document without tables is reduced
// by the subset's fallback policy.
func Compact(text string, policy types.Policy) (string, error) {
	if tables := ExtractTables(text); len(tables) > 0 {
		parts := make([]string, len(tables))
		for i, t := range tables {
			parts[i] = t.Content
		}
		return strings.Join(parts, paragraphSep), nil
	}
	return fallback(text, policy)
}

func fallback(text string, policy types.Policy) (string, error) {
	parts := strings.Split(text, paragraphSep)
	switch policy {
	case types.PolicyLastParagraph:
		return parts[len(parts)-1], nil
	case types.PolicySecondParagraph:
		if len(parts) > 1 {
			return parts[1], nil
		}
		return parts[0], nil
	case types.PolicyIdentity:
		return text, nil
	default:
		return "", ErrUnsupportedSubset
	}
}

// Store is the record I/O CompactCorpus needs.
type Store interface {
	Load(ctx context.Context, location string) ([]types.Record, error)
	Save(ctx context.Context, location string, records []types.Record, ensureASCII bool) error
}

// Records compacts the text field of each record and leaves every other field
// as it was.
func Records(records []types.Record, policy types.Policy) ([]types.Record, error) {
	out := make([]types.Record, len(records))
	for i, rec := range records {
		text, err := rec.String(types.FieldText)
		if err != nil {
			return nil, fmt.Errorf("corpus record %d: %w", i, err)
		}
		compacted, err := Compact(text, policy)
		if err != nil {
			return nil, fmt.Errorf("corpus record %d: %w", i, err)
		}
		next, err := rec.With(types.FieldText, compacted)
		if err != nil {
			return nil, fmt.Errorf("corpus record %d: %w", i, err)
		}
		out[i] = next
	}
	return out, nil
}

// CompactCorpus loads in, compacts every record and writes the result to out.
// It returns the number of records written.
func CompactCorpus(ctx context.Context, st Store, in, out string, policy types.Policy, ensureASCII bool) (int, error) {
	records, err := st.Load(ctx, in)
	if err != nil {
		return 0, err
	}
	compacted, err := Records(records, policy)
	if err != nil {
		return 0, fmt.Errorf("compact %s: %w", in, err)
	}
	if err := st.Save(ctx, out, compacted, ensureASCII); err != nil {
		return 0, err
	}
	return len(compacted), nil
}
