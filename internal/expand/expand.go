// Package expand appends model-generated elaborations to dataset queries.
package expand

import (
	"context"
	"fmt"

	"github.com/ogulcanaydogan/finprep/internal/store"
	"github.com/ogulcanaydogan/finprep/pkg/types"
)

// Generator is the part of generate.Service the expander calls.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Templates interface {
	Template(stage, kind, subset string) (string, error)
}

type Store interface {
	Load(ctx context.Context, location string) ([]types.Record, error)
	Save(ctx context.Context, location string, records []types.Record, ensureASCII bool) error
	Exists(ctx context.Context, location string) (bool, error)
}

type Options struct {
	Dataset     string
	Subset      string
	Overwrite   bool
	EnsureASCII bool
}

type Result struct {
	Queries int
	Written bool
	Output  string
}

func BuildPrompt(template, query string) string {
	return template + "\n\nQuery: " + query
}

// ExpandRecords returns one {_id, title, text} record per input, in order,
// where text is the original query followed by the generated elaboration.
func ExpandRecords(ctx context.Context, gen Generator, template string, records []types.Record) ([]types.Record, error) {
	out := make([]types.Record, 0, len(records))
	for i, rec := range records {
		id := rec.Get(types.FieldID)
		if !id.Exists() {
			return nil, fmt.Errorf("%w: query %d has no %q field", types.ErrInvalid, i, types.FieldID)
		}
		text, err := rec.String(types.FieldText)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", id.String(), err)
		}
		title := `""`
		if t := rec.Get(types.FieldTitle); t.Exists() {
			title = t.Raw
		}

		generated, err := gen.Generate(ctx, BuildPrompt(template, text))
		if err != nil {
			return nil, fmt.Errorf("expand query %s: %w", id.String(), err)
		}

		next, err := buildRecord(id.Raw, title, text+"\n\n"+generated)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", id.String(), err)
		}
		out = append(out, next)
	}
	return out, nil
}

// buildRecord lays out {_id, title, text}, keeping id and title as encoded in
// the source line.
func buildRecord(id, title, text string) (types.Record, error) {
	rec, err := types.Record{}.WithRaw(types.FieldID, []byte(id))
	if err != nil {
		return types.Record{}, err
	}
	if rec, err = rec.WithRaw(types.FieldTitle, []byte(title)); err != nil {
		return types.Record{}, err
	}
	return rec.With(types.FieldText, text)
}

// ExpandSubset expands <dataset>/<subset>/queries.jsonl into
// queries_prep.jsonl. An existing output is kept unless Overwrite is set; the
// inputs and template are still resolved so missing files are reported.
func ExpandSubset(ctx context.Context, st Store, reg Templates, gen Generator, opts Options) (Result, error) {
	var res Result
	root, err := store.Normalize(opts.Dataset)
	if err != nil {
		return res, err
	}
	in := store.Join(root, opts.Subset, types.QueriesFile)
	res.Output = store.Join(root, opts.Subset, types.QueriesPrepFile)

	records, err := st.Load(ctx, in)
	if err != nil {
		return res, err
	}
	res.Queries = len(records)
	template, err := reg.Template(types.StagePreRetrieval, types.KindQueries, opts.Subset)
	if err != nil {
		return res, err
	}

	exists, err := st.Exists(ctx, res.Output)
	if err != nil {
		return res, err
	}
	if exists && !opts.Overwrite {
		return res, nil
	}

	expanded, err := ExpandRecords(ctx, gen, template, records)
	if err != nil {
		return res, err
	}
	if err := st.Save(ctx, res.Output, expanded, opts.EnsureASCII); err != nil {
		return res, err
	}
	res.Written = true
	return res, nil
}
