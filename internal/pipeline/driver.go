// Package pipeline runs the pre-retrieval stages over every configured subset
// and records one outcome per subset.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/finprep/internal/compact"
	"github.com/ogulcanaydogan/finprep/internal/expand"
	"github.com/ogulcanaydogan/finprep/internal/store"
	"github.com/ogulcanaydogan/finprep/pkg/types"
	"go.uber.org/zap"
)

type Options struct {
	Dataset     string
	Subsets     []types.SubsetSpec
	Overwrite   bool
	EnsureASCII bool
	SkipQueries bool
	SkipCorpus  bool
}

// Driver holds the services shared by every subset. Templates and Generator
// may be nil when queries are skipped.
type Driver struct {
	Store     *store.Store
	Templates expand.Templates
	Generator expand.Generator
	// GeneratorLabel and PromptDigest are copied into the report.
	GeneratorLabel string
	PromptDigest   string
	Out            io.Writer
	Log            *zap.Logger
}

// Run processes opts.Subsets in order. Missing inputs and invalid data fail
// only their subset; any other error stops the run and is returned with the
// report built so far.
func (d *Driver) Run(ctx context.Context, opts Options) (Report, error) {
	log := d.logger()
	report := Report{
		RunID:        uuid.NewString(),
		StartedAt:    time.Now().UTC().Format(time.RFC3339),
		Dataset:      opts.Dataset,
		Generator:    d.GeneratorLabel,
		PromptDigest: d.PromptDigest,
	}
	root, err := store.Normalize(opts.Dataset)
	if err != nil {
		return report, err
	}

	for _, spec := range opts.Subsets {
		if err := ctx.Err(); err != nil {
			return d.abort(report, err)
		}
		d.printf("Pre-retrieval for '%s' initiating...\n", spec.Name)
		started := time.Now()
		outcome, err := d.runSubset(ctx, root, spec, opts)
		if err != nil {
			outcome.Status = StatusFailed
			outcome.Error = err.Error()
			outcome.Code = types.Code(err)
			report.Outcomes = append(report.Outcomes, outcome)
			if ctx.Err() != nil || !types.Recoverable(err) {
				log.Error("subset aborted run", zap.String("subset", spec.Name), zap.String("stage", outcome.Stage), zap.Error(err))
				return d.abort(report, fmt.Errorf("subset %s: %w", spec.Name, err))
			}
			log.Warn("subset failed", zap.String("subset", spec.Name), zap.String("stage", outcome.Stage), zap.String("code", outcome.Code), zap.Error(err))
			d.printf("Pre-retrieval for '%s' Error : %s\n", spec.Name, err)
			continue
		}
		outcome.Status = StatusCompleted
		report.Outcomes = append(report.Outcomes, outcome)
		log.Info("subset completed",
			zap.String("subset", spec.Name),
			zap.Int("queries", outcome.Queries),
			zap.Bool("query_output_written", outcome.QueryOutputWritten),
			zap.Duration("elapsed", time.Since(started)))
		d.printf("Pre-retrieval for '%s' completed.\n", spec.Name)
	}
	report.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	return report, nil
}

func (d *Driver) runSubset(ctx context.Context, root string, spec types.SubsetSpec, opts Options) (Outcome, error) {
	outcome := Outcome{Subset: spec.Name, CorpusMode: string(spec.CorpusMode)}

	if !opts.SkipQueries {
		outcome.Stage = StageQueries
		res, err := expand.ExpandSubset(ctx, d.Store, d.Templates, d.Generator, expand.Options{
			Dataset:     root,
			Subset:      spec.Name,
			Overwrite:   opts.Overwrite,
			EnsureASCII: opts.EnsureASCII,
		})
		outcome.Queries = res.Queries
		outcome.QueryOutputWritten = res.Written
		if err != nil {
			return outcome, err
		}
		if err := d.addOutput(ctx, &outcome, StageQueries, res.Output); err != nil {
			return outcome, err
		}
	}

	if !opts.SkipCorpus {
		outcome.Stage = StageCorpus
		in := store.Join(root, spec.Name, types.CorpusFile)
		out := store.Join(root, spec.Name, types.CorpusPrepFile)
		switch spec.CorpusMode {
		case types.CorpusCompact:
			n, err := compact.CompactCorpus(ctx, d.Store, in, out, spec.Fallback, opts.EnsureASCII)
			if err != nil {
				return outcome, err
			}
			outcome.CorpusRecords = n
		default:
			if err := d.Store.Copy(ctx, in, out); err != nil {
				return outcome, err
			}
		}
		if err := d.addOutput(ctx, &outcome, StageCorpus, out); err != nil {
			return outcome, err
		}
	}
	outcome.Stage = ""
	return outcome, nil
}

func (d *Driver) addOutput(ctx context.Context, outcome *Outcome, stage, location string) error {
	digest, size, err := d.Store.Digest(ctx, location)
	if err != nil {
		return fmt.Errorf("digest %s: %w", location, err)
	}
	outcome.Outputs = append(outcome.Outputs, Output{Stage: stage, Path: location, Digest: digest, Size: size})
	return nil
}

func (d *Driver) abort(report Report, err error) (Report, error) {
	report.Aborted = err.Error()
	report.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	return report, err
}

func (d *Driver) printf(format string, args ...any) {
	if d.Out != nil {
		fmt.Fprintf(d.Out, format, args...)
	}
}

func (d *Driver) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}
