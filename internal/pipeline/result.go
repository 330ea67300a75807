package pipeline

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/ogulcanaydogan/finprep/pkg/types"
)

const (
	ExitOK            = 0
	ExitAborted       = 1
	ExitFailedSubsets = 2
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	StageQueries = "queries"
	StageCorpus  = "corpus"
)

type Output struct {
	Stage  string `json:"stage"`
	Path   string `json:"path"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}

type Outcome struct {
	Subset             string   `json:"subset"`
	Status             string   `json:"status"`
	Stage              string   `json:"stage,omitempty"`
	Error              string   `json:"error,omitempty"`
	Code               string   `json:"code,omitempty"`
	CorpusMode         string   `json:"corpus_mode"`
	Queries            int      `json:"queries"`
	CorpusRecords      int      `json:"corpus_records,omitempty"`
	QueryOutputWritten bool     `json:"query_output_written"`
	Outputs            []Output `json:"outputs,omitempty"`
}

type Report struct {
	RunID        string    `json:"run_id"`
	StartedAt    string    `json:"started_at"`
	FinishedAt   string    `json:"finished_at"`
	Dataset      string    `json:"dataset"`
	Generator    string    `json:"generator,omitempty"`
	PromptDigest string    `json:"prompt_digest,omitempty"`
	Aborted      string    `json:"aborted,omitempty"`
	Outcomes     []Outcome `json:"outcomes"`
}

func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// Err folds every failed subset into one error, or nil when all completed.
func (r Report) Err() error {
	var result *multierror.Error
	for _, o := range r.Failed() {
		result = multierror.Append(result, &SubsetError{Subset: o.Subset, Stage: o.Stage, Code: o.Code, Message: o.Error})
	}
	return result.ErrorOrNil()
}

func (r Report) ExitCode() int {
	switch {
	case r.Aborted != "":
		return ExitAborted
	case len(r.Failed()) > 0:
		return ExitFailedSubsets
	default:
		return ExitOK
	}
}

// SubsetError is a failed outcome read back as an error. errors.Is matches
// the sentinel its code names.
type SubsetError struct {
	Subset  string
	Stage   string
	Code    string
	Message string
}

func (e *SubsetError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Subset, e.Stage, e.Message)
}

func (e *SubsetError) Is(target error) bool {
	switch e.Code {
	case types.CodeNotFound:
		return target == types.ErrNotFound
	case types.CodeInvalid:
		return target == types.ErrInvalid
	default:
		return false
	}
}
