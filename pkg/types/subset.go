package types

import (
	"fmt"
	"strings"
)

// Registry and dataset layout names.
const (
	StagePreRetrieval = "pre_retrieval"
	KindQueries       = "queries"

	QueriesFile     = "queries.jsonl"
	CorpusFile      = "corpus.jsonl"
	QueriesPrepFile = "queries_prep.jsonl"
	CorpusPrepFile  = "corpus_prep.jsonl"
)

// Policy picks the excerpt kept from a document that has no table block.
type Policy string

const (
	PolicyLastParagraph   Policy = "last_paragraph"
	PolicySecondParagraph Policy = "second_paragraph"
	PolicyIdentity        Policy = "identity"
	PolicyUnsupported     Policy = "unsupported"
)

func (p Policy) Valid() bool {
	switch p {
	case PolicyLastParagraph, PolicySecondParagraph, PolicyIdentity, PolicyUnsupported:
		return true
	default:
		return false
	}
}

// CorpusMode selects how a subset's corpus reaches corpus_prep.jsonl.
type CorpusMode string

const (
	CorpusCopy    CorpusMode = "copy"
	CorpusCompact CorpusMode = "compact"
)

func (m CorpusMode) Valid() bool {
	return m == CorpusCopy || m == CorpusCompact
}

type SubsetSpec struct {
	Name       string     `yaml:"name" json:"name"`
	CorpusMode CorpusMode `yaml:"corpus_mode" json:"corpus_mode"`
	Fallback   Policy     `yaml:"fallback" json:"fallback"`
}

func (s SubsetSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: subset name is required", ErrInvalid)
	}
	if !s.CorpusMode.Valid() {
		return fmt.Errorf("%w: subset %s: unsupported corpus_mode %q", ErrInvalid, s.Name, s.CorpusMode)
	}
	if !s.Fallback.Valid() {
		return fmt.Errorf("%w: subset %s: unsupported fallback %q", ErrInvalid, s.Name, s.Fallback)
	}
	return nil
}

// DefaultSubsets is the financial QA benchmark suite in processing order.
func DefaultSubsets() []SubsetSpec {
	return []SubsetSpec{
		{Name: "FinanceBench", CorpusMode: CorpusCopy, Fallback: PolicyUnsupported},
		{Name: "FinDER", CorpusMode: CorpusCopy, Fallback: PolicyUnsupported},
		{Name: "FinQABench", CorpusMode: CorpusCopy, Fallback: PolicyUnsupported},
		{Name: "MultiHiertt", CorpusMode: CorpusCompact, Fallback: PolicyIdentity},
		{Name: "ConvFinQA", CorpusMode: CorpusCopy, Fallback: PolicySecondParagraph},
		{Name: "TATQA", CorpusMode: CorpusCopy, Fallback: PolicyLastParagraph},
		{Name: "FinQA", CorpusMode: CorpusCopy, Fallback: PolicySecondParagraph},
	}
}

// LookupSubset finds a spec by name. Unknown names resolve to an unsupported
// copy-only spec so callers always get a policy value.
func LookupSubset(specs []SubsetSpec, name string) (SubsetSpec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return SubsetSpec{Name: name, CorpusMode: CorpusCopy, Fallback: PolicyUnsupported}, false
}
