package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/ogulcanaydogan/finprep/internal/pipeline"
)

func BuildMarkdown(r pipeline.Report) string {
	failed := len(r.Failed())
	status := "PASS"
	switch {
	case r.Aborted != "":
		status = "ABORTED"
	case failed > 0:
		status = "PARTIAL"
	}
	var b strings.Builder
	b.WriteString("# Pre-retrieval Run Report\n\n")
	b.WriteString(fmt.Sprintf("- Status: **%s**\n", status))
	b.WriteString(fmt.Sprintf("- Run ID: `%s`\n", r.RunID))
	b.WriteString(fmt.Sprintf("- Dataset: `%s`\n", r.Dataset))
	if r.Generator != "" {
		b.WriteString(fmt.Sprintf("- Generator: `%s`\n", r.Generator))
	}
	if r.PromptDigest != "" {
		b.WriteString(fmt.Sprintf("- Prompt Registry: `%s`\n", r.PromptDigest))
	}
	b.WriteString(fmt.Sprintf("- Started: %s\n", r.StartedAt))
	b.WriteString(fmt.Sprintf("- Finished: %s\n", r.FinishedAt))
	b.WriteString(fmt.Sprintf("- Subsets: `%d` (%d failed)\n\n", len(r.Outcomes), failed))

	b.WriteString("## Subsets\n\n")
	b.WriteString("| Subset | Status | Corpus | Queries | Queries Written | Detail |\n")
	b.WriteString("|---|---|---|---:|---:|---|\n")
	for _, o := range r.Outcomes {
		detail := "ok"
		if o.Error != "" {
			detail = fmt.Sprintf("%s at %s: %s", o.Code, o.Stage, escapeCell(o.Error))
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %t | %s |\n", o.Subset, o.Status, o.CorpusMode, o.Queries, o.QueryOutputWritten, detail))
	}

	var outputs []string
	for _, o := range r.Outcomes {
		for _, out := range o.Outputs {
			outputs = append(outputs, fmt.Sprintf("| %s | %s | `%s` | %d |\n", o.Subset, out.Stage, out.Digest, out.Size))
		}
	}
	if len(outputs) > 0 {
		b.WriteString("\n## Outputs\n\n")
		b.WriteString("| Subset | Stage | Digest | Bytes |\n")
		b.WriteString("|---|---|---|---:|\n")
		for _, line := range outputs {
			b.WriteString(line)
		}
	}

	if r.Aborted != "" {
		b.WriteString("\n## Aborted\n\n")
		b.WriteString("- " + r.Aborted + "\n")
	}
	return b.String()
}

func WriteMarkdown(path string, r pipeline.Report) error {
	return os.WriteFile(path, []byte(BuildMarkdown(r)), 0o644)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
