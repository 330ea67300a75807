package prompt

import "encoding/json"

// Default builds a starter registry with one query expansion template per
// subset name.
func Default(subsets []string) ([]byte, error) {
	queries := make(map[string]string, len(subsets))
	for _, name := range subsets {
		queries[name] = defaultTemplate
	}
	return json.MarshalIndent(map[string]any{
		"pre_retrieval": map[string]any{"queries": queries},
	}, "", "  ")
}

const defaultTemplate = "You are a financial analyst. Rewrite the query below into a short passage " +
	"that restates it with the metrics, filings, periods and terminology a relevant " +
	"document would contain. Do not answer the question."
