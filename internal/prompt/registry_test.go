package prompt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ogulcanaydogan/finprep/internal/store"
	"github.com/ogulcanaydogan/finprep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryJSON = `{
  "pre_retrieval": {
    "queries": {
      "FinQA": "Expand the FinQA question.",
      "TATQA": "Expand the TAT-QA question.",
      "Fin.Odd*Name": "dotted"
    },
    "corpus": {"FinQA": "unused"}
  }
}`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompt.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Template(t *testing.T) {
	path := writeRegistry(t, registryJSON)
	reg, err := Load(context.Background(), store.New(), path, "")
	require.NoError(t, err)

	tpl, err := reg.Template(types.StagePreRetrieval, types.KindQueries, "FinQA")
	require.NoError(t, err)
	assert.Equal(t, "Expand the FinQA question.", tpl)

	tpl, err = reg.Template(types.StagePreRetrieval, types.KindQueries, "Fin.Odd*Name")
	require.NoError(t, err)
	assert.Equal(t, "dotted", tpl)

	assert.Equal(t, path, reg.Source())
	assert.NotEmpty(t, reg.Digest())
}

func TestTemplate_Missing(t *testing.T) {
	reg, err := Parse([]byte(registryJSON))
	require.NoError(t, err)

	cases := []struct {
		name, stage, kind, subset string
	}{
		{"unknown subset", types.StagePreRetrieval, types.KindQueries, "FinanceBench"},
		{"unknown kind", types.StagePreRetrieval, "answers", "FinQA"},
		{"unknown stage", "post_retrieval", types.KindQueries, "FinQA"},
		{"wildcard is literal", types.StagePreRetrieval, types.KindQueries, "Fin*"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Template(tc.stage, tc.kind, tc.subset)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrInvalid)
			assert.Contains(t, err.Error(), "prompt not found for subset '"+tc.subset+"'")
		})
	}
}

func TestTemplate_NonStringLeaf(t *testing.T) {
	reg := &Registry{raw: []byte(`{"pre_retrieval":{"queries":{"FinQA":{"nested":"x"}}}}`)}
	_, err := reg.Template(types.StagePreRetrieval, types.KindQueries, "FinQA")
	assert.ErrorIs(t, err, types.ErrInvalid)
}

func TestSubsets(t *testing.T) {
	reg, err := Parse([]byte(registryJSON))
	require.NoError(t, err)
	assert.Equal(t, []string{"Fin.Odd*Name", "FinQA", "TATQA"}, reg.Subsets(types.StagePreRetrieval, types.KindQueries))
	assert.Empty(t, reg.Subsets("post_retrieval", types.KindQueries))
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(context.Background(), store.New(), filepath.Join(t.TempDir(), "prompt.json"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"malformed":          `{"pre_retrieval":`,
		"not an object":      `["FinQA"]`,
		"number template":    `{"pre_retrieval":{"queries":{"FinQA":3}}}`,
		"queries not object": `{"pre_retrieval":{"queries":["Expand."]}}`,
		"stage not object":   `{"pre_retrieval":"Expand."}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrInvalid)
		})
	}
}

func TestParse_ToleratesUnrelatedContent(t *testing.T) {
	cases := map[string]string{
		"extra top-level key":      `{"pre_retrieval":{"queries":{"FinQA":"tmpl"}},"version":1}`,
		"empty template elsewhere": `{"pre_retrieval":{"queries":{"FinQA":"tmpl","TATQA":""}}}`,
		"other kind holds object":  `{"pre_retrieval":{"queries":{"FinQA":"tmpl"},"corpus":{"FinQA":{"max":3}}}}`,
		"other stage any shape":    `{"pre_retrieval":{"queries":{"FinQA":"tmpl"}},"post_retrieval":[1,2]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			reg, err := Parse([]byte(raw))
			require.NoError(t, err)
			tpl, err := reg.Template(types.StagePreRetrieval, types.KindQueries, "FinQA")
			require.NoError(t, err)
			assert.Equal(t, "tmpl", tpl)
		})
	}
}

func TestTemplate_EmptyTemplateIsFound(t *testing.T) {
	reg, err := Parse([]byte(`{"pre_retrieval":{"queries":{"TATQA":""}}}`))
	require.NoError(t, err)
	tpl, err := reg.Template(types.StagePreRetrieval, types.KindQueries, "TATQA")
	require.NoError(t, err)
	assert.Empty(t, tpl)
}

func TestParse_EmptyDocumentHasNoTemplates(t *testing.T) {
	reg, err := Parse([]byte(`{}`))
	require.NoError(t, err)
	_, err = reg.Template(types.StagePreRetrieval, types.KindQueries, "FinQA")
	assert.ErrorIs(t, err, types.ErrInvalid)
}

func TestLoad_CustomSchema(t *testing.T) {
	schemaPath := filepath.Join(t.TempDir(), "require_finqa.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`{
  "type": "object",
  "properties": {
    "pre_retrieval": {
      "type": "object",
      "properties": {"queries": {"type": "object", "required": ["ConvFinQA"]}}
    }
  }
}`), 0o644))

	path := writeRegistry(t, registryJSON)
	_, err := Load(context.Background(), store.New(), path, schemaPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalid)
	assert.Contains(t, err.Error(), "ConvFinQA")
}

func TestDefault_Parses(t *testing.T) {
	raw, err := Default([]string{"FinQA", "TATQA"})
	require.NoError(t, err)
	reg, err := Parse(raw)
	require.NoError(t, err)
	tpl, err := reg.Template(types.StagePreRetrieval, types.KindQueries, "TATQA")
	require.NoError(t, err)
	assert.NotEmpty(t, tpl)
}

func TestUnavailable(t *testing.T) {
	_, loadErr := Load(context.Background(), store.New(), filepath.Join(t.TempDir(), "prompt.json"), "")
	require.Error(t, loadErr)

	_, err := Unavailable{Err: loadErr}.Template(types.StagePreRetrieval, types.KindQueries, "FinQA")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
