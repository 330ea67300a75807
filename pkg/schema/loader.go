package schema

import (
	_ "embed"
	"fmt"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed prompt_registry.schema.json
var promptRegistrySchema string

// Validate checks doc against the JSON Schema stored at schemaPath.
func Validate(schemaPath string, doc any) ([]string, error) {
	abs, err := filepath.Abs(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", schemaPath, err)
	}
	return validate(gojsonschema.NewReferenceLoader("file://"+filepath.ToSlash(abs)), gojsonschema.NewGoLoader(doc), schemaPath)
}

// ValidatePromptRegistry checks that pre_retrieval.queries, when present, maps
// subset names to string templates. Other sections are not constrained.
func ValidatePromptRegistry(raw []byte) ([]string, error) {
	return validate(gojsonschema.NewStringLoader(promptRegistrySchema), gojsonschema.NewBytesLoader(raw), "prompt registry schema")
}

func validate(schemaLoader, docLoader gojsonschema.JSONLoader, name string) ([]string, error) {
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", name, err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}
