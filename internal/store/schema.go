package store

import (
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// artifactSchemaJSON describes the session artifact format: an array of
// prompt entries, each a {request, response, error} triple of object-or-null.
const artifactSchemaJSON = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"request":  {"type": ["object", "null"]},
			"response": {"type": ["object", "null"]},
			"error":    {"type": ["object", "null"]}
		},
		"required": ["request", "response", "error"]
	}
}`

var artifactSchema = func() *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(artifactSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("artifact schema: %v", err))
	}
	return schema
}()

// validateArtifact checks artifact bytes against the schema. Invalid files are
// treated as corrupt by callers (empty prior state, warning, overwrite).
func validateArtifact(data []byte) error {
	result := artifactSchema.ValidateJSON(data)
	if !result.IsValid() {
		return fmt.Errorf("artifact schema validation failed: %v", result.Errors)
	}
	return nil
}
