package tool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema generates a JSON-Schema map for T using struct tags
// (`json:"..."` for field names, `jsonschema:"required,description=..."`
// for constraints), grounded on the reference repo's function-tool
// schema generator.
func Schema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	delete(schemaMap, "$schema")
	delete(schemaMap, "$id")

	if schemaMap["type"] != "object" {
		return schemaMap, nil
	}

	result := map[string]any{
		"type":       "object",
		"properties": schemaMap["properties"],
	}
	if req := schemaMap["required"]; req != nil {
		result["required"] = req
	}
	if addProps, ok := schemaMap["additionalProperties"]; ok {
		result["additionalProperties"] = addProps
	}
	return result, nil
}
