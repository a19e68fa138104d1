package corpus

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaFileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["tables"],
  "properties": {
    "tables": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "columns"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "columns": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "type"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "type": {"type": "string", "minLength": 1},
                "description": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`

const casesFileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["test_cases"],
  "properties": {
    "test_cases": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "difficulty", "question", "expected_sql"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "difficulty": {"enum": ["simple", "medium", "complex"]},
          "question": {"type": "string", "minLength": 1},
          "expected_sql": {"type": "string"},
          "expected_context": {"type": "array", "items": {"type": "string"}},
          "sql_criteria": {
            "type": "object",
            "properties": {
              "required_tables": {"type": "array", "items": {"type": "string"}},
              "required_columns": {"type": "array", "items": {"type": "string"}},
              "requires_join": {"type": "boolean"}
            }
          }
        }
      }
    }
  }
}`

const goldenFileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["contexts"],
  "properties": {
    "contexts": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "required_context": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

// Schema kinds validated on load.
const (
	kindSchema = "schema"
	kindCases  = "cases"
	kindGolden = "golden"
)

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func validators() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		sources := map[string]string{
			kindSchema: schemaFileSchema,
			kindCases:  casesFileSchema,
			kindGolden: goldenFileSchema,
		}
		c := jsonschema.NewCompiler()
		for kind, src := range sources {
			doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
			if err != nil {
				compileErr = fmt.Errorf("parse %s schema: %w", kind, err)
				return
			}
			if err := c.AddResource(kind+".schema.json", doc); err != nil {
				compileErr = fmt.Errorf("add %s schema: %w", kind, err)
				return
			}
		}
		compiled = make(map[string]*jsonschema.Schema, len(sources))
		for kind := range sources {
			sch, err := c.Compile(kind + ".schema.json")
			if err != nil {
				compileErr = fmt.Errorf("compile %s schema: %w", kind, err)
				return
			}
			compiled[kind] = sch
		}
	})
	return compiled, compileErr
}

// validateJSON checks a JSON document against the schema of the given kind.
func validateJSON(kind string, data []byte) error {
	schemas, err := validators()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	return schemas[kind].Validate(inst)
}
