package content

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const courseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "title"],
  "properties": {
    "id":     {"type": "string", "minLength": 1},
    "title":  {"type": "string", "minLength": 1},
    "closed": {"type": "boolean"},
    "lessons": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id":          {"type": "string", "minLength": 1},
          "title":       {"type": "string"},
          "attachments": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "quizzes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "questions"],
        "properties": {
          "id":    {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "questions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "options", "correct"],
              "properties": {
                "id":   {"type": "string", "minLength": 1},
                "text": {"type": "string"},
                "options": {
                  "type": "array",
                  "minItems": 1,
                  "items": {
                    "type": "object",
                    "required": ["id"],
                    "properties": {
                      "id":   {"type": "string", "minLength": 1},
                      "text": {"type": "string"}
                    }
                  }
                },
                "correct": {
                  "type": "array",
                  "minItems": 1,
                  "items": {"type": "string"}
                }
              }
            }
          },
          "rewards": {
            "type": "object",
            "propertyNames": {"pattern": "^attempt[1-9][0-9]*$"},
            "additionalProperties": {"type": "integer", "minimum": 0}
          }
        }
      }
    },
    "reviews": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["rating"],
        "properties": {
          "learner_id": {"type": "string"},
          "rating":     {"type": "integer", "minimum": 1, "maximum": 5}
        }
      }
    }
  }
}`

// Validator checks decoded course documents against the course schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the course schema.
func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(courseSchema))
	if err != nil {
		return nil, fmt.Errorf("compile course schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks a document decoded from YAML into generic maps.
func (v *Validator) Validate(doc any) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate course document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid course document: %s", strings.Join(msgs, "; "))
}
