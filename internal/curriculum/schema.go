package curriculum

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const topicSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name", "course_id", "importance", "estimated_hours"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "course_id": {"type": "string", "minLength": 1},
    "chapter": {"type": "integer", "minimum": 0},
    "position": {"type": "integer", "minimum": 0},
    "importance": {"type": "integer", "minimum": 1, "maximum": 5},
    "estimated_hours": {"type": "number", "exclusiveMinimum": 0},
    "prerequisites": {
      "type": ["object", "null"],
      "properties": {
        "required": {"type": ["array", "null"], "items": {"type": "string"}},
        "recommended": {"type": ["array", "null"], "items": {"type": "string"}}
      }
    }
  }
}`

var topicSchemaLoader = gojsonschema.NewStringLoader(topicSchema)

// ValidateTopicDocument checks a decoded topic document against the topic schema.
func ValidateTopicDocument(doc map[string]any) error {
	result, err := gojsonschema.Validate(topicSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validating topic: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid topic: %s", strings.Join(msgs, "; "))
}
