package api

import "github.com/xeipuuv/gojsonschema"

var scheduleRequestSchema = gojsonschema.NewStringLoader(`{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "study_days": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "hours_per_day": {"type": "number"},
    "start_date": {"type": "string"}
  }
}`)

var progressSchema = gojsonschema.NewStringLoader(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["status"],
  "properties": {
    "status": {"enum": ["not_started", "in_progress", "completed"]},
    "understanding_level": {"type": "integer", "minimum": 0, "maximum": 5},
    "time_spent_hours": {"type": "number", "minimum": 0}
  }
}`)

var dependencySchema = gojsonschema.NewStringLoader(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["prerequisite_topic_id"],
  "properties": {
    "prerequisite_topic_id": {"type": "string", "minLength": 1},
    "kind": {"enum": ["required", "recommended"]}
  }
}`)
