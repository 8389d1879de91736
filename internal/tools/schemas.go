package tools

import "github.com/santhosh-tekuri/jsonschema/v5"

// Every tool's parameters are checked against a named schema before the
// handler runs. Unknown fields are rejected everywhere; a typo in a field
// name is an error, not a silently ignored option.

const startSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "task_type": {
      "type": "string",
      "enum": ["coding", "debugging", "refactoring", "code-review", "testing",
               "documentation", "research", "planning", "other"]
    },
    "client": {"type": "string"},
    "title": {"type": "string"},
    "private_title": {"type": "string"},
    "prompt": {"type": "string"},
    "prompt_word_count": {"type": "integer", "minimum": 0},
    "prompt_image_descriptions": {"type": "array", "items": {"type": "string"}},
    "model": {"type": "string"},
    "project": {"type": "string"},
    "conversation_id": {"type": "string"}
  }
}`

const heartbeatSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {}
}`

const endSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "task_type": {"type": "string"},
    "languages": {"type": "array", "items": {"type": "string"}},
    "files_touched_count": {"type": "integer", "minimum": 0},
    "milestones": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["title"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "private_title": {"type": "string"},
          "category": {
            "type": "string",
            "enum": ["feature", "bugfix", "refactor", "test", "docs",
                     "setup", "deployment", "other"]
          },
          "complexity": {"type": "string", "enum": ["simple", "medium", "complex"]}
        }
      }
    },
    "evaluation": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "framework": {"type": "string"},
        "prompt_quality": {"type": "integer", "minimum": 1, "maximum": 5},
        "context_provided": {"type": "integer", "minimum": 1, "maximum": 5},
        "scope_quality": {"type": "integer", "minimum": 1, "maximum": 5},
        "independence_level": {"type": "integer", "minimum": 1, "maximum": 5},
        "tools_leveraged": {"type": "integer", "minimum": 0},
        "task_outcome": {
          "type": "string",
          "enum": ["completed", "partial", "blocked", "abandoned"]
        }
      }
    }
  }
}`

const emptySchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {}
}`

const restoreSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["backup"],
  "properties": {
    "backup": {"type": "object"}
  }
}`

func mustCompile(name, schema string) *jsonschema.Schema {
	return jsonschema.MustCompileString(name+".schema.json", schema)
}
