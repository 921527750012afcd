package synthesis

import "encoding/json"

// SchemaName identifies the structured output schema on the API call.
const SchemaName = "kb_items"

// ItemsSchema is the strict JSON schema the model must produce: a list of
// candidate knowledge items. Signals stays a free-form object because its
// keys depend on the source system.
var ItemsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"type": {
						"type": "string",
						"enum": [
							"incident-pattern",
							"root-cause",
							"resolution",
							"verification-steps",
							"customizing",
							"technical-note",
							"glossary",
							"runbook"
						]
					},
					"title": {"type": "string"},
					"body": {"type": "string"},
					"tags": {"type": "array", "items": {"type": "string"}},
					"domain_objects": {"type": "array", "items": {"type": "string"}},
					"signals": {"type": "object"}
				},
				"required": ["type", "title", "body", "tags", "domain_objects", "signals"],
				"additionalProperties": false
			}
		}
	},
	"required": ["items"],
	"additionalProperties": false
}`)
