package graph

import "github.com/voxflow/voxflow/pkg/models"

// nodeDataSchemas guards the shape of each node type's data bag before the
// typed semantic checks run. Schemas are permissive about optional fields;
// the validator owns range and cross-field rules.
var nodeDataSchemas = map[models.NodeType]string{
	models.NodeTypeGreeting: `{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"audio_url": {"type": "string"}
		}
	}`,
	models.NodeTypeAudio: `{
		"type": "object",
		"properties": {
			"mode": {"type": "string", "enum": ["", "text", "file"]},
			"text": {"type": "string"},
			"audio_url": {"type": "string"},
			"wait_for_input": {"type": "boolean"},
			"num_digits": {"type": "integer", "minimum": 0},
			"timeout": {"type": "integer", "minimum": 0}
		}
	}`,
	models.NodeTypeInput: `{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"audio_url": {"type": "string"},
			"num_digits": {"type": "integer", "minimum": 0},
			"timeout": {"type": "integer"},
			"max_attempts": {"type": "integer"},
			"routes": {"type": "object", "additionalProperties": {"type": "string"}},
			"invalid_prompt": {"type": "string"},
			"timeout_prompt": {"type": "string"}
		}
	}`,
	models.NodeTypeTransfer: `{
		"type": "object",
		"properties": {
			"destination": {"type": "string"},
			"caller_id": {"type": "string"},
			"timeout": {"type": "integer", "minimum": 0}
		}
	}`,
	models.NodeTypeVoicemail: `{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"max_length": {"type": "integer", "minimum": 0},
			"transcribe": {"type": "boolean"}
		}
	}`,
	models.NodeTypeRepeat: `{
		"type": "object",
		"properties": {
			"max_repeats": {"type": "integer", "minimum": 0}
		}
	}`,
	models.NodeTypeQueue: `{
		"type": "object",
		"properties": {
			"queue_name": {"type": "string"},
			"wait_music_url": {"type": "string"}
		}
	}`,
	models.NodeTypeConditional: `{
		"type": "object",
		"properties": {
			"variable": {"type": "string"},
			"operator": {"type": "string"},
			"value": {"type": "string"},
			"preset": {"type": "string"},
			"timezone": {"type": "string"},
			"open_hour": {"type": "integer"},
			"close_hour": {"type": "integer"},
			"days": {"type": "array", "items": {"type": "string"}},
			"tier": {"type": "string"}
		}
	}`,
	models.NodeTypeSetVariable: `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"value": {"type": "string"}
		}
	}`,
	models.NodeTypeAPICall: `{
		"type": "object",
		"required": ["url"],
		"properties": {
			"url": {"type": "string", "minLength": 1},
			"method": {"type": "string"},
			"headers": {"type": "object", "additionalProperties": {"type": "string"}},
			"body": {"type": "string"},
			"timeout": {"type": "integer", "minimum": 0},
			"response_variable": {"type": "string"}
		}
	}`,
	models.NodeTypeSms: `{
		"type": "object",
		"required": ["message"],
		"properties": {
			"to": {"type": "string"},
			"from": {"type": "string"},
			"message": {"type": "string", "minLength": 1}
		}
	}`,
	models.NodeTypeAIAssistant: `{
		"type": "object",
		"required": ["assistant_url"],
		"properties": {
			"assistant_url": {"type": "string", "minLength": 1},
			"greeting": {"type": "string"},
			"timeout": {"type": "integer", "minimum": 0}
		}
	}`,
	models.NodeTypeEnd: `{
		"type": "object",
		"properties": {
			"farewell_text": {"type": "string"},
			"survey_sms_message": {"type": "string"},
			"receipt_email": {"type": "boolean"},
			"callback_delay_min": {"type": "integer", "minimum": 0}
		}
	}`,
}
