package taskfinisher

import (
	"encoding/json"
	"fmt"

	"github.com/nimec77/deepseek-json/backend/model"
	"github.com/nimec77/deepseek-json/shared/strictjson"
)

const parserName = "taskfinisher"

// ParseResponse interprets raw model output. The "type" discriminator is read
// from a generic document first and only the matching shape is decoded, so a
// reply is never accepted as whichever shape happens to fit. Unknown fields
// are ignored; a missing, null or mistyped declared field fails the parse.
func ParseResponse(raw string) (*Response, error) {
	var document any
	if err := json.Unmarshal([]byte(raw), &document); err != nil {
		return nil, model.NewParseError(parserName, "Invalid JSON", err)
	}

	object, _ := document.(map[string]any)
	typ, ok := object["type"].(string)
	if !ok {
		return nil, model.NewParseError(parserName, "Missing 'type' field", nil)
	}

	switch typ {
	case TypeClarifyingQuestions:
		var payload ClarifyingPayload
		if err := strictjson.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, invalidPayload(typ, err)
		}
		return &Response{Clarifying: &payload, Raw: raw}, nil

	case TypeArtifact:
		var artifact Artifact
		if err := strictjson.Unmarshal([]byte(raw), &artifact); err != nil {
			return nil, invalidPayload(typ, err)
		}
		return &Response{Artifact: &artifact, Raw: raw}, nil

	default:
		return nil, model.NewParseError(parserName, fmt.Sprintf("Unsupported type: %s", typ), nil)
	}
}

func invalidPayload(typ string, err error) error {
	return model.NewParseError(parserName, fmt.Sprintf("Invalid %s payload", typ), err)
}
