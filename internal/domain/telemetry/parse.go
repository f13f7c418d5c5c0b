package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Parse extracts, validates and decodes analyzer output for mode.
//
// The analyzer may wrap the document in prose or in a {"telemetry": {...}}
// envelope. The span from the first '{' to the last '}' is taken as the
// document. Any failure wraps fault.ErrParse and no partial record is
// returned.
func Parse(raw []byte, mode Mode) (Telemetry, error) {
	if !mode.Valid() {
		return Telemetry{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	doc, err := extract(raw)
	if err != nil {
		return Telemetry{}, err
	}
	if err := validate(doc, mode); err != nil {
		return Telemetry{}, err
	}
	var w wire
	if err := json.Unmarshal(doc, &w); err != nil {
		return Telemetry{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return w.telemetry(mode)
}

func extract(raw []byte) ([]byte, error) {
	start := bytes.IndexByte(raw, '{')
	end := bytes.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return nil, ErrNoPayload
	}
	doc := raw[start : end+1]

	var top map[string]json.RawMessage
	if err := json.Unmarshal(doc, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if inner, ok := top["telemetry"]; ok && len(top) == 1 {
		inner = bytes.TrimSpace(inner)
		if len(inner) > 0 && inner[0] == '{' {
			return inner, nil
		}
	}
	return doc, nil
}
