// ABOUTME: Transport record parsing
// ABOUTME: Tagged message variant for the flat and nested payload shapes
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned for records that are not JSON objects
var ErrMalformed = errors.New("malformed record")

// Shape identifies where a record carried its payload
type Shape int

const (
	ShapeNone   Shape = iota // no payload; heartbeat or control record
	ShapeFlat                // bufferBase64
	ShapeNested              // msg.data.data.buffer
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeNested:
		return "nested"
	default:
		return "none"
	}
}

// Message is one parsed record
type Message struct {
	Shape   Shape
	Payload string // base64 audio, empty for ShapeNone
}

// HasPayload reports whether the record carried audio
func (m Message) HasPayload() bool {
	return m.Shape != ShapeNone
}

type record struct {
	BufferBase64 json.RawMessage `json:"bufferBase64"`
	Msg          *struct {
		Data *struct {
			Data *struct {
				Buffer json.RawMessage `json:"buffer"`
			} `json:"data"`
		} `json:"data"`
	} `json:"msg"`
}

// Parse decodes a record. The flat field wins when present and not null;
// otherwise the nested field is used. Non-string payloads count as absent.
func Parse(data []byte) (Message, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		if err == nil {
			err = errors.New("not an object")
		}
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var rec record
	_ = json.Unmarshal(data, &rec)

	if present(rec.BufferBase64) {
		return message(ShapeFlat, rec.BufferBase64), nil
	}

	if rec.Msg != nil && rec.Msg.Data != nil && rec.Msg.Data.Data != nil {
		return message(ShapeNested, rec.Msg.Data.Data.Buffer), nil
	}

	return Message{}, nil
}

func present(field json.RawMessage) bool {
	return len(field) > 0 && string(field) != "null"
}

func message(shape Shape, field json.RawMessage) Message {
	var payload string
	if err := json.Unmarshal(field, &payload); err != nil || payload == "" {
		return Message{}
	}
	return Message{Shape: shape, Payload: payload}
}
