package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type EventType string

const (
	EventTypeChat   EventType = "chat"
	EventTypeTyping EventType = "typing"
	EventTypeDelete EventType = "delete"
)

// ErrMalformedEvent is returned for frames that are not valid JSON objects
// or lack a field their type requires.
var ErrMalformedEvent = errors.New("malformed event")

var validate = validator.New()

// InboundEvent is the closed set of frames a client may send.
type InboundEvent interface {
	inbound()
}

type TypingRequest struct {
	Typing *bool `json:"typing" validate:"required"`
}

type DeleteRequest struct {
	MessageID *int64 `json:"message_id" validate:"required"`
}

// PostRequest is the default variant: frames with no type, or a type other
// than typing and delete, are posts.
type PostRequest struct {
	Message *string `json:"message" validate:"required"`
}

func (*TypingRequest) inbound() {}
func (*DeleteRequest) inbound() {}
func (*PostRequest) inbound()   {}

// DecodeInbound parses and validates one client frame.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var envelope struct {
		Type any `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var evt InboundEvent
	kind, _ := envelope.Type.(string)
	switch EventType(kind) {
	case EventTypeTyping:
		evt = &TypingRequest{}
	case EventTypeDelete:
		evt = &DeleteRequest{}
	default:
		evt = &PostRequest{}
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validate.Struct(evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return evt, nil
}

// OutboundEvent is the closed set of frames the server sends. Each variant
// serializes with its "type" discriminator.
type OutboundEvent interface {
	EventType() EventType
}

type ChatEvent struct {
	Message   string `json:"message"`
	User      string `json:"user"`
	Time      string `json:"time"`
	MessageID *int64 `json:"message_id"`
}

type TypingEvent struct {
	User   string `json:"user"`
	Typing bool   `json:"typing"`
}

type DeleteEvent struct {
	MessageID int64 `json:"message_id"`
}

func (ChatEvent) EventType() EventType   { return EventTypeChat }
func (TypingEvent) EventType() EventType { return EventTypeTyping }
func (DeleteEvent) EventType() EventType { return EventTypeDelete }

func (e ChatEvent) MarshalJSON() ([]byte, error) {
	type fields ChatEvent
	return json.Marshal(struct {
		Type EventType `json:"type"`
		fields
	}{e.EventType(), fields(e)})
}

func (e TypingEvent) MarshalJSON() ([]byte, error) {
	type fields TypingEvent
	return json.Marshal(struct {
		Type EventType `json:"type"`
		fields
	}{e.EventType(), fields(e)})
}

func (e DeleteEvent) MarshalJSON() ([]byte, error) {
	type fields DeleteEvent
	return json.Marshal(struct {
		Type EventType `json:"type"`
		fields
	}{e.EventType(), fields(e)})
}
