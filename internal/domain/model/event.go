package model

import (
	"encoding/json"
	"fmt"
)

// Topic identifies the variant of an Event on the wire.
type Topic string

const (
	TopicResult  Topic = "result"
	TopicMessage Topic = "message"
)

// Result carries an analysis outcome for one artifact. Confidence is kept as
// the string the worker sent; it may be a number or a per-class summary.
type Result struct {
	ImageName  string `json:"image_name"`
	Prediction string `json:"prediction"`
	Confidence string `json:"confidence"`
}

// Message carries free text for the session, such as progress notes.
type Message struct {
	Text string `json:"message"`
}

// Event is a transient notification destined for exactly one session.
// Exactly one of Result or Message is set, matching Topic.
type Event struct {
	Topic   Topic
	Result  *Result
	Message *Message

	// JobID names the job a report answers. It never goes on the wire to
	// clients; empty when the reporter did not say.
	JobID string
}

// NewResultEvent builds a result event.
func NewResultEvent(imageName, prediction, confidence string) Event {
	return Event{Topic: TopicResult, Result: &Result{ImageName: imageName, Prediction: prediction, Confidence: confidence}}
}

// ForJob tags the event with the job it answers.
func (e Event) ForJob(id string) Event {
	e.JobID = id
	return e
}

// NewMessageEvent builds a message event.
func NewMessageEvent(text string) Event {
	return Event{Topic: TopicMessage, Message: &Message{Text: text}}
}

type envelope struct {
	Topic Topic           `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Encode serializes the event into the {topic, data} envelope pushed to clients.
func (e Event) Encode() ([]byte, error) {
	var data any
	switch e.Topic {
	case TopicResult:
		if e.Result == nil {
			return nil, fmt.Errorf("result event without payload")
		}
		data = e.Result
	case TopicMessage:
		if e.Message == nil {
			return nil, fmt.Errorf("message event without payload")
		}
		data = e.Message
	default:
		return nil, fmt.Errorf("unknown event topic %q", e.Topic)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	return json.Marshal(envelope{Topic: e.Topic, Data: raw})
}

// DecodeEvent parses an envelope produced by Encode.
func DecodeEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	switch env.Topic {
	case TopicResult:
		var r Result
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return Event{}, fmt.Errorf("decode result: %w", err)
		}
		return Event{Topic: TopicResult, Result: &r}, nil
	case TopicMessage:
		var m Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return Event{}, fmt.Errorf("decode message: %w", err)
		}
		return Event{Topic: TopicMessage, Message: &m}, nil
	default:
		return Event{}, fmt.Errorf("unknown event topic %q", env.Topic)
	}
}
