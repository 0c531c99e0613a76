// Package protocol defines the cross-window message contract between the
// provider callback page and the popup orchestrator.
package protocol

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
)

// Action tags a cross-window message
type Action string

const (
	ActionSuccess Action = "github-authentication-success"
	ActionError   Action = "github-authentication-error"
)

// DefaultFailureMessage is used when an error message carries no text
const DefaultFailureMessage = "authentication failed"

// Envelope is the JSON body posted by the callback page
type Envelope struct {
	Action        Action          `json:"action"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Message       string          `json:"message,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// InboundMessage is a candidate delivered on the host message channel.
// Origin is set by the transport, never by the sender's body.
type InboundMessage struct {
	Origin string
	Envelope
}

// Kind is the outcome of classifying an InboundMessage for one attempt
type Kind int

const (
	Ignore Kind = iota
	Success
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "ignore"
	}
}

// Verdict is what an attempt should do with a message
type Verdict struct {
	Kind    Kind
	Payload json.RawMessage
	Message string
	// Reason explains an Ignore verdict, for trace logging only
	Reason string
}

// Classify decides whether msg settles the attempt identified by
// correlationID. Foreign origins, unknown actions and correlation
// mismatches are ignored, never reported as errors.
func Classify(msg InboundMessage, expectedOrigin, correlationID string) Verdict {
	if msg.Origin == "" || msg.Origin != expectedOrigin {
		return Verdict{Kind: Ignore, Reason: "origin mismatch"}
	}

	switch msg.Action {
	case ActionSuccess, ActionError:
	default:
		return Verdict{Kind: Ignore, Reason: "unrecognized action"}
	}

	if correlationID == "" || subtle.ConstantTimeCompare([]byte(msg.CorrelationID), []byte(correlationID)) != 1 {
		return Verdict{Kind: Ignore, Reason: "correlation mismatch"}
	}

	if msg.Action == ActionSuccess {
		return Verdict{Kind: Success, Payload: msg.Payload}
	}

	text := msg.Message
	if text == "" {
		text = DefaultFailureMessage
	}
	return Verdict{Kind: Failure, Message: text}
}

// Decode parses a raw message body. Bodies that are not a JSON object with
// an action yield ok=false and must be dropped by the caller.
func Decode(origin string, body []byte) (InboundMessage, bool) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return InboundMessage{}, false
	}
	if env.Action == "" {
		return InboundMessage{}, false
	}
	return InboundMessage{Origin: origin, Envelope: env}, true
}

// SuccessMessage builds the message a callback page posts after a
// successful exchange
func SuccessMessage(origin, correlationID string, payload any) (InboundMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return InboundMessage{}, fmt.Errorf("encoding payload: %w", err)
	}
	return InboundMessage{
		Origin: origin,
		Envelope: Envelope{
			Action:        ActionSuccess,
			Payload:       raw,
			CorrelationID: correlationID,
		},
	}, nil
}

// ErrorMessage builds the message a callback page posts on failure
func ErrorMessage(origin, correlationID, message string) InboundMessage {
	return InboundMessage{
		Origin: origin,
		Envelope: Envelope{
			Action:        ActionError,
			Message:       message,
			CorrelationID: correlationID,
		},
	}
}
