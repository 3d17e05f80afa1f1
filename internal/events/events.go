// Package events defines the JSON envelope exchanged over the chat socket.
// Every frame, in both directions, is {"type": ..., "data": ...}.
package events

import (
	"encoding/json"

	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/pubsub"
)

// Type tags an envelope.
type Type string

const (
	TypeUsers   Type = "users"
	TypeMessage Type = "message"
	TypeError   Type = "error"
)

// Error codes carried by TypeError events.
const (
	CodeValidation = "validation"
	CodeBadFrame   = "bad_frame"
	CodeInternal   = "internal"
)

// Event is a server to client frame.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Users is the full replacement of the online user list.
func Users(users []domain.User) Event {
	if users == nil {
		users = []domain.User{}
	}
	return Event{Type: TypeUsers, Data: users}
}

// Message announces a newly stored chat message.
func Message(msg domain.Message) Event {
	return Event{Type: TypeMessage, Data: msg}
}

// Error reports a failure to a single connection.
func Error(code, message string) Event {
	return Event{Type: TypeError, Data: ErrorData{Code: code, Message: message}}
}

// Inbound is a client to server frame. Data is decoded according to Type.
type Inbound struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MessageData is the payload of an inbound message frame.
type MessageData struct {
	Content string `json:"content"`
}

// InboundMessage is what the socket layer publishes for the chat pipeline.
// The author comes from the bus message's UserID, never from the client.
type InboundMessage struct {
	Content string `json:"content"`
}

// InboundMessages carries chat messages typed into a socket.
var InboundMessages = pubsub.NewTopic[InboundMessage]("chat.messages.inbound")

// MetaConnID is the bus metadata key naming the originating connection.
const MetaConnID = "conn_id"
