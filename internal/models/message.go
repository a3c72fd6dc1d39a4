package models

import "strconv"

// Message actions, as carried on the wire in the "action" field.
const (
	ActionMessage = "message"
	ActionControl = "control"
	ActionList    = "list"
	ActionHistory = "history"
)

// ChannelMessage is the unit of chat traffic: a payload published on a
// channel topic and, for chat messages, persisted to the channel history.
// Immutable once published; a globally unique integer id is assigned at
// persistence time.
type ChannelMessage struct {
	Action    string `json:"action"`
	User      string `json:"user"`
	Name      string `json:"name,omitempty"`
	Msg       string `json:"msg"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

// Fields flattens the message to the string map stored per message id.
func (m ChannelMessage) Fields() map[string]string {
	return map[string]string{
		"action":    m.Action,
		"user":      m.User,
		"name":      m.Name,
		"msg":       m.Msg,
		"timestamp": strconv.FormatInt(m.Timestamp, 10),
	}
}
