package models

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the closed set of cross-context messages.
type MessageType string

const (
	MsgAuthTokenUpdate       MessageType = "AUTH_TOKEN_UPDATE"
	MsgAuthTokenClear        MessageType = "AUTH_TOKEN_CLEAR"
	MsgAPIBaseURLUpdate      MessageType = "API_BASE_URL_UPDATE"
	MsgRequestAuthToken      MessageType = "REQUEST_AUTH_TOKEN"
	MsgBackgroundModeChanged MessageType = "BACKGROUND_MODE_CHANGED"
)

// Message is the flat wire object carried over the cross-context channel.
// Only the fields belonging to the Type are populated; delivery is
// best-effort and at-most-once, so handlers must tolerate duplicates and
// arbitrary ordering.
type Message struct {
	Type    MessageType `json:"type"`
	Token   string      `json:"token,omitempty"`
	URL     string      `json:"url,omitempty"`
	Enabled bool        `json:"enabled,omitempty"`
}

func AuthTokenUpdate(token string) Message {
	return Message{Type: MsgAuthTokenUpdate, Token: token}
}

func AuthTokenClear() Message {
	return Message{Type: MsgAuthTokenClear}
}

func APIBaseURLUpdate(url string) Message {
	return Message{Type: MsgAPIBaseURLUpdate, URL: url}
}

func RequestAuthToken() Message {
	return Message{Type: MsgRequestAuthToken}
}

func BackgroundModeChanged(enabled bool) Message {
	return Message{Type: MsgBackgroundModeChanged, Enabled: enabled}
}

// Validate rejects messages outside the closed taxonomy and messages whose
// required payload field is missing.
func (m Message) Validate() error {
	switch m.Type {
	case MsgAuthTokenUpdate:
		if m.Token == "" {
			return fmt.Errorf("%s requires a token", m.Type)
		}
	case MsgAPIBaseURLUpdate:
		if m.URL == "" {
			return fmt.Errorf("%s requires a url", m.Type)
		}
	case MsgAuthTokenClear, MsgRequestAuthToken, MsgBackgroundModeChanged:
	default:
		return fmt.Errorf("unknown message type: %q", m.Type)
	}
	return nil
}

// DecodeMessage parses and validates a wire message.
func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("decode channel message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Encode serializes the message for the channel.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode channel message: %w", err)
	}
	return data, nil
}
