// Package protocol defines the JSON frames exchanged with clients and
// validates inbound frames at the boundary.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

const (
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
)

const (
	StatusSubscribed   = "subscribed"
	StatusUnsubscribed = "unsubscribed"
)

var (
	ErrInvalidJSON    = errors.New("invalid JSON")
	ErrUnknownMsgType = errors.New("unknown msg_type")
)

// ClientMessage is an inbound subscribe or unsubscribe command.
type ClientMessage struct {
	MsgType string   `json:"msg_type"`
	Pairs   []string `json:"pairs"`
}

// Ack confirms one subscribe/unsubscribe command. Pairs lists the symbols
// actually accepted; Rejected maps each refused symbol to a reason.
type Ack struct {
	MsgType  string            `json:"msg_type"`
	Status   string            `json:"status"`
	Pairs    []string          `json:"pairs"`
	Rejected map[string]string `json:"rejected,omitempty"`
}

// PriceUpdate pushes a batch of ticks. The oracle_prices key is the client's
// discriminator for a price update versus a control acknowledgment.
type PriceUpdate struct {
	OraclePrices []models.PriceTick `json:"oracle_prices"`
	Timestamp    int64              `json:"timestamp"`
}

// ErrorFrame reports a protocol-level error without closing the connection.
type ErrorFrame struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Parse decodes and validates an inbound frame. Unknown msg_type values are
// rejected explicitly, not ignored.
func Parse(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	switch msg.MsgType {
	case MsgTypeSubscribe, MsgTypeUnsubscribe:
		return msg, nil
	default:
		return ClientMessage{}, fmt.Errorf("%w: %q", ErrUnknownMsgType, msg.MsgType)
	}
}

// ErrorFrameFor maps a parse error onto the client-facing error frame.
func ErrorFrameFor(err error) ErrorFrame {
	switch {
	case errors.Is(err, ErrUnknownMsgType):
		return ErrorFrame{
			Error:   "Invalid message type",
			Details: "msg_type must be either 'subscribe' or 'unsubscribe'",
		}
	case errors.Is(err, ErrInvalidJSON):
		return ErrorFrame{Error: "Invalid JSON", Details: "Message must be valid JSON"}
	default:
		return ErrorFrame{Error: "Bad request", Details: err.Error()}
	}
}
