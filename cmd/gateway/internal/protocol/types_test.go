package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

func TestParse_ValidCommands(t *testing.T) {
	msg, err := Parse([]byte(`{"msg_type":"subscribe","pairs":["BTC/USD","ETH/USD:MARK"]}`))
	if err != nil {
		t.Fatalf("Parse subscribe: %v", err)
	}
	if msg.MsgType != MsgTypeSubscribe || len(msg.Pairs) != 2 {
		t.Fatalf("unexpected message: %+v", msg)
	}

	msg, err = Parse([]byte(`{"msg_type":"unsubscribe","pairs":[]}`))
	if err != nil {
		t.Fatalf("Parse unsubscribe: %v", err)
	}
	if msg.MsgType != MsgTypeUnsubscribe {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestParse_UnknownMsgType(t *testing.T) {
	for _, raw := range []string{
		`{"msg_type":"SUBSCRIBE","pairs":["BTC/USD"]}`,
		`{"msg_type":"ping"}`,
		`{"pairs":["BTC/USD"]}`,
	} {
		_, err := Parse([]byte(raw))
		if !errors.Is(err, ErrUnknownMsgType) {
			t.Errorf("Parse(%s) err = %v, want ErrUnknownMsgType", raw, err)
		}
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{"msg_type":`))
	if !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("err = %v, want ErrInvalidJSON", err)
	}
}

func TestErrorFrameFor(t *testing.T) {
	frame := ErrorFrameFor(ErrUnknownMsgType)
	if frame.Error != "Invalid message type" {
		t.Fatalf("error = %q", frame.Error)
	}

	frame = ErrorFrameFor(ErrInvalidJSON)
	if frame.Error != "Invalid JSON" || frame.Details != "Message must be valid JSON" {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestPriceUpdate_WireShape(t *testing.T) {
	update := PriceUpdate{
		OraclePrices: []models.PriceTick{{
			Pair:      "BTC/USD",
			Price:     decimal.RequireFromString("64000.123456789"),
			Timestamp: 1700000000123,
			SeqID:     42,
		}},
		Timestamp: time.Now().UnixMilli(),
	}

	data, err := json.Marshal(update)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	// oracle_prices is how clients tell a price push apart from an ack.
	if _, ok := decoded["oracle_prices"]; !ok {
		t.Fatalf("wire frame lacks oracle_prices: %s", data)
	}

	var prices []map[string]any
	if err := json.Unmarshal(decoded["oracle_prices"], &prices); err != nil {
		t.Fatal(err)
	}
	// Decimal prices must not pick up float rounding on the way out.
	if got := prices[0]["price"]; got != "64000.123456789" {
		t.Fatalf("price over the wire = %v", got)
	}
}
