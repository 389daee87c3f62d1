package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fxledger/internal/ledger"
)

func testEntry(ok bool) ledger.LogEntry {
	e := ledger.LogEntry{
		ID:        "entry-1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Request: ledger.ExchangeRequest{
			BaseCurrency:     "USD",
			CounterCurrency:  "EUR",
			BaseAccountID:    10,
			CounterAccountID: 20,
			BaseAmount:       decimal.RequireFromString("50"),
		},
		ExchangeRate:  decimal.RequireFromString("0.9"),
		CounterAmount: decimal.RequireFromString("45"),
		OK:            ok,
	}
	if !ok {
		obs := "Not enough funds on counter currency account"
		e.Observation = &obs
	}
	return e
}

func TestNewSettlementEvent(t *testing.T) {
	assert.Equal(t, TypeSettled, NewSettlementEvent(testEntry(true)).Type)

	ev := NewSettlementEvent(testEntry(false))
	assert.Equal(t, TypeFailed, ev.Type)
	assert.True(t, ev.OccurredAt.Equal(testEntry(false).Timestamp))
}

func TestMessage(t *testing.T) {
	msg, err := Message(NewSettlementEvent(testEntry(true)))
	require.NoError(t, err)

	assert.Equal(t, []byte("entry-1"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "exchange.settled", string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "exchange.settled", decoded["type"])
	entry := decoded["entry"].(map[string]any)
	assert.Equal(t, "entry-1", entry["id"])
	assert.Equal(t, true, entry["ok"])
}

func TestRecorder(t *testing.T) {
	fail := errors.New("broker down")
	r := NewRecorder(fail)

	err := r.Publish(context.Background(), NewSettlementEvent(testEntry(true)))
	assert.ErrorIs(t, err, fail)
	assert.Len(t, r.Events(), 1)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), SettlementEvent{}))
	assert.NoError(t, p.Close())
}

func TestKafkaPublisher_Close(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "fx.settlements")
	assert.Equal(t, "fx.settlements", p.writer.Topic)
	assert.NoError(t, p.Close())
}
