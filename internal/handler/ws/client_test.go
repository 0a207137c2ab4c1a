package ws

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cipherlink-backend/internal/service/call"
	"cipherlink-backend/internal/service/receipt"
	"cipherlink-backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitDefault()
	os.Exit(m.Run())
}

type MockReceiptHandler struct {
	mock.Mock
}

func (m *MockReceiptHandler) MarkRead(ctx context.Context, userID int64, ev receipt.ReadEvent) receipt.Ack {
	args := m.Called(ctx, userID, ev)
	return args.Get(0).(receipt.Ack)
}

type MockCallHandler struct {
	mock.Mock
}

func (m *MockCallHandler) Invite(ctx context.Context, userID int64, ev call.InviteEvent) error {
	return m.Called(ctx, userID, ev).Error(0)
}

func (m *MockCallHandler) Answer(ctx context.Context, userID int64, ev call.AnswerEvent) error {
	return m.Called(ctx, userID, ev).Error(0)
}

func (m *MockCallHandler) Candidate(ctx context.Context, userID int64, ev call.CandidateEvent) error {
	return m.Called(ctx, userID, ev).Error(0)
}

func (m *MockCallHandler) Hangup(ctx context.Context, userID int64, ev call.HangupEvent) error {
	return m.Called(ctx, userID, ev).Error(0)
}

func newTestClient(receipts ReceiptHandler, calls CallHandler) *Client {
	return &Client{
		hub:    &Hub{receipts: receipts, calls: calls},
		send:   make(chan []byte, 4),
		userID: 7,
		roomID: 10,
		ctx:    context.Background(),
	}
}

func frameOf(t *testing.T, event, ackID string, data any) Frame {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Frame{Event: event, AckID: ackID, Data: raw}
}

func TestDispatchReadEventAcksRequester(t *testing.T) {
	receipts := new(MockReceiptHandler)
	calls := new(MockCallHandler)
	client := newTestClient(receipts, calls)

	receipts.On("MarkRead", mock.Anything, int64(7), mock.Anything).
		Return(receipt.Ack{OK: true, Ignored: true})

	client.dispatch(frameOf(t, receipt.EventRead, "req-1", map[string]any{
		"roomId":    10,
		"messageId": -5,
	}))

	select {
	case raw := <-client.send:
		var out struct {
			Event string      `json:"event"`
			AckID string      `json:"ackId"`
			Data  receipt.Ack `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))
		assert.Equal(t, EventAck, out.Event)
		assert.Equal(t, "req-1", out.AckID)
		assert.True(t, out.Data.OK)
		assert.True(t, out.Data.Ignored)
	default:
		t.Fatal("expected an ack frame")
	}
}

func TestDispatchReadEventWithoutAckIDStaysSilent(t *testing.T) {
	receipts := new(MockReceiptHandler)
	client := newTestClient(receipts, new(MockCallHandler))

	receipts.On("MarkRead", mock.Anything, int64(7), mock.Anything).
		Return(receipt.Ack{OK: false, Error: "FORBIDDEN"})

	client.dispatch(frameOf(t, receipt.EventRead, "", map[string]any{
		"roomId":    10,
		"messageId": 42,
	}))

	assert.Empty(t, client.send)
	receipts.AssertExpectations(t)
}

func TestDispatchMalformedReadPayloadAcksBadPayload(t *testing.T) {
	receipts := new(MockReceiptHandler)
	client := newTestClient(receipts, new(MockCallHandler))

	client.dispatch(Frame{
		Event: receipt.EventRead,
		AckID: "req-2",
		Data:  json.RawMessage(`"not an object"`),
	})

	select {
	case raw := <-client.send:
		var out struct {
			Data receipt.Ack `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))
		assert.False(t, out.Data.OK)
		assert.Equal(t, "BAD_PAYLOAD", out.Data.Error)
	default:
		t.Fatal("expected a BAD_PAYLOAD ack")
	}

	receipts.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchCallEvents(t *testing.T) {
	calls := new(MockCallHandler)
	client := newTestClient(new(MockReceiptHandler), calls)

	calls.On("Invite", mock.Anything, int64(7),
		call.InviteEvent{CalleeID: 2, ChatID: 10, Mode: "VIDEO", SDP: "offer"}).Return(nil)
	calls.On("Answer", mock.Anything, int64(7),
		call.AnswerEvent{CallID: 500, Accept: true, SDP: "answer"}).Return(nil)
	calls.On("Hangup", mock.Anything, int64(7),
		call.HangupEvent{CallID: 500}).Return(nil)

	client.dispatch(frameOf(t, call.EventInvite, "", map[string]any{
		"calleeId": 2, "chatId": 10, "mode": "VIDEO", "sdp": "offer",
	}))
	client.dispatch(frameOf(t, call.EventAnswer, "", map[string]any{
		"callId": 500, "accept": true, "sdp": "answer",
	}))
	client.dispatch(frameOf(t, call.EventHangup, "", map[string]any{
		"callId": 500,
	}))

	calls.AssertExpectations(t)
}

func TestDispatchMalformedCallPayloadSkipsHandler(t *testing.T) {
	calls := new(MockCallHandler)
	client := newTestClient(new(MockReceiptHandler), calls)

	client.dispatch(Frame{
		Event: call.EventInvite,
		Data:  json.RawMessage(`[1, 2, 3]`),
	})

	calls.AssertNotCalled(t, "Invite", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchUnknownEventIsIgnored(t *testing.T) {
	receipts := new(MockReceiptHandler)
	calls := new(MockCallHandler)
	client := newTestClient(receipts, calls)

	client.dispatch(frameOf(t, "poll:vote", "req-3", map[string]any{"optionId": 1}))

	assert.Empty(t, client.send)
	receipts.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscriptions(t *testing.T) {
	withRoom := &Client{userID: 7, roomID: 10}
	assert.Equal(t, []string{"user:7", "room:10"}, withRoom.subscriptions())

	withoutRoom := &Client{userID: 7}
	assert.Equal(t, []string{"user:7"}, withoutRoom.subscriptions())
}
