package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/brainyx/internal/models"
)

// MockProducer captures published messages.
type MockProducer struct {
	sarama.SyncProducer
	messages []*sarama.ProducerMessage
	err      error
}

func (m *MockProducer) SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error) {
	if m.err != nil {
		return 0, 0, m.err
	}
	m.messages = append(m.messages, msg)
	return 0, int64(len(m.messages)), nil
}

type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) SaveFeedback(ctx context.Context, rec models.Feedback) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockRecordStore) SaveInteraction(ctx context.Context, rec models.Interaction) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockRecordStore) SaveTransaction(ctx context.Context, rec models.Transaction) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockRecordStore) SaveUsage(ctx context.Context, rec models.Usage) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockRecordStore) MarkCheckoutApplied(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	args := m.Called(ctx, sessionID, at)
	return args.Bool(0), args.Error(1)
}

var testTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestRecorderDirectWithoutProducer(t *testing.T) {
	store := &MockRecordStore{}
	rec := models.Usage{ID: "us-1", UserID: "u-1", Source: models.UsageSourceChat, ConversationID: "c-1", Credits: 1, Timestamp: testTime}
	store.On("SaveUsage", mock.Anything, rec).Return(nil)

	r := NewRecorder(store, nil, "brainyx-audit")
	require.NoError(t, r.Usage(context.Background(), rec))
	store.AssertExpectations(t)
}

func TestRecorderPublishes(t *testing.T) {
	store := &MockRecordStore{}
	producer := &MockProducer{}
	r := NewRecorder(store, producer, "brainyx-audit")

	rec := models.Feedback{ID: "f-1", UserID: "u-1", MessageID: "m-1", FeedbackType: models.FeedbackPositive, Timestamp: testTime}
	require.NoError(t, r.Feedback(context.Background(), rec))

	require.Len(t, producer.messages, 1)
	msg := producer.messages[0]
	assert.Equal(t, "brainyx-audit", msg.Topic)
	key, err := msg.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "u-1", string(key))

	value, err := msg.Value.Encode()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(value, &ev))
	assert.Equal(t, models.RecordFeedback, ev.Kind)

	var decoded models.Feedback
	require.NoError(t, json.Unmarshal(ev.Record, &decoded))
	assert.Equal(t, rec, decoded)

	store.AssertNotCalled(t, "SaveFeedback", mock.Anything, mock.Anything)
}

func TestRecorderFallsBackWhenPublishFails(t *testing.T) {
	store := &MockRecordStore{}
	producer := &MockProducer{err: errors.New("broker down")}
	rec := models.Transaction{ID: "t-1", UserID: "u-1", PlanID: "estandar", Amount: 400, Credits: 100000, Source: models.TransactionSourcePurchase, Timestamp: testTime}
	store.On("SaveTransaction", mock.Anything, rec).Return(nil)

	r := NewRecorder(store, producer, "brainyx-audit")
	require.NoError(t, r.Transaction(context.Background(), rec))
	store.AssertExpectations(t)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	interaction := models.Interaction{ID: "i-1", UserID: "u-1", ConversationID: "c-1", UserMessage: "hola", AIResponse: "¡Hola!", SystemPrompt: "p", Timestamp: testTime}
	payload, err := json.Marshal(interaction)
	require.NoError(t, err)

	store := &MockRecordStore{}
	store.On("SaveInteraction", mock.Anything, interaction).Return(nil)
	require.NoError(t, Apply(ctx, store, Event{Kind: models.RecordInteraction, Record: payload}))
	store.AssertExpectations(t)

	assert.Error(t, Apply(ctx, store, Event{Kind: "bogus", Record: payload}))
	assert.Error(t, Apply(ctx, store, Event{Kind: models.RecordUsage, Record: json.RawMessage(`[1,2]`)}))
}
