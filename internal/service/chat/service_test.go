package chat

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cipherlink-backend/internal/domain"
	"cipherlink-backend/internal/service/encryption"
	"cipherlink-backend/pkg/cryptobox"
	apperrors "cipherlink-backend/pkg/errors"
)

func cryptoPair() (*cryptobox.KeyPair, error) {
	return cryptobox.GenerateKeyPair()
}

// Mocks
type MockMembershipStore struct {
	mock.Mock
}

func (m *MockMembershipStore) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMembershipStore) ListMemberIDs(ctx context.Context, roomID int64) ([]int64, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetByIDs(ctx context.Context, userIDs []int64) ([]*domain.User, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) Save(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockMessageStore) ListByRoom(ctx context.Context, roomID int64, limit int, pageState []byte) ([]*domain.Message, []byte, error) {
	args := m.Called(ctx, roomID, limit, pageState)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]*domain.Message), args.Get(1).([]byte), args.Error(2)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) BroadcastToRoom(ctx context.Context, roomID int64, event string, payload any) error {
	args := m.Called(ctx, roomID, event, payload)
	return args.Error(0)
}

func newSender(t *testing.T, id int64) (*SendMessageInput, string) {
	t.Helper()
	pair, err := cryptoPair()
	require.NoError(t, err)
	return &SendMessageInput{
		RoomID:           10,
		SenderID:         id,
		Plaintext:        "hello room",
		SenderPublicKey:  pair.PublicKey,
		SenderPrivateKey: pair.PrivateKey,
	}, pair.PublicKey
}

func newTestService(t *testing.T) (*Service, *MockMembershipStore, *MockUserStore, *MockMessageStore, *MockPublisher) {
	t.Helper()
	memberships := new(MockMembershipStore)
	users := new(MockUserStore)
	messages := new(MockMessageStore)
	publisher := new(MockPublisher)
	encryptor := encryption.NewService(encryption.NewSealPool(2, nil), 3, nil)
	svc := NewService(memberships, users, messages, encryptor, publisher, nil, nil)
	return svc, memberships, users, messages, publisher
}

func TestSendMessageEncryptsForAllMembers(t *testing.T) {
	svc, memberships, users, messages, publisher := newTestService(t)

	input, senderPub := newSender(t, 1)

	memberPair2, err := cryptoPair()
	require.NoError(t, err)
	memberPair3, err := cryptoPair()
	require.NoError(t, err)

	memberships.On("IsMember", mock.Anything, int64(10), int64(1)).Return(true, nil)
	memberships.On("ListMemberIDs", mock.Anything, int64(10)).Return([]int64{1, 2, 3}, nil)
	users.On("GetByIDs", mock.Anything, []int64{1, 2, 3}).Return([]*domain.User{
		{UserID: 1, PublicKey: senderPub},
		{UserID: 2, PublicKey: memberPair2.PublicKey},
		{UserID: 3, PublicKey: memberPair3.PublicKey},
	}, nil)

	var saved *domain.Message
	messages.On("Save", mock.Anything, mock.AnythingOfType("*domain.Message")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*domain.Message) }).
		Return(nil)
	publisher.On("BroadcastToRoom", mock.Anything, int64(10), EventNewMessage, mock.Anything).Return(nil)

	output, err := svc.SendMessage(context.Background(), input)

	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Positive(t, saved.MessageID)
	assert.Equal(t, int64(10), saved.ChatRoomID)
	assert.Equal(t, int64(1), saved.SenderID)
	assert.NotEqual(t, input.Plaintext, saved.Ciphertext)

	// One sealed key per member, sender included
	assert.Len(t, saved.EncryptedKeys, 3)
	for _, id := range []int64{1, 2, 3} {
		assert.Contains(t, saved.EncryptedKeys, strconv.FormatInt(id, 10))
	}

	assert.Equal(t, saved.MessageID, output.Message.MessageID)
	publisher.AssertNumberOfCalls(t, "BroadcastToRoom", 1)
}

func TestSendMessageForbiddenForNonMember(t *testing.T) {
	svc, memberships, users, messages, publisher := newTestService(t)

	input, _ := newSender(t, 1)
	memberships.On("IsMember", mock.Anything, int64(10), int64(1)).Return(false, nil)

	_, err := svc.SendMessage(context.Background(), input)

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
	users.AssertNotCalled(t, "GetByIDs", mock.Anything, mock.Anything)
	messages.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	publisher.AssertNotCalled(t, "BroadcastToRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageRejectsEmptyPlaintext(t *testing.T) {
	svc, memberships, _, _, _ := newTestService(t)

	input, _ := newSender(t, 1)
	input.Plaintext = ""

	_, err := svc.SendMessage(context.Background(), input)

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBadPayload))
	memberships.AssertNotCalled(t, "IsMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageSkipsMembersWithoutKeys(t *testing.T) {
	svc, memberships, users, messages, publisher := newTestService(t)

	input, senderPub := newSender(t, 1)
	memberPair, err := cryptoPair()
	require.NoError(t, err)

	memberships.On("IsMember", mock.Anything, int64(10), int64(1)).Return(true, nil)
	memberships.On("ListMemberIDs", mock.Anything, int64(10)).Return([]int64{1, 2, 3}, nil)
	users.On("GetByIDs", mock.Anything, []int64{1, 2, 3}).Return([]*domain.User{
		{UserID: 1, PublicKey: senderPub},
		{UserID: 2, PublicKey: memberPair.PublicKey},
		{UserID: 3, PublicKey: ""}, // never published a key
	}, nil)

	var saved *domain.Message
	messages.On("Save", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*domain.Message) }).
		Return(nil)
	publisher.On("BroadcastToRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	output, err := svc.SendMessage(context.Background(), input)

	require.NoError(t, err)
	assert.Len(t, saved.EncryptedKeys, 2)
	assert.NotContains(t, saved.EncryptedKeys, "3")

	// The sender is told who the message could not be sealed for
	assert.Equal(t, []int64{3}, output.UnreachableUserIDs)
}

func TestSendMessageReportsNoUnreachableUsersWhenAllHaveKeys(t *testing.T) {
	svc, memberships, users, messages, publisher := newTestService(t)

	input, senderPub := newSender(t, 1)

	memberships.On("IsMember", mock.Anything, int64(10), int64(1)).Return(true, nil)
	memberships.On("ListMemberIDs", mock.Anything, int64(10)).Return([]int64{1}, nil)
	users.On("GetByIDs", mock.Anything, []int64{1}).Return([]*domain.User{
		{UserID: 1, PublicKey: senderPub},
	}, nil)
	messages.On("Save", mock.Anything, mock.Anything).Return(nil)
	publisher.On("BroadcastToRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	output, err := svc.SendMessage(context.Background(), input)

	require.NoError(t, err)
	assert.Empty(t, output.UnreachableUserIDs)
}

func TestSendMessageSaveFailureDoesNotPublish(t *testing.T) {
	svc, memberships, users, messages, publisher := newTestService(t)

	input, senderPub := newSender(t, 1)

	memberships.On("IsMember", mock.Anything, int64(10), int64(1)).Return(true, nil)
	memberships.On("ListMemberIDs", mock.Anything, int64(10)).Return([]int64{1}, nil)
	users.On("GetByIDs", mock.Anything, []int64{1}).Return([]*domain.User{
		{UserID: 1, PublicKey: senderPub},
	}, nil)
	messages.On("Save", mock.Anything, mock.Anything).Return(assert.AnError)

	_, err := svc.SendMessage(context.Background(), input)

	assert.Error(t, err)
	publisher.AssertNotCalled(t, "BroadcastToRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessagePublishFailureStillSucceeds(t *testing.T) {
	svc, memberships, users, messages, publisher := newTestService(t)

	input, senderPub := newSender(t, 1)

	memberships.On("IsMember", mock.Anything, int64(10), int64(1)).Return(true, nil)
	memberships.On("ListMemberIDs", mock.Anything, int64(10)).Return([]int64{1}, nil)
	users.On("GetByIDs", mock.Anything, []int64{1}).Return([]*domain.User{
		{UserID: 1, PublicKey: senderPub},
	}, nil)
	messages.On("Save", mock.Anything, mock.Anything).Return(nil)
	publisher.On("BroadcastToRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(assert.AnError)

	output, err := svc.SendMessage(context.Background(), input)

	require.NoError(t, err)
	assert.NotNil(t, output.Message)
}

func TestGetMessagesPaginates(t *testing.T) {
	svc, memberships, _, messages, _ := newTestService(t)

	now := time.Now().UTC()
	stored := []*domain.Message{
		{MessageID: 2, ChatRoomID: 10, SenderID: 1, Ciphertext: "c2", CreatedAt: now},
		{MessageID: 1, ChatRoomID: 10, SenderID: 2, Ciphertext: "c1", CreatedAt: now.Add(-time.Minute)},
	}

	memberships.On("IsMember", mock.Anything, int64(10), int64(1)).Return(true, nil)
	messages.On("ListByRoom", mock.Anything, int64(10), 20, []byte(nil)).
		Return(stored, []byte("next-cursor"), nil)

	output, err := svc.GetMessages(context.Background(), &GetMessagesInput{RoomID: 10, UserID: 1})

	require.NoError(t, err)
	require.Len(t, output.Messages, 2)
	assert.Equal(t, int64(2), output.Messages[0].MessageID)
	assert.True(t, output.HasMore)
	assert.Equal(t, []byte("next-cursor"), output.NextPageState)
}

func TestGetMessagesForbiddenForNonMember(t *testing.T) {
	svc, memberships, _, messages, _ := newTestService(t)

	memberships.On("IsMember", mock.Anything, int64(10), int64(9)).Return(false, nil)

	_, err := svc.GetMessages(context.Background(), &GetMessagesInput{RoomID: 10, UserID: 9})

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
	messages.AssertNotCalled(t, "ListByRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMessagesClampsLimit(t *testing.T) {
	svc, memberships, _, messages, _ := newTestService(t)

	memberships.On("IsMember", mock.Anything, int64(10), int64(1)).Return(true, nil)
	messages.On("ListByRoom", mock.Anything, int64(10), 100, []byte(nil)).
		Return([]*domain.Message{}, []byte(nil), nil)

	output, err := svc.GetMessages(context.Background(), &GetMessagesInput{
		RoomID: 10,
		UserID: 1,
		Limit:  5000,
	})

	require.NoError(t, err)
	assert.False(t, output.HasMore)
	messages.AssertExpectations(t)
}

func TestMessageIDsAreStrictlyIncreasing(t *testing.T) {
	prev := nextMessageID()
	for i := 0; i < 1000; i++ {
		id := nextMessageID()
		assert.Greater(t, id, prev)
		prev = id
	}
}
