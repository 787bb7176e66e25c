package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/service"
)

func newMessageService(chats *mocks.ChatRepositoryMock, messages *mocks.MessageRepositoryMock, blobs *mocks.BlobStoreMock, dispatcher *mocks.DispatcherMock) *service.MessageService {
	return service.NewMessageService(chats, messages, blobs, dispatcher, zap.NewNop().Sugar())
}

func strPtr(s string) *string { return &s }

func TestSendTextKeepsClientType(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	dispatcher := new(mocks.DispatcherMock)
	svc := newMessageService(chats, messages, new(mocks.BlobStoreMock), dispatcher)

	chats.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5}, nil).Once()
	chats.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	chats.On("ResolveRecipients", mock.Anything, 5, 1).Return([]int{2, 3}, nil).Once()
	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(p repositories.CreateMessageParams) bool {
		return p.ChatID == 5 && p.SenderID == 1 && p.Type == models.TypeText && p.FilePath == nil
	})).Return(models.Message{ID: 10, ChatID: 5, SenderID: 1, Type: models.TypeText}, nil).Once()
	dispatcher.On("Publish", mock.Anything, mock.Anything, []int{2, 3}).Once()

	msg, err := svc.Send(context.Background(), 1, service.SendInput{ChatID: 5, Type: models.TypeText, Body: strPtr("hello")})
	require.NoError(t, err)
	assert.Equal(t, 10, msg.ID)

	chats.AssertExpectations(t)
	messages.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
}

func TestSendFileOverridesClientType(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	blobs := new(mocks.BlobStoreMock)
	dispatcher := new(mocks.DispatcherMock)
	svc := newMessageService(chats, messages, blobs, dispatcher)

	chats.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5}, nil).Once()
	chats.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	chats.On("ResolveRecipients", mock.Anything, 5, 1).Return([]int{2}, nil).Once()
	blobs.On("Store", mock.Anything, []byte("png-bytes"), "image/png").Return("chat_files/a.png", nil).Once()
	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(p repositories.CreateMessageParams) bool {
		return p.Type == models.TypeImage && p.FilePath != nil && *p.FilePath == "chat_files/a.png"
	})).Return(models.Message{ID: 11, ChatID: 5}, nil).Once()
	dispatcher.On("Publish", mock.Anything, mock.Anything, []int{2}).Once()

	// Client claims text; the attachment wins.
	_, err := svc.Send(context.Background(), 1, service.SendInput{
		ChatID: 5,
		Type:   models.TypeText,
		File:   &service.Upload{Data: []byte("png-bytes"), ContentType: "image/png"},
	})
	require.NoError(t, err)

	blobs.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newMessageService(chats, messages, new(mocks.BlobStoreMock), new(mocks.DispatcherMock))

	chats.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5}, nil).Once()
	chats.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()

	_, err := svc.Send(context.Background(), 1, service.SendInput{ChatID: 5, Type: models.TypeText})
	assert.ErrorIs(t, err, service.ErrValidation)
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestSendRejectsUnknownType(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	svc := newMessageService(chats, new(mocks.MessageRepositoryMock), new(mocks.BlobStoreMock), new(mocks.DispatcherMock))

	chats.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5}, nil).Once()
	chats.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()

	_, err := svc.Send(context.Background(), 1, service.SendInput{ChatID: 5, Type: "gif", Body: strPtr("x")})
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestSendNonMemberForbidden(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	svc := newMessageService(chats, new(mocks.MessageRepositoryMock), new(mocks.BlobStoreMock), new(mocks.DispatcherMock))

	chats.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5}, nil).Once()
	chats.On("IsMember", mock.Anything, 5, 9).Return(false, nil).Once()

	_, err := svc.Send(context.Background(), 9, service.SendInput{ChatID: 5, Type: models.TypeText, Body: strPtr("x")})
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestSendChatNotFound(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	svc := newMessageService(chats, new(mocks.MessageRepositoryMock), new(mocks.BlobStoreMock), new(mocks.DispatcherMock))

	chats.On("GetChat", mock.Anything, 404).Return(models.Chat{}, repositories.ErrChatNotFound).Once()

	_, err := svc.Send(context.Background(), 1, service.SendInput{ChatID: 404, Type: models.TypeText, Body: strPtr("x")})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestSendStorageFailureLeavesNoRow(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	blobs := new(mocks.BlobStoreMock)
	svc := newMessageService(chats, messages, blobs, new(mocks.DispatcherMock))

	chats.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5}, nil).Once()
	chats.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	blobs.On("Store", mock.Anything, mock.Anything, "image/png").Return("", assert.AnError).Once()

	_, err := svc.Send(context.Background(), 1, service.SendInput{
		ChatID: 5,
		File:   &service.Upload{Data: []byte("x"), ContentType: "image/png"},
	})
	assert.ErrorIs(t, err, service.ErrStorage)
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestForwardSkipsDeletedSources(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	dispatcher := new(mocks.DispatcherMock)
	svc := newMessageService(chats, messages, new(mocks.BlobStoreMock), dispatcher)

	src := models.Message{ID: 10, ChatID: 1, Type: models.TypeText, Body: strPtr("hi")}
	deleted := models.Message{ID: 11, ChatID: 1, IsDeleted: true}

	messages.On("GetMessages", mock.Anything, []int{10, 11}).Return([]models.Message{src, deleted}, nil).Once()
	chats.On("ResolveRecipients", mock.Anything, 2, 1).Return([]int{7}, nil).Once()
	chats.On("ResolveRecipients", mock.Anything, 3, 1).Return([]int{8}, nil).Once()
	messages.On("CreateMessages", mock.Anything, mock.MatchedBy(func(params []repositories.CreateMessageParams) bool {
		if len(params) != 2 {
			return false
		}
		for _, p := range params {
			if p.ForwardedFrom == nil || *p.ForwardedFrom != 10 {
				return false
			}
		}
		return params[0].ChatID == 2 && params[1].ChatID == 3
	})).Return([]models.Message{{ID: 20, ChatID: 2}, {ID: 21, ChatID: 3}}, nil).Once()
	dispatcher.On("Publish", mock.Anything, mock.Anything, []int{7}).Once()
	dispatcher.On("Publish", mock.Anything, mock.Anything, []int{8}).Once()

	msgs, err := svc.Forward(context.Background(), 1, []int{10, 11}, []int{2, 3})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	messages.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
}

func TestForwardToleratesDuplicateMessageIDs(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	dispatcher := new(mocks.DispatcherMock)
	svc := newMessageService(chats, messages, new(mocks.BlobStoreMock), dispatcher)

	src := models.Message{ID: 10, ChatID: 1, Type: models.TypeText, Body: strPtr("hi")}

	messages.On("GetMessages", mock.Anything, []int{10}).Return([]models.Message{src}, nil).Once()
	chats.On("ResolveRecipients", mock.Anything, 2, 1).Return([]int{7}, nil).Once()
	messages.On("CreateMessages", mock.Anything, mock.MatchedBy(func(params []repositories.CreateMessageParams) bool {
		return len(params) == 1 && params[0].ChatID == 2
	})).Return([]models.Message{{ID: 20, ChatID: 2}}, nil).Once()
	dispatcher.On("Publish", mock.Anything, mock.Anything, []int{7}).Once()

	msgs, err := svc.Forward(context.Background(), 1, []int{10, 10, 10}, []int{2})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	messages.AssertExpectations(t)
}

func TestForwardMissingChatAbortsBatch(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newMessageService(chats, messages, new(mocks.BlobStoreMock), new(mocks.DispatcherMock))

	messages.On("GetMessages", mock.Anything, []int{10}).Return([]models.Message{{ID: 10}}, nil).Once()
	chats.On("ResolveRecipients", mock.Anything, 2, 1).Return(([]int)(nil), repositories.ErrChatNotFound).Once()

	_, err := svc.Forward(context.Background(), 1, []int{10}, []int{2, 3})
	assert.ErrorIs(t, err, service.ErrNotFound)
	messages.AssertNotCalled(t, "CreateMessages", mock.Anything, mock.Anything)
}

func TestForwardUnknownMessage(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	svc := newMessageService(new(mocks.ChatRepositoryMock), messages, new(mocks.BlobStoreMock), new(mocks.DispatcherMock))

	messages.On("GetMessages", mock.Anything, []int{10, 99}).Return([]models.Message{{ID: 10}}, nil).Once()

	_, err := svc.Forward(context.Background(), 1, []int{10, 99}, []int{2})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestShareUploadsOnce(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	blobs := new(mocks.BlobStoreMock)
	dispatcher := new(mocks.DispatcherMock)
	svc := newMessageService(chats, messages, blobs, dispatcher)

	chats.On("ResolveMembers", mock.Anything, 2).Return([]int{1, 4}, nil).Once()
	chats.On("ResolveMembers", mock.Anything, 3).Return([]int{1, 5, 6}, nil).Once()
	blobs.On("Store", mock.Anything, []byte("doc"), "application/pdf").Return("chat_files/d.pdf", nil).Once()
	messages.On("CreateMessages", mock.Anything, mock.MatchedBy(func(params []repositories.CreateMessageParams) bool {
		if len(params) != 2 {
			return false
		}
		for _, p := range params {
			if p.Type != models.TypePDF || p.FilePath == nil || *p.FilePath != "chat_files/d.pdf" {
				return false
			}
		}
		return true
	})).Return([]models.Message{{ID: 30, ChatID: 2}, {ID: 31, ChatID: 3}}, nil).Once()
	dispatcher.On("Publish", mock.Anything, mock.MatchedBy(func(m models.Message) bool { return m.ID == 30 }), []int{4}).Once()
	dispatcher.On("Publish", mock.Anything, mock.MatchedBy(func(m models.Message) bool { return m.ID == 31 }), []int{5, 6}).Once()

	msgs, err := svc.Share(context.Background(), 1, service.ShareInput{
		ChatIDs: []int{2, 3},
		File:    &service.Upload{Data: []byte("doc"), ContentType: "application/pdf"},
	})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	blobs.AssertNumberOfCalls(t, "Store", 1)
	dispatcher.AssertExpectations(t)
}

func TestShareMissingChatAborts(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	blobs := new(mocks.BlobStoreMock)
	svc := newMessageService(chats, messages, blobs, new(mocks.DispatcherMock))

	chats.On("ResolveMembers", mock.Anything, 2).Return(([]int)(nil), repositories.ErrChatNotFound).Once()

	_, err := svc.Share(context.Background(), 1, service.ShareInput{ChatIDs: []int{2}, Body: strPtr("x"), Type: models.TypeText})
	assert.ErrorIs(t, err, service.ErrNotFound)
	blobs.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything)
	messages.AssertNotCalled(t, "CreateMessages", mock.Anything, mock.Anything)
}

func TestDeleteForEveryoneSkipsForeignMessages(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	blobs := new(mocks.BlobStoreMock)
	svc := newMessageService(new(mocks.ChatRepositoryMock), messages, blobs, new(mocks.DispatcherMock))

	mine := models.Message{ID: 10, ChatID: 2, SenderID: 1, FilePath: strPtr("chat_files/a.png")}
	foreign := models.Message{ID: 11, ChatID: 2, SenderID: 9}

	messages.On("GetMessage", mock.Anything, 10).Return(mine, nil).Once()
	messages.On("GetMessage", mock.Anything, 11).Return(foreign, nil).Once()
	blobs.On("Delete", mock.Anything, "chat_files/a.png").Return(nil).Once()
	messages.On("DeleteForEveryone", mock.Anything, 10, 1).Return(true, nil).Once()

	deleted, err := svc.DeleteMessages(context.Background(), 1, []int{10, 11}, service.DeleteForEveryone)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, 10, deleted[0].ID)

	messages.AssertNotCalled(t, "DeleteForEveryone", mock.Anything, 11, mock.Anything)
	messages.AssertExpectations(t)
}

func TestDeleteForEveryoneBlobFailureStillDeletesRow(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	blobs := new(mocks.BlobStoreMock)
	svc := newMessageService(new(mocks.ChatRepositoryMock), messages, blobs, new(mocks.DispatcherMock))

	msg := models.Message{ID: 10, SenderID: 1, FilePath: strPtr("chat_files/gone.png")}
	messages.On("GetMessage", mock.Anything, 10).Return(msg, nil).Once()
	blobs.On("Delete", mock.Anything, "chat_files/gone.png").Return(assert.AnError).Once()
	messages.On("DeleteForEveryone", mock.Anything, 10, 1).Return(true, nil).Once()

	deleted, err := svc.DeleteMessages(context.Background(), 1, []int{10}, service.DeleteForEveryone)
	require.NoError(t, err)
	assert.Len(t, deleted, 1)
}

func TestDeleteForMeHidesPerUser(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	svc := newMessageService(new(mocks.ChatRepositoryMock), messages, new(mocks.BlobStoreMock), new(mocks.DispatcherMock))

	messages.On("GetMessage", mock.Anything, 10).Return(models.Message{ID: 10, SenderID: 9}, nil).Once()
	messages.On("DeleteForMe", mock.Anything, 10, 1).Return(nil).Once()

	deleted, err := svc.DeleteMessages(context.Background(), 1, []int{10}, service.DeleteForMe)
	require.NoError(t, err)
	assert.Empty(t, deleted)
	messages.AssertExpectations(t)
}

func TestDeleteMessagesSkipsMissing(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	svc := newMessageService(new(mocks.ChatRepositoryMock), messages, new(mocks.BlobStoreMock), new(mocks.DispatcherMock))

	messages.On("GetMessage", mock.Anything, 99).Return(models.Message{}, repositories.ErrMessageNotFound).Once()
	messages.On("GetMessage", mock.Anything, 10).Return(models.Message{ID: 10, SenderID: 1}, nil).Once()
	messages.On("DeleteForEveryone", mock.Anything, 10, 1).Return(true, nil).Once()

	deleted, err := svc.DeleteMessages(context.Background(), 1, []int{99, 10}, service.DeleteForEveryone)
	require.NoError(t, err)
	assert.Len(t, deleted, 1)
}

func TestDeleteMessagesRejectsBadMode(t *testing.T) {
	svc := newMessageService(new(mocks.ChatRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.BlobStoreMock), new(mocks.DispatcherMock))

	_, err := svc.DeleteMessages(context.Background(), 1, []int{10}, service.DeleteMode("all"))
	assert.ErrorIs(t, err, service.ErrValidation)
}
