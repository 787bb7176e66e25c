package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/service"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/chats", handler.ListChats)
	r.POST("/chats/open", handler.OpenChat)
	r.POST("/chats/group", handler.CreateGroup)
	r.POST("/chats/delete", handler.DeleteChats)
	r.GET("/chats/:chat_id/messages", handler.ListMessages)
	r.POST("/chats/:chat_id/read", handler.MarkRead)
	return r
}

func newChatHandler(chats *mocks.ChatRepositoryMock, messages *mocks.MessageRepositoryMock, users *mocks.UserRepositoryMock) *ChatHandler {
	delivery := service.NewDeliveryService(chats, messages, zap.NewNop().Sugar())
	return NewChatHandler(chats, messages, users, delivery, nil)
}

func TestListChatsSuccess(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	handler := newChatHandler(chats, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock))
	router := setupChatRouter(handler)

	chats.On("ListChatSummaries", mock.Anything, 1).Return([]models.ChatSummary{{Chat: models.Chat{ID: 3}}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	chats.AssertExpectations(t)
}

func TestListChatsRepoError(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	handler := newChatHandler(chats, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock))
	router := setupChatRouter(handler)

	chats.On("ListChatSummaries", mock.Anything, 1).Return(([]models.ChatSummary)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	chats.AssertExpectations(t)
}

func TestOpenChatSuccess(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := newChatHandler(chats, new(mocks.MessageRepositoryMock), users)
	router := setupChatRouter(handler)

	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Name: "bob"}, nil).Once()
	chats.On("OpenPrivateChat", mock.Anything, 1, 2).Return(models.Chat{ID: 10}, nil).Once()
	users.On("BulkUsers", mock.Anything, []int{1, 2}).Return([]models.User{{ID: 1}, {ID: 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/open", bytes.NewBufferString(`{"user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	chats.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestOpenChatWithSelfRejected(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	handler := newChatHandler(chats, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock))
	router := setupChatRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/chats/open", bytes.NewBufferString(`{"user_id":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	chats.AssertNotCalled(t, "OpenPrivateChat", mock.Anything, mock.Anything, mock.Anything)
}

func TestOpenChatUnknownUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := newChatHandler(new(mocks.ChatRepositoryMock), new(mocks.MessageRepositoryMock), users)
	router := setupChatRouter(handler)

	users.On("GetUser", mock.Anything, 42).Return(models.User{}, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/open", bytes.NewBufferString(`{"user_id":42}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateGroupSuccess(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := newChatHandler(chats, new(mocks.MessageRepositoryMock), users)
	router := setupChatRouter(handler)

	users.On("BulkUsers", mock.Anything, []int{2, 3}).Return([]models.User{{ID: 2}, {ID: 3}}, nil).Once()
	chats.On("CreateGroupChat", mock.Anything, 1, "team", []int{2, 3}).Return(models.Chat{ID: 20, IsGroup: true}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/group", bytes.NewBufferString(`{"name":"team","users":[2,3]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	chats.AssertExpectations(t)
}

func TestCreateGroupUnknownMember(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := newChatHandler(chats, new(mocks.MessageRepositoryMock), users)
	router := setupChatRouter(handler)

	users.On("BulkUsers", mock.Anything, []int{2, 99}).Return([]models.User{{ID: 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/group", bytes.NewBufferString(`{"name":"team","users":[2,99]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	chats.AssertNotCalled(t, "CreateGroupChat", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListMessagesNonMemberForbidden(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newChatHandler(chats, messages, new(mocks.UserRepositoryMock))
	router := setupChatRouter(handler)

	chats.On("IsMember", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messages.AssertNotCalled(t, "ListChatMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListMessagesSuccess(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := newChatHandler(chats, messages, users)
	router := setupChatRouter(handler)

	chats.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messages.On("ListChatMessages", mock.Anything, 5, 1, 10, 100).Return([]models.Message{{ID: 99, ChatID: 5, SenderID: 2}}, nil).Once()
	users.On("BulkUsers", mock.Anything, []int{2}).Return([]models.User{{ID: 2, Name: "bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages?limit=10&before_id=100", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messages.AssertExpectations(t)
}

func TestMarkReadUnknownChat(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	handler := newChatHandler(chats, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock))
	router := setupChatRouter(handler)

	chats.On("MarkRead", mock.Anything, 404, 1).Return(repositories.ErrChatNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/404/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteChatsSuccess(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	handler := newChatHandler(chats, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock))
	router := setupChatRouter(handler)

	chats.On("DeleteChats", mock.Anything, []int{4, 5}).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/delete", bytes.NewBufferString(`{"chat_ids":[4,5]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	chats.AssertExpectations(t)
}
