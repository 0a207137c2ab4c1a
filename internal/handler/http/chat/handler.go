package chat

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cipherlink-backend/internal/domain"
	"cipherlink-backend/internal/service/chat"
	"cipherlink-backend/pkg/response"
)

// Handler handles chat HTTP requests
type Handler struct {
	chatService *chat.Service
}

// NewHandler creates a new chat handler
func NewHandler(chatService *chat.Service) *Handler {
	return &Handler{
		chatService: chatService,
	}
}

// GetMessagesQuery represents query parameters for listing messages
type GetMessagesQuery struct {
	Limit     int    `form:"limit"`
	PageState string `form:"page_state"` // Base64 encoded
}

// SendMessage handles sending a new message
// POST /v1/rooms/:room_id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req domain.MessageCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	senderID, ok := boundUserID(c)
	if !ok {
		return
	}

	output, err := h.chatService.SendMessage(c.Request.Context(), &chat.SendMessageInput{
		RoomID:           roomID,
		SenderID:         senderID,
		Plaintext:        req.Plaintext,
		SenderPublicKey:  req.SenderPublicKey,
		SenderPrivateKey: req.SenderPrivateKey,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"message":              output.Message,
		"unreachable_user_ids": output.UnreachableUserIDs,
	})
}

// GetMessages retrieves room history
// GET /v1/rooms/:room_id/messages?limit=20&page_state=base64
func (h *Handler) GetMessages(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	userID, ok := boundUserID(c)
	if !ok {
		return
	}

	var query GetMessagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	var pageState []byte
	if query.PageState != "" {
		decoded, err := base64.StdEncoding.DecodeString(query.PageState)
		if err != nil {
			response.ValidationError(c, "invalid page state")
			return
		}
		pageState = decoded
	}

	output, err := h.chatService.GetMessages(c.Request.Context(), &chat.GetMessagesInput{
		RoomID:    roomID,
		UserID:    userID,
		Limit:     query.Limit,
		PageState: pageState,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	var nextPageState string
	if len(output.NextPageState) > 0 {
		nextPageState = base64.StdEncoding.EncodeToString(output.NextPageState)
	}

	response.Success(c, http.StatusOK, gin.H{
		"messages":        output.Messages,
		"next_page_state": nextPageState,
		"has_more":        output.HasMore,
	})
}

func roomIDParam(c *gin.Context) (int64, bool) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil || roomID <= 0 {
		response.ValidationError(c, "invalid room id")
		return 0, false
	}
	return roomID, true
}

func boundUserID(c *gin.Context) (int64, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "not authenticated")
		return 0, false
	}
	userID, ok := userIDVal.(int64)
	if !ok || userID <= 0 {
		response.InternalError(c, "invalid user id")
		return 0, false
	}
	return userID, true
}
