package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"policychat/internal/logger"
	"policychat/internal/model"
	"policychat/internal/service"

	"github.com/gin-gonic/gin"
)

// ChatService answers chat turns
type ChatService interface {
	Chat(ctx context.Context, req model.ChatRequest) model.ChatResponse
	ChatStream(ctx context.Context, req model.StreamRequest, emit service.EventCallback)
}

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	chat ChatService
	log  *logger.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chat: chat,
		log:  log.With("handler", "chat"),
	}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	response := h.chat.Chat(c.Request.Context(), req)
	c.JSON(http.StatusOK, response)
}

// ChatStream handles POST /api/v1/chat/stream - newline-delimited JSON events
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req model.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	// Create flusher for streaming
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	c.Header("Content-Type", "application/x-ndjson; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	h.chat.ChatStream(ctx, req, func(event model.StreamEvent) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeEvent(c.Writer, event); err != nil {
			h.log.Warn("Failed to write stream event", "type", event.Type, "error", err)
			return err
		}
		flusher.Flush()
		return nil
	})
}

// writeEvent writes one event as a single JSON line
func writeEvent(w gin.ResponseWriter, event model.StreamEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	line = append(line, '\n')
	_, err = w.Write(line)
	return err
}
