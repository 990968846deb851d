package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docchat/backend/internal/chat"
	"github.com/docchat/backend/internal/ingestion"
	"github.com/docchat/backend/internal/llm"
	"github.com/docchat/backend/internal/middleware/auth"
	"github.com/docchat/backend/pkg/logger"
)

type ChatHandler struct {
	engine *chat.Engine
}

func NewChatHandler(engine *chat.Engine) *ChatHandler {
	return &ChatHandler{engine: engine}
}

func (h *ChatHandler) AskQuestion(c *fiber.Ctx) error {
	userID := auth.UserID(c)
	documentID := c.Params("id")

	var req struct {
		Question string `json:"question"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}

	result, err := h.engine.Ask(c.Context(), userID, documentID, req.Question)
	if err != nil {
		// A completed answer that merely failed to save still goes back
		// to the user; the model call is not wasted.
		if result != nil && errors.Is(err, chat.ErrPersistenceFailed) {
			logger.Error("Answer generated but not persisted", zap.Error(err))
			return c.JSON(fiber.Map{
				"allowed": true,
				"answer":  result.Answer,
				"warning": "The answer could not be saved to your conversation history.",
			})
		}

		logger.Error("Failed to answer question",
			zap.String("document_id", documentID),
			zap.Error(err),
		)

		switch {
		case errors.Is(err, ingestion.ErrDocumentNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		case errors.Is(err, llm.ErrEmbeddingUnavailable):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Embedding service unavailable",
			})
		case errors.Is(err, ingestion.ErrIngestionFailed):
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to index document",
			})
		case errors.Is(err, chat.ErrGenerationFailed):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Failed to generate answer",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to process question",
			})
		}
	}

	if !result.Allowed {
		return c.JSON(fiber.Map{
			"allowed": false,
			"reason":  result.Reason,
		})
	}

	return c.JSON(fiber.Map{
		"allowed": true,
		"answer":  result.Answer,
	})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userID := auth.UserID(c)
	documentID := c.Params("id")

	msgs, err := h.engine.Messages(c.Context(), userID, documentID)
	if err != nil {
		logger.Error("Failed to load messages", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load messages",
		})
	}

	out := make([]fiber.Map, len(msgs))
	for i, m := range msgs {
		out[i] = fiber.Map{
			"id":         m.ID,
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt,
		}
	}

	return c.JSON(fiber.Map{"messages": out})
}
