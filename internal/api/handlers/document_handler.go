package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docchat/backend/internal/documents"
	"github.com/docchat/backend/internal/ingestion"
	"github.com/docchat/backend/internal/middleware/auth"
	"github.com/docchat/backend/internal/quota"
	"github.com/docchat/backend/pkg/logger"
)

type DocumentHandler struct {
	service  *documents.Service
	pipeline *ingestion.Pipeline
}

func NewDocumentHandler(service *documents.Service, pipeline *ingestion.Pipeline) *DocumentHandler {
	return &DocumentHandler{
		service:  service,
		pipeline: pipeline,
	}
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	userID := auth.UserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A file is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}

	doc, err := h.service.Upload(c.Context(), userID, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		logger.Error("Failed to upload document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to upload document",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":         doc.ID,
		"name":       doc.Name,
		"size_bytes": doc.SizeBytes,
		"created_at": doc.CreatedAt,
	})
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	userID := auth.UserID(c)

	docs, err := h.service.List(c.Context(), userID)
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	out := make([]fiber.Map, len(docs))
	for i, doc := range docs {
		out[i] = fiber.Map{
			"id":         doc.ID,
			"name":       doc.Name,
			"size_bytes": doc.SizeBytes,
			"created_at": doc.CreatedAt,
		}
	}

	return c.JSON(fiber.Map{"documents": out})
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	userID := auth.UserID(c)
	documentID := c.Params("id")

	err := h.service.Delete(c.Context(), userID, documentID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}

		logger.Error("Failed to delete document",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document; please retry",
		})
	}

	return c.JSON(fiber.Map{"deleted": true})
}

func (h *DocumentHandler) IndexDocument(c *fiber.Ctx) error {
	documentID := c.Params("id")

	err := h.pipeline.EnsureIndexed(c.Context(), documentID)
	if err != nil {
		if errors.Is(err, ingestion.ErrDocumentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}

		logger.Error("Failed to index document",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to index document",
		})
	}

	return c.JSON(fiber.Map{"indexed": true})
}
