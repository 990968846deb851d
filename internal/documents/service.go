// Package documents owns the document lifecycle: upload into object
// storage plus the record store, listing, and the three-way cascade delete.
package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docchat/backend/internal/events"
	"github.com/docchat/backend/internal/quota"
	"github.com/docchat/backend/internal/storage/models"
	"github.com/docchat/backend/internal/vector"
	"github.com/docchat/backend/pkg/logger"
)

var ErrNotFound = errors.New("document not found")

type RecordStore interface {
	InsertDocument(doc *models.Document) error
	GetDocument(id string) (*models.Document, error)
	ListDocuments(userID string) ([]models.Document, error)
	DeleteDocument(id string) error
}

type ObjectStore interface {
	Save(path string, data []byte) error
	Delete(path string) error
}

type Authorizer interface {
	AuthorizeUpload(ctx context.Context, userID string) (quota.Decision, error)
}

type Service struct {
	db      RecordStore
	objects ObjectStore
	vectors vector.Store
	quota   Authorizer
	hub     *events.Hub
}

func NewService(db RecordStore, objects ObjectStore, vectors vector.Store, authorizer Authorizer, hub *events.Hub) *Service {
	return &Service{
		db:      db,
		objects: objects,
		vectors: vectors,
		quota:   authorizer,
		hub:     hub,
	}
}

func (s *Service) Upload(ctx context.Context, userID, name, contentType string, data []byte) (*models.Document, error) {
	decision, err := s.quota.AuthorizeUpload(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", quota.ErrQuotaExceeded, decision.Reason)
	}

	doc := &models.Document{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		CreatedAt:   time.Now(),
	}
	doc.StoragePath = fmt.Sprintf("users/%s/files/%s", userID, doc.ID)

	if err := s.objects.Save(doc.StoragePath, data); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	if err := s.db.InsertDocument(doc); err != nil {
		return nil, fmt.Errorf("failed to save document record: %w", err)
	}

	if s.hub != nil {
		s.hub.Publish(events.Event{
			Type:       events.TypeDocumentUploaded,
			UserID:     userID,
			DocumentID: doc.ID,
		})
	}

	logger.Info("Document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("user_id", userID),
		zap.Int64("size_bytes", doc.SizeBytes),
	)

	return doc, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocuments(userID)
}

// Delete removes the record, the stored object, and the vector namespace
// together. Any failure surfaces so the operator can retry; no partial
// state is papered over. Deleting an already-deleted document is a no-op.
func (s *Service) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := s.db.GetDocument(documentID)
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}
	if doc == nil {
		return nil
	}
	if doc.UserID != userID {
		return fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}

	if err := s.db.DeleteDocument(documentID); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	if err := s.objects.Delete(doc.StoragePath); err != nil {
		return fmt.Errorf("failed to delete stored object: %w", err)
	}

	if err := s.vectors.DeleteNamespace(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete vector namespace: %w", err)
	}

	if s.hub != nil {
		s.hub.Publish(events.Event{
			Type:       events.TypeDocumentDeleted,
			UserID:     userID,
			DocumentID: documentID,
		})
	}

	logger.Info("Document deleted",
		zap.String("document_id", documentID),
		zap.String("user_id", userID),
	)

	return nil
}
