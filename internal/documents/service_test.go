package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/docchat/backend/internal/events"
	"github.com/docchat/backend/internal/quota"
	"github.com/docchat/backend/internal/storage/models"
	"github.com/docchat/backend/internal/vector"
)

type fakeRecordStore struct {
	docs map[string]*models.Document
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{docs: make(map[string]*models.Document)}
}

func (f *fakeRecordStore) InsertDocument(doc *models.Document) error {
	copied := *doc
	f.docs[doc.ID] = &copied
	return nil
}

func (f *fakeRecordStore) GetDocument(id string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeRecordStore) ListDocuments(userID string) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range f.docs {
		if doc.UserID == userID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) DeleteDocument(id string) error {
	delete(f.docs, id)
	return nil
}

type fakeObjects struct {
	blobs map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{blobs: make(map[string][]byte)}
}

func (f *fakeObjects) Save(path string, data []byte) error {
	f.blobs[path] = data
	return nil
}

func (f *fakeObjects) Delete(path string) error {
	delete(f.blobs, path)
	return nil
}

type fakeUploadAuthorizer struct {
	decision quota.Decision
}

func (f *fakeUploadAuthorizer) AuthorizeUpload(ctx context.Context, userID string) (quota.Decision, error) {
	return f.decision, nil
}

func newTestService(decision quota.Decision) (*Service, *fakeRecordStore, *fakeObjects, *vector.MemoryStore) {
	records := newFakeRecordStore()
	objects := newFakeObjects()
	vectors := vector.NewMemoryStore()
	svc := NewService(records, objects, vectors, &fakeUploadAuthorizer{decision: decision}, events.NewHub())
	return svc, records, objects, vectors
}

func TestUploadStoresObjectAndRecord(t *testing.T) {
	svc, records, objects, _ := newTestService(quota.Decision{Allowed: true})

	doc, err := svc.Upload(context.Background(), "alice", "notes.txt", "text/plain", []byte("hello"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	wantPath := fmt.Sprintf("users/alice/files/%s", doc.ID)
	if doc.StoragePath != wantPath {
		t.Errorf("storage path: got %q, want %q", doc.StoragePath, wantPath)
	}
	if doc.SizeBytes != 5 {
		t.Errorf("size: got %d, want 5", doc.SizeBytes)
	}

	if _, ok := objects.blobs[doc.StoragePath]; !ok {
		t.Error("object not saved")
	}
	if stored, _ := records.GetDocument(doc.ID); stored == nil {
		t.Error("record not saved")
	}
}

func TestUploadDeniedByQuota(t *testing.T) {
	svc, records, objects, _ := newTestService(quota.Decision{
		Allowed: false,
		Reason:  "You can only store 2 documents with the free plan. Upgrade to PRO to store up to 20 documents!",
	})

	_, err := svc.Upload(context.Background(), "alice", "extra.txt", "text/plain", []byte("x"))
	if !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if !strings.Contains(err.Error(), "Upgrade to PRO") {
		t.Errorf("denial reason should surface in the error: %v", err)
	}

	if len(records.docs) != 0 || len(objects.blobs) != 0 {
		t.Error("denied upload must not persist anything")
	}
}

func TestUploadPublishesEvent(t *testing.T) {
	records := newFakeRecordStore()
	hub := events.NewHub()
	svc := NewService(records, newFakeObjects(), vector.NewMemoryStore(), &fakeUploadAuthorizer{decision: quota.Decision{Allowed: true}}, hub)

	ch, cancel := hub.Subscribe("alice")
	defer cancel()

	doc, err := svc.Upload(context.Background(), "alice", "notes.txt", "text/plain", []byte("hello"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	select {
	case event := <-ch:
		if event.Type != events.TypeDocumentUploaded || event.DocumentID != doc.ID {
			t.Errorf("unexpected event: %+v", event)
		}
	default:
		t.Fatal("upload event not published")
	}
}

func TestDeleteCascades(t *testing.T) {
	svc, records, objects, vectors := newTestService(quota.Decision{Allowed: true})
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "alice", "notes.txt", "text/plain", []byte("hello"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	err = vectors.Populate(ctx, doc.ID, []vector.Chunk{
		{Index: 0, Text: "hello", Embedding: []float32{1}},
	})
	if err != nil {
		t.Fatalf("populate: %v", err)
	}

	if err := svc.Delete(ctx, "alice", doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if stored, _ := records.GetDocument(doc.ID); stored != nil {
		t.Error("record survived delete")
	}
	if _, ok := objects.blobs[doc.StoragePath]; ok {
		t.Error("object survived delete")
	}
	if exists, _ := vectors.NamespaceExists(ctx, doc.ID); exists {
		t.Error("vector namespace survived delete")
	}
}

func TestDeleteMissingDocumentIsNoOp(t *testing.T) {
	svc, _, _, _ := newTestService(quota.Decision{Allowed: true})

	if err := svc.Delete(context.Background(), "alice", "never-existed"); err != nil {
		t.Fatalf("deleting a missing document should succeed, got %v", err)
	}
}

func TestDeleteForeignDocument(t *testing.T) {
	svc, records, _, _ := newTestService(quota.Decision{Allowed: true})
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "alice", "notes.txt", "text/plain", []byte("hello"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	err = svc.Delete(ctx, "bob", doc.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user's document, got %v", err)
	}
	if stored, _ := records.GetDocument(doc.ID); stored == nil {
		t.Error("foreign delete removed the document")
	}
}
