package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/danielokafor/smartvault/internal/core"
	"github.com/danielokafor/smartvault/internal/models"
	objectclient "github.com/danielokafor/smartvault/internal/core/object-client"
)

var ErrDocumentNotFound = errors.New("document not found")

// Enqueuer schedules a document for background processing.
type Enqueuer interface {
	Enqueue(docID string)
}

type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	queue   Enqueuer
	bucket  string
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, queue Enqueuer, bucket string) *DocumentService {
	return &DocumentService{db: db, storage: storage, queue: queue, bucket: bucket}
}

// Upload stores the file bytes, creates the pending document row, and
// enqueues the processing job.
func (s *DocumentService) Upload(ctx context.Context, ownerID, folderID, filename, mediaType string, size int64, data io.Reader) (*models.Document, error) {
	docID := uuid.NewString()
	key := s.objectKey(ownerID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}

	doc := &models.Document{
		ID:         docID,
		OwnerID:    ownerID,
		FolderID:   folderID,
		FileName:   filename,
		StorageURL: url,
		MediaType:  mediaType,
		SizeBytes:  size,
		Status:     models.StatusPending,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		// Best effort: don't leave an orphaned blob behind.
		if delErr := s.storage.DeleteFile(ctx, s.bucket, key); delErr != nil {
			log.Printf("documents: orphan blob cleanup %s: %v", key, delErr)
		}
		return nil, err
	}

	s.queue.Enqueue(doc.ID)
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, ownerID, id string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.OwnerID != ownerID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// List returns the owner's documents. folderID filters by folder when
// non-nil (empty string meaning the vault root); onlyDuplicates keeps only
// documents with a non-empty duplicates set.
func (s *DocumentService) List(ctx context.Context, ownerID string, folderID *string, onlyDuplicates bool) ([]models.Document, error) {
	return s.db.ListDocumentsByOwner(ctx, ownerID, folderID, onlyDuplicates)
}

func (s *DocumentService) ListDuplicates(ctx context.Context, ownerID, id string) ([]models.DuplicateEntry, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.db.ListDuplicates(ctx, id)
}

// Delete removes the document row (vectors, duplicate edges and share
// links cascade) and then the blob.
func (s *DocumentService) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := s.db.DeleteDocument(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	bucket, key := objectclient.ParseObjectURL(doc.StorageURL)
	if err := s.storage.DeleteFile(ctx, bucket, key); err != nil {
		log.Printf("documents: blob delete %s: %v", key, err)
	}
	return nil
}

// DeleteBatch removes several documents, deleting blobs concurrently.
func (s *DocumentService) DeleteBatch(ctx context.Context, ownerID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, errors.New("no document ids given")
	}

	var deleted []models.Document
	for _, id := range ids {
		doc, err := s.db.DeleteDocument(ctx, ownerID, id)
		if err != nil {
			return len(deleted), err
		}
		if doc != nil {
			deleted = append(deleted, *doc)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, doc := range deleted {
		doc := doc
		g.Go(func() error {
			bucket, key := objectclient.ParseObjectURL(doc.StorageURL)
			if err := s.storage.DeleteFile(gctx, bucket, key); err != nil {
				log.Printf("documents: blob delete %s: %v", key, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(deleted), nil
}

// DownloadURL returns a short-lived presigned URL for the document blob.
func (s *DocumentService) DownloadURL(ctx context.Context, ownerID, id string, attachment bool) (string, error) {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	return s.presign(ctx, doc, attachment)
}

func (s *DocumentService) presign(ctx context.Context, doc *models.Document, attachment bool) (string, error) {
	bucket, key := objectclient.ParseObjectURL(doc.StorageURL)
	filename := ""
	if attachment {
		filename = doc.FileName
	}
	return s.storage.PresignDownload(ctx, bucket, key, filename, 15*time.Minute)
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(ownerID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", ownerID, "documents", docID, filename)
}
