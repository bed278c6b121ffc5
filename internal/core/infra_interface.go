package core

import (
	"context"
	"io"
	"time"

	"github.com/danielokafor/smartvault/internal/models"
)

// DocumentStore is the narrow persistence surface the processing pipeline
// mutates: load a document, persist its derived fields, and maintain the
// duplicate graph.
type DocumentStore interface {
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetDocumentOwner(ctx context.Context, id string) (string, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error

	// SaveDerived overwrites content, summary, tags, status and the
	// document's own duplicates set in one transaction. A document deleted
	// mid-flight is a no-op, not an error.
	SaveDerived(ctx context.Context, doc *models.Document) error

	// AddDuplicateEdge inserts {peerID, score} into id's duplicates set.
	// Idempotent: repeated insertion of the same peer is a no-op, so two
	// workers discovering each other concurrently cannot lose updates.
	AddDuplicateEdge(ctx context.Context, id, peerID string, score float64) error
}

// VectorStore keeps at most one embedding per document and answers
// nearest-neighbor queries ranked by cosine similarity (descending).
type VectorStore interface {
	UpsertVector(ctx context.Context, documentID string, embedding []float32) error
	NearestVectors(ctx context.Context, excludeID string, embedding []float32, k int) ([]models.Neighbor, error)
}

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	DocumentStore
	VectorStore

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateFolder(ctx context.Context, folder *models.Folder) error
	GetFolderByID(ctx context.Context, id string) (*models.Folder, error)
	ListFolders(ctx context.Context, ownerID, parentID string) ([]models.Folder, error)
	CountFolderDocuments(ctx context.Context, folderID string) (int, error)
	CountChildFolders(ctx context.Context, folderID string) (int, error)
	DeleteFolder(ctx context.Context, ownerID, id string) error

	CreateDocument(ctx context.Context, doc *models.Document) error
	ListDocumentsByOwner(ctx context.Context, ownerID string, folderID *string, onlyDuplicates bool) ([]models.Document, error)
	ListStaleDocumentIDs(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteDocument(ctx context.Context, ownerID, id string) (*models.Document, error)
	ListDuplicates(ctx context.Context, documentID string) ([]models.DuplicateEntry, error)
	SearchDocumentsByText(ctx context.Context, ownerID, query string, limit int) ([]models.Document, error)
	GetDocumentsByIDs(ctx context.Context, ownerID string, ids []string) ([]models.Document, error)

	CreateShareLink(ctx context.Context, link *models.ShareLink) error
	GetShareLinkByToken(ctx context.Context, token string) (*models.ShareLink, error)
	GetShareLinkByID(ctx context.Context, id string) (*models.ShareLink, error)
	ListShareLinks(ctx context.Context, documentID string) ([]models.ShareLink, error)
	DeleteShareLink(ctx context.Context, ownerID, id string) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be replaced with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	PresignDownload(ctx context.Context, bucket, key, filename string, ttl time.Duration) (string, error)
}

// BlobFetcher retrieves raw bytes for a stored reference URL. The pipeline
// only ever needs this one operation from object storage.
type BlobFetcher interface {
	FetchBlob(ctx context.Context, reference string) ([]byte, error)
}

// TextExtractor turns raw file bytes into text, choosing an extraction
// strategy from the declared media type.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mediaType string) (string, error)
}

type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
