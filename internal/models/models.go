package models

import (
	"time"
)

// Document processing statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Folder is a named container for documents. ParentID is empty for
// folders living at the vault root.
type Folder struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	Name      string    `db:"name" json:"name"`
	ParentID  string    `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Document represents an uploaded file plus everything the processing
// pipeline derives from it. Content, Summary, Tags and Duplicates start
// empty and are overwritten wholesale on every successful pipeline run.
type Document struct {
	ID         string         `db:"id" json:"id"`
	OwnerID    string         `db:"owner_id" json:"owner_id"`
	FolderID   string         `db:"folder_id" json:"folder_id,omitempty"`
	FileName   string         `db:"file_name" json:"file_name"`
	StorageURL string         `db:"storage_url" json:"storage_url"`
	MediaType  string         `db:"media_type" json:"media_type"`
	SizeBytes  int64          `db:"size_bytes" json:"size_bytes"`
	Content    string         `db:"content" json:"-"`
	Summary    string         `db:"summary" json:"summary,omitempty"`
	Tags       []string       `db:"tags" json:"tags"`
	Duplicates []DuplicateRef `json:"duplicates"`
	Status     string         `db:"status" json:"status"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// DuplicateRef is one directed half of a duplicate edge: a peer document
// owned by the same user whose content is a near-duplicate of this one.
type DuplicateRef struct {
	PeerID string  `db:"peer_id" json:"peer_id"`
	Score  float64 `db:"score" json:"score"`
}

// DuplicateEntry is a DuplicateRef joined with peer metadata for listings.
type DuplicateEntry struct {
	PeerID    string    `db:"peer_id" json:"peer_id"`
	Score     float64   `db:"score" json:"score"`
	FileName  string    `db:"file_name" json:"file_name"`
	SizeBytes int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Neighbor is one nearest-neighbor hit from the vector store, ranked by
// cosine similarity in [-1, 1].
type Neighbor struct {
	DocumentID string  `db:"document_id" json:"document_id"`
	Similarity float64 `db:"similarity" json:"similarity"`
}

// ShareLink grants public access to one document via an unguessable token,
// optionally gated by a password and an expiry time.
type ShareLink struct {
	ID           string    `db:"id" json:"id"`
	OwnerID      string    `db:"owner_id" json:"owner_id"`
	DocumentID   string    `db:"document_id" json:"document_id"`
	Token        string    `db:"token" json:"token"`
	PasswordHash string    `db:"password_hash" json:"-"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the link carries an expiry that has passed.
func (l *ShareLink) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && l.ExpiresAt.Before(now)
}

// PasswordProtected reports whether a password must be verified before
// the linked document can be downloaded.
func (l *ShareLink) PasswordProtected() bool {
	return l.PasswordHash != ""
}
