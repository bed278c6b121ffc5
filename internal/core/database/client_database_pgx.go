package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/danielokafor/smartvault/internal/config"
	"github.com/danielokafor/smartvault/internal/core"
	"github.com/danielokafor/smartvault/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.Name, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, name, email, password_hash, created_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Folders

func (c *DatabaseClient) CreateFolder(ctx context.Context, folder *models.Folder) error {
	if folder == nil {
		return errors.New("nil folder")
	}
	const q = `
		INSERT INTO folders (id, owner_id, name, parent_id)
		VALUES ($1, $2, $3, NULLIF($4, ''))
	`
	_, err := c.db.ExecContext(ctx, q, folder.ID, folder.OwnerID, folder.Name, folder.ParentID)
	return err
}

func (c *DatabaseClient) GetFolderByID(ctx context.Context, id string) (*models.Folder, error) {
	const q = `
		SELECT id, owner_id, name, COALESCE(parent_id, ''), created_at
		FROM folders WHERE id = $1
	`
	var f models.Folder
	err := c.db.QueryRowContext(ctx, q, id).Scan(&f.ID, &f.OwnerID, &f.Name, &f.ParentID, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *DatabaseClient) ListFolders(ctx context.Context, ownerID, parentID string) ([]models.Folder, error) {
	const q = `
		SELECT id, owner_id, name, COALESCE(parent_id, ''), created_at
		FROM folders
		WHERE owner_id = $1 AND COALESCE(parent_id, '') = $2
		ORDER BY name ASC
	`
	rows, err := c.db.QueryContext(ctx, q, ownerID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Folder
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Name, &f.ParentID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountFolderDocuments(ctx context.Context, folderID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM documents WHERE folder_id = $1`, folderID).Scan(&n)
	return n, err
}

func (c *DatabaseClient) CountChildFolders(ctx context.Context, folderID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM folders WHERE parent_id = $1`, folderID).Scan(&n)
	return n, err
}

func (c *DatabaseClient) DeleteFolder(ctx context.Context, ownerID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM folders WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("folder not found: %s", id)
	}
	return nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, owner_id, folder_id, file_name, storage_url, media_type, size_bytes, status)
		VALUES
			($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.OwnerID, doc.FolderID, doc.FileName, doc.StorageURL, doc.MediaType, doc.SizeBytes, doc.Status)
	return err
}

const documentColumns = `
	id, owner_id, COALESCE(folder_id, ''), file_name, storage_url, media_type,
	size_bytes, content, summary, tags, status, created_at, updated_at`

func scanDocument(s interface{ Scan(...any) error }) (*models.Document, error) {
	var d models.Document
	var tagsRaw []byte
	err := s.Scan(
		&d.ID, &d.OwnerID, &d.FolderID, &d.FileName, &d.StorageURL, &d.MediaType,
		&d.SizeBytes, &d.Content, &d.Summary, &tagsRaw, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &d.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &d, nil
}

// GetDocumentByID loads the document row plus its duplicates set, so a
// pipeline re-run that skips the dedup scan writes the prior set back
// unchanged.
func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT peer_id, score FROM document_duplicates WHERE document_id = $1 ORDER BY score DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ref models.DuplicateRef
		if err := rows.Scan(&ref.PeerID, &ref.Score); err != nil {
			return nil, err
		}
		d.Duplicates = append(d.Duplicates, ref)
	}
	return d, rows.Err()
}

func (c *DatabaseClient) GetDocumentOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := c.db.QueryRowContext(ctx, `SELECT owner_id FROM documents WHERE id = $1`, id).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}

func (c *DatabaseClient) ListDocumentsByOwner(ctx context.Context, ownerID string, folderID *string, onlyDuplicates bool) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE owner_id = $1`
	args := []any{ownerID}
	if folderID != nil {
		args = append(args, *folderID)
		q += fmt.Sprintf(` AND COALESCE(folder_id, '') = $%d`, len(args))
	}
	if onlyDuplicates {
		q += ` AND EXISTS (SELECT 1 FROM document_duplicates dd WHERE dd.document_id = documents.id)`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ListStaleDocumentIDs returns documents still pending or processing whose
// last update predates the cutoff. Used by the worker's recovery sweep to
// redeliver jobs lost to a crash.
func (c *DatabaseClient) ListStaleDocumentIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	const q = `
		SELECT id FROM documents
		WHERE status IN ('pending', 'processing') AND updated_at < $1
		ORDER BY updated_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// SaveDerived persists everything one pipeline run computed: content,
// summary, tags, status, and a wholesale replacement of the document's own
// duplicates set. Peer-side edges are not touched here; see AddDuplicateEdge.
func (c *DatabaseClient) SaveDerived(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	tagsRaw, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	if doc.Tags == nil {
		tagsRaw = []byte("[]")
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		UPDATE documents
		SET content = $2, summary = $3, tags = $4, status = $5, updated_at = now()
		WHERE id = $1
	`
	res, err := tx.ExecContext(ctx, q, doc.ID, doc.Content, doc.Summary, tagsRaw, doc.Status)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Document deleted while the job was in flight; discard the result.
		_ = tx.Rollback()
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_duplicates WHERE document_id = $1`, doc.ID); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, ref := range doc.Duplicates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_duplicates (document_id, peer_id, score) VALUES ($1, $2, $3)
			 ON CONFLICT (document_id, peer_id) DO NOTHING`,
			doc.ID, ref.PeerID, ref.Score,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) AddDuplicateEdge(ctx context.Context, id, peerID string, score float64) error {
	if id == peerID {
		return nil
	}
	const q = `
		INSERT INTO document_duplicates (document_id, peer_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, peer_id) DO NOTHING
	`
	_, err := c.db.ExecContext(ctx, q, id, peerID, score)
	return err
}

func (c *DatabaseClient) ListDuplicates(ctx context.Context, documentID string) ([]models.DuplicateEntry, error) {
	const q = `
		SELECT dd.peer_id, dd.score, d.file_name, d.size_bytes, d.created_at
		FROM document_duplicates dd
		JOIN documents d ON d.id = dd.peer_id
		WHERE dd.document_id = $1
		ORDER BY dd.score DESC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DuplicateEntry
	for rows.Next() {
		var e models.DuplicateEntry
		if err := rows.Scan(&e.PeerID, &e.Score, &e.FileName, &e.SizeBytes, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteDocument removes the row; vectors, duplicate edges in both
// directions, and share links go with it via ON DELETE CASCADE. Returns the
// deleted document so the caller can clean up blob storage.
func (c *DatabaseClient) DeleteDocument(ctx context.Context, ownerID, id string) (*models.Document, error) {
	q := `DELETE FROM documents WHERE id = $1 AND owner_id = $2 RETURNING ` + documentColumns
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *DatabaseClient) SearchDocumentsByText(ctx context.Context, ownerID, query string, limit int) ([]models.Document, error) {
	q := `
		SELECT ` + documentColumns + `,
			ts_rank(
				to_tsvector('english', coalesce(file_name, '') || ' ' || coalesce(summary, '') || ' ' || coalesce(content, '')),
				plainto_tsquery('english', $2)
			) AS rank
		FROM documents
		WHERE owner_id = $1
		  AND to_tsvector('english', coalesce(file_name, '') || ' ' || coalesce(summary, '') || ' ' || coalesce(content, ''))
			@@ plainto_tsquery('english', $2)
		ORDER BY rank DESC
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, ownerID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		var tagsRaw []byte
		var rank float64
		if err := rows.Scan(
			&d.ID, &d.OwnerID, &d.FolderID, &d.FileName, &d.StorageURL, &d.MediaType,
			&d.SizeBytes, &d.Content, &d.Summary, &tagsRaw, &d.Status, &d.CreatedAt, &d.UpdatedAt,
			&rank,
		); err != nil {
			return nil, err
		}
		if len(tagsRaw) > 0 {
			if err := json.Unmarshal(tagsRaw, &d.Tags); err != nil {
				return nil, fmt.Errorf("decode tags: %w", err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) GetDocumentsByIDs(ctx context.Context, ownerID string, ids []string) ([]models.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Document
	for _, id := range ids {
		q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND owner_id = $2`
		d, err := scanDocument(c.db.QueryRowContext(ctx, q, id, ownerID))
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// Vectors

func (c *DatabaseClient) UpsertVector(ctx context.Context, documentID string, embedding []float32) error {
	const q = `
		INSERT INTO document_vectors (document_id, embedding)
		VALUES ($1, $2)
		ON CONFLICT (document_id) DO UPDATE SET embedding = EXCLUDED.embedding
	`
	_, err := c.db.ExecContext(ctx, q, documentID, pgvector.NewVector(embedding))
	return err
}

func (c *DatabaseClient) NearestVectors(ctx context.Context, excludeID string, embedding []float32, k int) ([]models.Neighbor, error) {
	const q = `
		SELECT document_id, 1 - (embedding <=> $2) AS similarity
		FROM document_vectors
		WHERE document_id <> $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, excludeID, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Neighbor
	for rows.Next() {
		var n models.Neighbor
		if err := rows.Scan(&n.DocumentID, &n.Similarity); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Share links

func (c *DatabaseClient) CreateShareLink(ctx context.Context, link *models.ShareLink) error {
	if link == nil {
		return errors.New("nil share link")
	}
	const q = `
		INSERT INTO share_links (id, owner_id, document_id, token, password_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	var expires sql.NullTime
	if !link.ExpiresAt.IsZero() {
		expires = sql.NullTime{Time: link.ExpiresAt, Valid: true}
	}
	_, err := c.db.ExecContext(ctx, q,
		link.ID, link.OwnerID, link.DocumentID, link.Token, link.PasswordHash, expires)
	return err
}

const shareLinkColumns = `id, owner_id, document_id, token, password_hash, expires_at, created_at`

func scanShareLink(s interface{ Scan(...any) error }) (*models.ShareLink, error) {
	var l models.ShareLink
	var expires sql.NullTime
	err := s.Scan(&l.ID, &l.OwnerID, &l.DocumentID, &l.Token, &l.PasswordHash, &expires, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		l.ExpiresAt = expires.Time
	}
	return &l, nil
}

func (c *DatabaseClient) GetShareLinkByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	q := `SELECT ` + shareLinkColumns + ` FROM share_links WHERE token = $1`
	l, err := scanShareLink(c.db.QueryRowContext(ctx, q, token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (c *DatabaseClient) GetShareLinkByID(ctx context.Context, id string) (*models.ShareLink, error) {
	q := `SELECT ` + shareLinkColumns + ` FROM share_links WHERE id = $1`
	l, err := scanShareLink(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (c *DatabaseClient) ListShareLinks(ctx context.Context, documentID string) ([]models.ShareLink, error) {
	q := `SELECT ` + shareLinkColumns + ` FROM share_links WHERE document_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ShareLink
	for rows.Next() {
		l, err := scanShareLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteShareLink(ctx context.Context, ownerID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM share_links WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("share link not found: %s", id)
	}
	return nil
}
