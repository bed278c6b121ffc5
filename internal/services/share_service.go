package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/danielokafor/smartvault/internal/core"
	"github.com/danielokafor/smartvault/internal/models"
	objectclient "github.com/danielokafor/smartvault/internal/core/object-client"
)

var (
	ErrShareLinkNotFound     = errors.New("share link not found or expired")
	ErrShareLinkNoPassword   = errors.New("this link is not password protected")
	ErrSharePasswordRequired = errors.New("a password is required to download this file")
	ErrSharePasswordInvalid  = errors.New("invalid password")
)

const downloadTokenTTL = 15 * time.Minute

// ShareInfo is the public view of a shared file.
type ShareInfo struct {
	FileName          string `json:"file_name"`
	SizeBytes         int64  `json:"size_bytes"`
	MediaType         string `json:"media_type"`
	PasswordProtected bool   `json:"password_protected"`
}

type ShareService struct {
	db        core.DbClient
	storage   core.ObjectClient
	jwtSecret []byte
}

func NewShareService(db core.DbClient, storage core.ObjectClient, jwtSecret string) *ShareService {
	return &ShareService{db: db, storage: storage, jwtSecret: []byte(jwtSecret)}
}

// Create issues a share link for one of the owner's documents, optionally
// expiring after a duration like "7d" or "12h" and optionally gated by a
// password.
func (s *ShareService) Create(ctx context.Context, ownerID, documentID, expiresIn, password string) (*models.ShareLink, error) {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.OwnerID != ownerID {
		return nil, ErrDocumentNotFound
	}

	var expiresAt time.Time
	if expiresIn != "" {
		d, err := parseExpiry(expiresIn)
		if err != nil {
			return nil, err
		}
		expiresAt = time.Now().Add(d)
	}

	var passwordHash string
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		passwordHash = string(hash)
	}

	link := &models.ShareLink{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		DocumentID:   documentID,
		Token:        newShareToken(),
		PasswordHash: passwordHash,
		ExpiresAt:    expiresAt,
	}
	if err := s.db.CreateShareLink(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (s *ShareService) List(ctx context.Context, ownerID, documentID string) ([]models.ShareLink, error) {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.OwnerID != ownerID {
		return nil, ErrDocumentNotFound
	}
	return s.db.ListShareLinks(ctx, documentID)
}

func (s *ShareService) Revoke(ctx context.Context, ownerID, linkID string) error {
	link, err := s.db.GetShareLinkByID(ctx, linkID)
	if err != nil {
		return err
	}
	if link == nil || link.OwnerID != ownerID {
		return ErrShareLinkNotFound
	}
	return s.db.DeleteShareLink(ctx, ownerID, linkID)
}

// Info resolves a token to the public metadata of the shared file.
func (s *ShareService) Info(ctx context.Context, token string) (*ShareInfo, error) {
	link, doc, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return &ShareInfo{
		FileName:          doc.FileName,
		SizeBytes:         doc.SizeBytes,
		MediaType:         doc.MediaType,
		PasswordProtected: link.PasswordProtected(),
	}, nil
}

// Verify checks the password of a gated link and issues a short-lived
// download token granting access.
func (s *ShareService) Verify(ctx context.Context, token, password string) (string, error) {
	link, _, err := s.resolve(ctx, token)
	if err != nil {
		return "", err
	}
	if !link.PasswordProtected() {
		return "", ErrShareLinkNoPassword
	}
	if bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(password)) != nil {
		return "", ErrSharePasswordInvalid
	}
	return s.issueDownloadToken(link.ID)
}

func (s *ShareService) issueDownloadToken(linkID string) (string, error) {
	claims := jwt.MapClaims{
		"link_id": linkID,
		"exp":     time.Now().Add(downloadTokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// Download resolves a token to a presigned blob URL. Password-gated links
// require a download token previously issued by Verify.
func (s *ShareService) Download(ctx context.Context, token, downloadToken string) (string, error) {
	link, doc, err := s.resolve(ctx, token)
	if err != nil {
		return "", err
	}
	if link.PasswordProtected() {
		if downloadToken == "" {
			return "", ErrSharePasswordRequired
		}
		if err := s.checkDownloadToken(downloadToken, link.ID); err != nil {
			return "", err
		}
	}

	bucket, key := objectclient.ParseObjectURL(doc.StorageURL)
	return s.storage.PresignDownload(ctx, bucket, key, doc.FileName, downloadTokenTTL)
}

func (s *ShareService) resolve(ctx context.Context, token string) (*models.ShareLink, *models.Document, error) {
	link, err := s.db.GetShareLinkByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if link == nil || link.Expired(time.Now()) {
		return nil, nil, ErrShareLinkNotFound
	}
	doc, err := s.db.GetDocumentByID(ctx, link.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, ErrShareLinkNotFound
	}
	return link, doc, nil
}

func (s *ShareService) checkDownloadToken(tokenStr, linkID string) error {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return ErrSharePasswordRequired
	}
	if id, ok := claims["link_id"].(string); !ok || id != linkID {
		return ErrSharePasswordRequired
	}
	return nil
}

func newShareToken() string {
	b := make([]byte, 20)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// parseExpiry converts durations like "7d" or "12h" into a time.Duration.
func parseExpiry(expiresIn string) (time.Duration, error) {
	expiresIn = strings.TrimSpace(expiresIn)
	if len(expiresIn) < 2 {
		return 0, fmt.Errorf("invalid expiry %q", expiresIn)
	}
	n, err := strconv.Atoi(expiresIn[:len(expiresIn)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid expiry %q", expiresIn)
	}
	switch expiresIn[len(expiresIn)-1] {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid expiry unit in %q (want d or h)", expiresIn)
	}
}
