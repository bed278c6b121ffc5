package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/danielokafor/smartvault/internal/core"
	"github.com/danielokafor/smartvault/internal/models"
)

var (
	ErrFolderNotFound  = errors.New("folder not found")
	ErrFolderExists    = errors.New("a folder with this name already exists here")
	ErrFolderNotEmpty  = errors.New("cannot delete a folder that is not empty")
	ErrFolderHasChildren = errors.New("cannot delete a folder with sub-folders")
)

type FolderService struct {
	db core.DbClient
}

func NewFolderService(db core.DbClient) *FolderService {
	return &FolderService{db: db}
}

func (s *FolderService) Create(ctx context.Context, ownerID, name, parentID string) (*models.Folder, error) {
	if name == "" {
		return nil, errors.New("folder name is required")
	}
	folder := &models.Folder{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		Name:     name,
		ParentID: parentID,
	}
	if err := s.db.CreateFolder(ctx, folder); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrFolderExists
		}
		return nil, err
	}
	return folder, nil
}

// List returns the owner's folders directly under parentID; empty parentID
// means the vault root.
func (s *FolderService) List(ctx context.Context, ownerID, parentID string) ([]models.Folder, error) {
	return s.db.ListFolders(ctx, ownerID, parentID)
}

// Delete removes an empty folder. Folders holding documents or sub-folders
// are refused.
func (s *FolderService) Delete(ctx context.Context, ownerID, id string) error {
	folder, err := s.db.GetFolderByID(ctx, id)
	if err != nil {
		return err
	}
	if folder == nil || folder.OwnerID != ownerID {
		return ErrFolderNotFound
	}

	docs, err := s.db.CountFolderDocuments(ctx, id)
	if err != nil {
		return err
	}
	if docs > 0 {
		return ErrFolderNotEmpty
	}
	children, err := s.db.CountChildFolders(ctx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return ErrFolderHasChildren
	}

	return s.db.DeleteFolder(ctx, ownerID, id)
}
