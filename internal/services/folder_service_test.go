package services

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielokafor/smartvault/internal/core"
	"github.com/danielokafor/smartvault/internal/models"
)

// folderDB overrides only the methods FolderService touches; anything else
// would panic through the embedded nil interface.
type folderDB struct {
	core.DbClient

	folders   map[string]*models.Folder
	docCount  map[string]int
	kidCount  map[string]int
	createErr error
	deleted   []string
}

func (f *folderDB) CreateFolder(_ context.Context, folder *models.Folder) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.folders[folder.ID] = folder
	return nil
}

func (f *folderDB) GetFolderByID(_ context.Context, id string) (*models.Folder, error) {
	return f.folders[id], nil
}

func (f *folderDB) CountFolderDocuments(_ context.Context, id string) (int, error) {
	return f.docCount[id], nil
}

func (f *folderDB) CountChildFolders(_ context.Context, id string) (int, error) {
	return f.kidCount[id], nil
}

func (f *folderDB) DeleteFolder(_ context.Context, _, id string) error {
	delete(f.folders, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func newFolderDB() *folderDB {
	return &folderDB{
		folders:  map[string]*models.Folder{},
		docCount: map[string]int{},
		kidCount: map[string]int{},
	}
}

func TestFolderCreate(t *testing.T) {
	db := newFolderDB()
	svc := NewFolderService(db)

	folder, err := svc.Create(context.Background(), "owner-1", "Taxes", "")
	require.NoError(t, err)
	assert.Equal(t, "Taxes", folder.Name)
	assert.Equal(t, "owner-1", folder.OwnerID)
	assert.NotEmpty(t, folder.ID)
}

func TestFolderCreate_EmptyName(t *testing.T) {
	svc := NewFolderService(newFolderDB())

	_, err := svc.Create(context.Background(), "owner-1", "", "")
	assert.Error(t, err)
}

func TestFolderCreate_DuplicateName(t *testing.T) {
	db := newFolderDB()
	db.createErr = &pgconn.PgError{Code: "23505"}
	svc := NewFolderService(db)

	_, err := svc.Create(context.Background(), "owner-1", "Taxes", "")
	assert.ErrorIs(t, err, ErrFolderExists)
}

func TestFolderDelete_Guards(t *testing.T) {
	tests := []struct {
		name    string
		docs    int
		kids    int
		wantErr error
	}{
		{name: "empty folder deletes", docs: 0, kids: 0, wantErr: nil},
		{name: "holding documents refused", docs: 2, kids: 0, wantErr: ErrFolderNotEmpty},
		{name: "holding sub-folders refused", docs: 0, kids: 1, wantErr: ErrFolderHasChildren},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newFolderDB()
			db.folders["f1"] = &models.Folder{ID: "f1", OwnerID: "owner-1"}
			db.docCount["f1"] = tt.docs
			db.kidCount["f1"] = tt.kids
			svc := NewFolderService(db)

			err := svc.Delete(context.Background(), "owner-1", "f1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, db.deleted)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"f1"}, db.deleted)
		})
	}
}

func TestFolderDelete_WrongOwner(t *testing.T) {
	db := newFolderDB()
	db.folders["f1"] = &models.Folder{ID: "f1", OwnerID: "owner-1"}
	svc := NewFolderService(db)

	err := svc.Delete(context.Background(), "owner-2", "f1")
	assert.ErrorIs(t, err, ErrFolderNotFound)
	assert.Contains(t, db.folders, "f1")
}

func TestFolderDelete_Missing(t *testing.T) {
	svc := NewFolderService(newFolderDB())

	err := svc.Delete(context.Background(), "owner-1", "nope")
	assert.ErrorIs(t, err, ErrFolderNotFound)
}
