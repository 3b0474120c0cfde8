package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-bot/internal/database"
	"whatsapp-bot/internal/models"
)

// sqlite writes these next to the device database while a transaction is open.
// They are never meaningful on their own and restoring a stale one corrupts the
// database, so they are not mirrored.
var transientSuffixes = []string{"-journal", "-wal", "-shm"}

// CredentialStore mirrors the files of the auth folder into the sessions table.
// The folder is the working copy used by the connection; the table survives
// container restarts.
type CredentialStore struct {
	db  *gorm.DB
	dir string
}

func NewCredentialStore(db *gorm.DB, dir string) *CredentialStore {
	return &CredentialStore{db: db, dir: dir}
}

func (s *CredentialStore) Dir() string {
	return s.dir
}

// Restore writes every stored row into the auth folder, creating the folder
// when it does not exist. A file present on disk with no matching row is left
// alone. A failed write is logged and the remaining rows are still restored;
// the first error is returned.
func (s *CredentialStore) Restore(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return errors.Wrap(err, "create auth folder")
	}

	var files []models.SessionFile
	if err := s.db.WithContext(ctx).Find(&files).Error; err != nil {
		return errors.Wrap(err, "load session files")
	}

	var firstErr error
	restored := 0
	for _, f := range files {
		name, ok := safeName(f.Filename)
		if !ok {
			zap.L().Warn("skipping session row with unsafe filename", zap.String("filename", f.Filename))
			continue
		}
		if err := os.WriteFile(filepath.Join(s.dir, name), f.Content, 0o600); err != nil {
			zap.L().Error("failed to restore credential file", zap.String("filename", name), zap.Error(err))
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "restore %s", name)
			}
			continue
		}
		restored++
	}
	zap.L().Debug("credentials restored", zap.Int("files", restored))
	return firstErr
}

// Persist upserts every regular file in the auth folder. A missing folder
// means there is nothing to save. Like Restore it is best effort per file.
func (s *CredentialStore) Persist(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read auth folder")
	}

	var firstErr error
	saved := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || isTransient(entry.Name()) {
			continue
		}
		if err := s.persistFile(ctx, entry.Name()); err != nil {
			zap.L().Error("failed to persist credential file", zap.String("filename", entry.Name()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		saved++
	}
	zap.L().Debug("credentials persisted", zap.Int("files", saved))
	return firstErr
}

func (s *CredentialStore) persistFile(ctx context.Context, name string) error {
	content, err := readConsistent(ctx, filepath.Join(s.dir, name))
	if err != nil {
		return errors.Wrapf(err, "read %s", name)
	}
	row := models.SessionFile{Filename: name, Content: content}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "filename"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return errors.Wrapf(err, "save %s", name)
	}
	return nil
}

// Clear removes every stored credential row.
func (s *CredentialStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.SessionFile{}).Error
	if err != nil {
		return errors.Wrap(err, "clear session files")
	}
	return nil
}

// List returns the stored rows ordered by filename.
func (s *CredentialStore) List(ctx context.Context) ([]models.SessionFile, error) {
	var files []models.SessionFile
	if err := s.db.WithContext(ctx).Order("filename").Find(&files).Error; err != nil {
		return nil, errors.Wrap(err, "list session files")
	}
	return files, nil
}

// readConsistent reads a credential file. sqlite databases are still being
// written by the live connection, so they are copied through sqlite itself.
func readConsistent(ctx context.Context, path string) ([]byte, error) {
	isDB, err := database.IsSQLite(path)
	if err != nil {
		return nil, err
	}
	if isDB {
		return database.SnapshotSQLite(ctx, path)
	}
	return os.ReadFile(path)
}

func safeName(name string) (string, bool) {
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." || base == "" {
		return "", false
	}
	return base, true
}

func isTransient(name string) bool {
	for _, suffix := range transientSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
