package database

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DeviceDriver is the database/sql driver used for the WhatsApp device store.
const DeviceDriver = "sqlite3"

var sqliteHeader = []byte("SQLite format 3\x00")

// DeviceDSN returns the connection string for the sqlite file that holds the
// WhatsApp device keys. The file lives inside the auth folder so it is
// mirrored like any other credential file, and rollback journaling keeps the
// database in that single file between transactions.
func DeviceDSN(path string) string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", "DELETE")
	q.Set("_busy_timeout", "5000")
	return "file:" + path + "?" + q.Encode()
}

// IsSQLite reports whether the file at path starts with the sqlite header.
func IsSQLite(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(f, head); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(head, sqliteHeader), nil
}

// SnapshotSQLite returns a consistent copy of the sqlite database at path.
// Other connections may keep writing to it; VACUUM INTO reads inside a single
// transaction, so the copy never mixes pages from before and after a commit.
func SnapshotSQLite(ctx context.Context, path string) ([]byte, error) {
	tmp, err := os.MkdirTemp("", "sqlite-snapshot-*")
	if err != nil {
		return nil, errors.Wrap(err, "create snapshot dir")
	}
	defer os.RemoveAll(tmp)
	target := filepath.Join(tmp, "snapshot.db")

	db, err := gorm.Open(sqlite.Open("file:"+path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "snapshot connection")
	}
	defer sqlDB.Close()

	if err := db.WithContext(ctx).Exec("VACUUM INTO ?", target).Error; err != nil {
		return nil, errors.Wrapf(err, "snapshot %s", path)
	}
	content, err := os.ReadFile(target)
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot")
	}
	return content, nil
}
