package database

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"whatsapp-bot/internal/config"
	"whatsapp-bot/internal/models"
)

func TestInitGormRejectsUnknownDriver(t *testing.T) {
	_, err := InitGorm(&config.Config{DBDriver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	// errors carry a stack trace naming where they were raised
	if !strings.Contains(fmt.Sprintf("%+v", err), "dialectorFor") {
		t.Errorf("expected stack trace in %+v", err)
	}
}

func TestInitGormRequiresPostgresDSN(t *testing.T) {
	_, err := InitGorm(&config.Config{DBDriver: "postgres"})
	if err == nil {
		t.Fatal("expected error when DB_DSN is empty")
	}
}

func TestInitGormSQLiteMigrates(t *testing.T) {
	db, err := InitGorm(&config.Config{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "session.db")})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !db.Migrator().HasTable("sessions") {
		t.Error("expected sessions table")
	}
	if !db.Migrator().HasTable("settings") {
		t.Error("expected settings table")
	}
}

func TestCopyTables(t *testing.T) {
	dir := t.TempDir()
	src, err := OpenSQLite(filepath.Join(dir, "src.db"))
	if err != nil {
		t.Fatal(err)
	}
	dst, err := OpenSQLite(filepath.Join(dir, "dst.db"))
	if err != nil {
		t.Fatal(err)
	}

	src.Create(&models.SessionFile{Filename: "device.db", Content: []byte{1, 2, 3}})
	src.Create(&models.Setting{Key: "prefix", Value: "!"})
	dst.Create(&models.Setting{Key: "prefix", Value: "."})

	n, err := CopyTables(src, dst)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows copied, got %d", n)
	}

	var setting models.Setting
	if err := dst.First(&setting, "key = ?", "prefix").Error; err != nil {
		t.Fatal(err)
	}
	if setting.Value != "!" {
		t.Errorf("expected copied prefix to overwrite destination, got %q", setting.Value)
	}
	var file models.SessionFile
	if err := dst.First(&file, "filename = ?", "device.db").Error; err != nil {
		t.Fatal(err)
	}
	if len(file.Content) != 3 {
		t.Errorf("unexpected content %v", file.Content)
	}
}

func TestDeviceDSN(t *testing.T) {
	dsn := DeviceDSN("/tmp/auth/device.db")
	if !strings.HasPrefix(dsn, "file:/tmp/auth/device.db?") {
		t.Errorf("unexpected dsn %q", dsn)
	}
	for _, want := range []string{"_foreign_keys=on", "_journal_mode=DELETE"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %s", dsn, want)
		}
	}
}
