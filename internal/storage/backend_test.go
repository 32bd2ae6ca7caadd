package storage

import (
	"context"
	"testing"

	"github.com/docsweb/docs-client/internal/config"
)

func TestNew_Local(t *testing.T) {
	b, err := New(context.Background(), &config.Config{DownloadBackend: "local", DownloadDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Close()
	if b.Type() != "local" {
		t.Errorf("expected local backend, got %s", b.Type())
	}
}

func TestNew_Unknown(t *testing.T) {
	if _, err := New(context.Background(), &config.Config{DownloadBackend: "smb"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
