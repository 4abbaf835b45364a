package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DownloadLimit != 4 {
		t.Errorf("expected default DownloadLimit 4, got %d", cfg.DownloadLimit)
	}
	if !cfg.IncompleteTaskNotifier {
		t.Error("expected IncompleteTaskNotifier default true")
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DownloadLimit != Default().DownloadLimit {
		t.Error("expected defaults when file absent")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskorc.conf")
	body := "DOWNLOAD_LIMIT = 8\nOWNER_ID = 999\nAUTH_CHATS = 1, 2 ,3\nQUEUE_ALL = true\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DownloadLimit != 8 {
		t.Errorf("expected DownloadLimit 8, got %d", cfg.DownloadLimit)
	}
	if cfg.OwnerID != 999 {
		t.Errorf("expected OwnerID 999, got %d", cfg.OwnerID)
	}
	if !cfg.QueueAll {
		t.Error("expected QueueAll true")
	}
	chats := cfg.AuthChatList()
	if len(chats) != 3 || chats[0] != "1" || chats[2] != "3" {
		t.Errorf("unexpected AuthChatList: %v", chats)
	}
	// unspecified keys keep their default
	if cfg.UploadLimit != Default().UploadLimit {
		t.Error("expected UploadLimit to keep default when unspecified")
	}
}

func TestSplitNonEmpty(t *testing.T) {
	if got := splitNonEmpty(""); got != nil {
		t.Errorf("expected nil for empty string, got %v", got)
	}
	got := splitNonEmpty(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected split result: %v", got)
	}
}
