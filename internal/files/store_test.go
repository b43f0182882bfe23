package files

import (
	"strings"
	"testing"
)

// TestSaveAndRead проверяет сохранение и чтение файла.
func TestSaveAndRead(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	path, err := store.Save("user_abc", "bill.pdf", []byte("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(path, "user_abc") {
		t.Fatalf("expected path under user directory, got %q", path)
	}
	if !strings.HasSuffix(path, ".pdf") {
		t.Fatalf("expected original extension preserved, got %q", path)
	}

	data, err := store.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "%PDF-1.7" {
		t.Fatalf("unexpected content: %q", data)
	}
}

// TestSaveSanitizesUserID проверяет экранирование небезопасных символов.
func TestSaveSanitizesUserID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	path, err := store.Save("../evil", "bill.csv", []byte("a,b"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if strings.Contains(path, "..") {
		t.Fatalf("expected sanitized path, got %q", path)
	}
}

// TestReadRejectsTraversal проверяет запрет выхода за корень загрузок.
func TestReadRejectsTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if _, err := store.Read("../../etc/passwd"); err == nil {
		t.Fatal("expected error for traversal path")
	}
}
