// Package files сохраняет загруженные документы счетов на локальном диске.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store кладет каждый файл в подкаталог пользователя под уникальным именем.
type Store struct {
	dir string
}

// NewStore создает корневой каталог загрузок.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

// Save сохраняет файл и возвращает путь относительно корня загрузок.
func (s *Store) Save(userID, fileName string, data []byte) (string, error) {
	userDir := filepath.Join(s.dir, sanitize(userID))
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return "", fmt.Errorf("create user directory: %w", err)
	}

	name := uuid.New().String() + extension(fileName)
	fullPath := filepath.Join(userDir, name)

	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	relPath, err := filepath.Rel(s.dir, fullPath)
	if err != nil {
		return "", err
	}

	return relPath, nil
}

// Read возвращает содержимое сохраненного файла по относительному пути.
func (s *Store) Read(relPath string) ([]byte, error) {
	clean := filepath.Clean(relPath)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("invalid file path: %s", relPath)
	}

	return os.ReadFile(filepath.Join(s.dir, clean))
}

func sanitize(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, value)
}

func extension(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) > 10 {
		return ""
	}
	return ext
}
