// Пакет staging — локальное размещение загружаемых файлов до финализации
// модерации. Файл принадлежит ровно одной записи PhotoRecord от размещения
// до approve/reject; удаление — часть перехода состояния.
package staging

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store — каталог временных файлов.
type Store struct {
	root string
}

// New создаёт каталог временных файлов (вместе с родительскими).
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ошибка определения пути каталога: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога временных файлов: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root возвращает абсолютный путь каталога временных файлов.
func (s *Store) Root() string {
	return s.root
}

// Stage записывает поток в файл под устойчивым к коллизиям именем:
// unix-миллисекунды + случайный суффикс, с сохранением оригинального
// расширения. Возвращает абсолютный путь размещённого файла.
func (s *Store) Stage(r io.Reader, originalName string) (string, error) {
	name := stagedName(originalName)
	path := filepath.Join(s.root, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		// Неполный файл не оставляем
		_ = os.Remove(path)
		return "", fmt.Errorf("ошибка записи временного файла: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("ошибка закрытия временного файла: %w", err)
	}

	return path, nil
}

// Remove удаляет размещённый файл. Путь вне каталога временных файлов
// отклоняется. Отсутствующий файл не считается ошибкой.
func (s *Store) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("ошибка определения пути файла: %w", err)
	}
	if !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return fmt.Errorf("путь %q вне каталога временных файлов", path)
	}

	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ошибка удаления временного файла: %w", err)
	}
	return nil
}

// stagedName строит имя временного файла: <unixmilli>-<rand><ext>.
func stagedName(originalName string) string {
	ext := filepath.Ext(originalName)
	return fmt.Sprintf("%d-%09d%s", time.Now().UnixMilli(), rand.Intn(1_000_000_000), ext)
}
