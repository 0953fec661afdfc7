// Пакет fallback — локальное on-disk staging-хранилище документов.
// Используется только когда основное хранилище недоступно при загрузке.
// Запись идёт по тому же относительному ключу, что и в основном хранилище,
// поэтому последующая миграция — чистое копирование байтов без
// переформирования идентичности.
package fallback

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lendora/docvault/internal/checksum"
)

// Store — управление файлами fallback-хранилища на диске.
type Store struct {
	// dataDir — корневая директория fallback-хранилища (DV_FALLBACK_DIR)
	dataDir string
}

// New создаёт новый Store. Проверяет и создаёт директорию,
// если она не существует.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать fallback-директорию %s: %w", dataDir, err)
	}

	return &Store{dataDir: dataDir}, nil
}

// Save записывает поток по относительному ключу, одним проходом считая
// SHA-256 и размер записанного содержимого.
// Паттерн: temp файл → копирование → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *Store) Save(key string, r io.Reader) (sum string, size int64, err error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", 0, err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", 0, fmt.Errorf("ошибка создания директории для %s: %w", key, err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	cr := checksum.NewReader(r)
	if _, err := io.Copy(f, cr); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return cr.Sum(), cr.Size(), nil
}

// Open открывает файл для чтения по относительному ключу.
// Вызывающий код обязан закрыть ReadCloser.
func (s *Store) Open(key string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", key)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", key, err)
	}

	return f, nil
}

// ReadAll читает полное содержимое файла по относительному ключу.
func (s *Store) ReadAll(key string) ([]byte, error) {
	f, err := s.Open(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", key, err)
	}
	return data, nil
}

// Exists проверяет существование файла по относительному ключу.
func (s *Store) Exists(key string) bool {
	fullPath, err := s.resolve(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// Delete удаляет файл. Возвращает nil, если файл уже не существует.
func (s *Store) Delete(key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", key, err)
	}
	return nil
}

// List возвращает относительные ключи всех файлов хранилища.
// Служебные файлы (скрытые, *.tmp) пропускаются.
func (s *Store) List() ([]string, error) {
	var keys []string

	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			return nil
		}

		rel, relErr := filepath.Rel(s.dataDir, path)
		if relErr != nil {
			return relErr
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода fallback-директории: %w", err)
	}

	return keys, nil
}

// ComputeChecksum вычисляет SHA-256 хэш существующего файла.
// Используется при сверке для проверки целостности.
func (s *Store) ComputeChecksum(key string) (string, error) {
	f, err := s.Open(key)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum, err := checksum.Digest(f)
	if err != nil {
		return "", fmt.Errorf("ошибка вычисления checksum %s: %w", key, err)
	}
	return sum, nil
}

// FileSize возвращает размер файла по относительному ключу.
func (s *Store) FileSize(key string) (int64, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", key, err)
	}
	return info.Size(), nil
}

// DataDir возвращает путь к директории хранилища.
func (s *Store) DataDir() string {
	return s.dataDir
}

// resolve преобразует относительный ключ в абсолютный путь.
// Отклоняет ключи, выходящие за пределы dataDir.
func (s *Store) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("недопустимый ключ хранилища: %q", key)
	}
	return filepath.Join(s.dataDir, cleaned), nil
}
