package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lendora/docvault/internal/domain/model"
	"github.com/lendora/docvault/internal/repository"
	"github.com/lendora/docvault/internal/storage/objectstore"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeDocRepo — in-memory реализация DocumentRepository.
type fakeDocRepo struct {
	mu    sync.Mutex
	docs  map[string]*model.DocumentRecord
	order []string
	// failUpdate заставляет UpdateStorageState возвращать ошибку
	failUpdate bool
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[string]*model.DocumentRecord)}
}

func (f *fakeDocRepo) Create(_ context.Context, d *model.DocumentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.docs[d.ID]; exists {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	copied := *d
	f.docs[d.ID] = &copied
	f.order = append(f.order, d.ID)
	return nil
}

func (f *fakeDocRepo) GetByID(_ context.Context, documentID string) (*model.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[documentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (f *fakeDocRepo) UpdateStorageState(_ context.Context, d *model.DocumentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return fmt.Errorf("ошибка обновления документа")
	}
	stored, ok := f.docs[d.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.StorageKey = d.StorageKey
	stored.Checksum = d.Checksum
	stored.SizeBytes = d.SizeBytes
	stored.MimeType = d.MimeType
	stored.StorageStatus = d.StorageStatus
	stored.UpdatedAt = time.Now().UTC()
	d.UpdatedAt = stored.UpdatedAt
	return nil
}

func (f *fakeDocRepo) List(_ context.Context, limit, offset int) ([]*model.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page(f.order, limit, offset), nil
}

func (f *fakeDocRepo) ListByStatus(_ context.Context, status model.StorageStatus, limit, offset int) ([]*model.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, id := range f.order {
		if f.docs[id].StorageStatus == status {
			ids = append(ids, id)
		}
	}
	return f.page(ids, limit, offset), nil
}

func (f *fakeDocRepo) page(ids []string, limit, offset int) []*model.DocumentRecord {
	if offset >= len(ids) {
		return nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	var result []*model.DocumentRecord
	for _, id := range ids[offset:end] {
		copied := *f.docs[id]
		result = append(result, &copied)
	}
	return result
}

func (f *fakeDocRepo) CountByStatus(_ context.Context) (map[model.StorageStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[model.StorageStatus]int)
	for _, d := range f.docs {
		counts[d.StorageStatus]++
	}
	return counts, nil
}

func (f *fakeDocRepo) MissingCountByApplication(_ context.Context, applicationIDs []string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]struct{}, len(applicationIDs))
	for _, id := range applicationIDs {
		wanted[id] = struct{}{}
	}
	counts := make(map[string]int)
	for _, d := range f.docs {
		if _, ok := wanted[d.ApplicationID]; !ok {
			continue
		}
		if d.StorageStatus != model.StorageSuccess {
			counts[d.ApplicationID]++
		}
	}
	return counts, nil
}

// fakeAttemptRepo — in-memory журнал попыток загрузки.
type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []model.UploadAttempt
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{}
}

func (f *fakeAttemptRepo) Insert(_ context.Context, documentID *string, status model.AttemptStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, model.UploadAttempt{
		ID:         int64(len(f.attempts) + 1),
		DocumentID: documentID,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	})
	return nil
}

func (f *fakeAttemptRepo) CountByStatusSince(_ context.Context, since time.Time) (map[model.AttemptStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[model.AttemptStatus]int)
	for _, a := range f.attempts {
		if !a.CreatedAt.Before(since) {
			counts[a.Status]++
		}
	}
	return counts, nil
}

func (f *fakeAttemptRepo) CountSince(_ context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, a := range f.attempts {
		if !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeAttemptRepo) HourlyActivity(_ context.Context, since time.Time) ([]repository.HourlyCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byHour := make(map[time.Time]int)
	for _, a := range f.attempts {
		if !a.CreatedAt.Before(since) {
			byHour[a.CreatedAt.Truncate(time.Hour)]++
		}
	}
	var result []repository.HourlyCount
	for hour, count := range byHour {
		result = append(result, repository.HourlyCount{Hour: hour, Count: count})
	}
	return result, nil
}

func (f *fakeAttemptRepo) LastAttemptAt(_ context.Context) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.attempts) == 0 {
		return nil, nil
	}
	t := f.attempts[len(f.attempts)-1].CreatedAt
	return &t, nil
}

func (f *fakeAttemptRepo) statuses() []model.AttemptStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]model.AttemptStatus, 0, len(f.attempts))
	for _, a := range f.attempts {
		result = append(result, a.Status)
	}
	return result
}

// fakeObjectStore — in-memory реализация хранилища объектов.
type fakeObjectStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	unavailable bool
	putCalls    int
	putDelay    time.Duration
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) setUnavailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable = v
}

func (f *fakeObjectStore) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	f.putCalls++
	unavailable := f.unavailable
	delay := f.putDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if unavailable {
		return objectstore.ErrUnavailable
	}

	f.mu.Lock()
	f.objects[key] = append([]byte(nil), data...)
	f.mu.Unlock()
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, objectstore.ErrUnavailable
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, objectstore.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) HeadExists(_ context.Context, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return false
	}
	_, ok := f.objects[key]
	return ok
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return objectstore.ErrUnavailable
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeObjectStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return "", objectstore.ErrUnavailable
	}
	if _, ok := f.objects[key]; !ok {
		return "", objectstore.ErrObjectNotFound
	}
	return "https://signed.example/" + key, nil
}

func (f *fakeObjectStore) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return objectstore.ErrUnavailable
	}
	return nil
}

func (f *fakeObjectStore) countPutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putCalls
}

// fakeDBPinger — управляемая проверка БД.
type fakeDBPinger struct {
	err error
}

func (f *fakeDBPinger) Ping(_ context.Context) error {
	return f.err
}
