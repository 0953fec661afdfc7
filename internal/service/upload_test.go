package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lendora/docvault/internal/checksum"
	"github.com/lendora/docvault/internal/domain/model"
	"github.com/lendora/docvault/internal/storage/fallback"
)

const testMaxFileSize = 1 << 20

// newUploadEnv собирает UploadService с in-memory зависимостями.
func newUploadEnv(t *testing.T) (*UploadService, *fakeDocRepo, *fakeAttemptRepo, *fakeObjectStore, *fallback.Store) {
	t.Helper()

	docs := newFakeDocRepo()
	attempts := newFakeAttemptRepo()
	store := newFakeObjectStore()
	local, err := fallback.New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания fallback-хранилища: %v", err)
	}
	cache := NewDocumentCache(16, time.Minute)

	svc := NewUploadService(docs, attempts, store, local, cache,
		testMaxFileSize, 15*time.Minute, testLogger())
	return svc, docs, attempts, store, local
}

// TestUpload_PrimarySuccess проверяет успешную загрузку в основное хранилище.
func TestUpload_PrimarySuccess(t *testing.T) {
	svc, _, attempts, store, _ := newUploadEnv(t)
	appID := uuid.NewString()
	content := []byte("договор займа, скан страницы 1")

	doc, err := svc.Upload(context.Background(), appID, "contract.pdf", "application/pdf", content)
	if err != nil {
		t.Fatalf("ошибка загрузки: %v", err)
	}

	if doc.StorageStatus != model.StorageSuccess {
		t.Errorf("статус: ожидался success, получен %s", doc.StorageStatus)
	}
	if doc.StorageKey == nil {
		t.Fatal("storage_key не заполнен")
	}
	if !strings.HasSuffix(*doc.StorageKey, "/contract.pdf") {
		t.Errorf("ключ должен заканчиваться именем файла: %s", *doc.StorageKey)
	}
	if doc.Checksum == nil || *doc.Checksum != checksum.DigestBytes(content) {
		t.Error("контрольная сумма не зафиксирована или неверна")
	}
	if !store.HeadExists(context.Background(), *doc.StorageKey) {
		t.Error("объект не записан в основное хранилище")
	}

	statuses := attempts.statuses()
	if len(statuses) != 1 || statuses[0] != model.AttemptSuccess {
		t.Errorf("журнал попыток: ожидалась одна запись success, получено %v", statuses)
	}
}

// TestUpload_FallbackOnUnavailable проверяет переключение на fallback
// при недоступном основном хранилище.
func TestUpload_FallbackOnUnavailable(t *testing.T) {
	svc, _, attempts, store, local := newUploadEnv(t)
	store.setUnavailable(true)
	content := []byte("справка о доходах")

	doc, err := svc.Upload(context.Background(), uuid.NewString(), "income.pdf", "application/pdf", content)
	if err != nil {
		t.Fatalf("недоступность хранилища не должна быть ошибкой загрузки: %v", err)
	}

	if doc.StorageStatus != model.StorageFallback {
		t.Errorf("статус: ожидался fallback, получен %s", doc.StorageStatus)
	}
	if doc.StorageKey == nil {
		t.Fatal("storage_key не заполнен")
	}
	if !local.Exists(*doc.StorageKey) {
		t.Error("файл не записан в fallback-хранилище")
	}

	// Контрольная сумма фиксируется и для fallback-копии
	sum, err := local.ComputeChecksum(*doc.StorageKey)
	if err != nil {
		t.Fatalf("ошибка вычисления checksum: %v", err)
	}
	if doc.Checksum == nil || sum != *doc.Checksum {
		t.Error("контрольная сумма fallback-копии не совпадает с записью")
	}

	statuses := attempts.statuses()
	if len(statuses) != 1 || statuses[0] != model.AttemptFallback {
		t.Errorf("журнал попыток: ожидалась одна запись fallback, получено %v", statuses)
	}
}

// TestUpload_Validation проверяет отклонение некорректных входных данных.
func TestUpload_Validation(t *testing.T) {
	svc, docs, _, _, _ := newUploadEnv(t)
	ctx := context.Background()
	appID := uuid.NewString()

	cases := []struct {
		name     string
		appID    string
		fileName string
		data     []byte
	}{
		{"некорректный UUID заявки", "not-a-uuid", "a.pdf", []byte("x")},
		{"пустое имя файла", appID, "  ", []byte("x")},
		{"пустое содержимое", appID, "a.pdf", nil},
		{"превышен размер", appID, "a.pdf", make([]byte, testMaxFileSize+1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, tc.appID, tc.fileName, "", tc.data)
			if err == nil {
				t.Fatal("ожидалась ошибка валидации")
			}
		})
	}

	// Ни одна запись не должна быть создана
	counts, _ := docs.CountByStatus(ctx)
	if len(counts) != 0 {
		t.Errorf("записи не должны создаваться при ошибке валидации: %v", counts)
	}
}

// TestGet_NotFound проверяет ошибку для несуществующего документа.
func TestGet_NotFound(t *testing.T) {
	svc, _, _, _, _ := newUploadEnv(t)

	_, err := svc.Get(context.Background(), uuid.NewString())
	if err == nil {
		t.Fatal("ожидалась ошибка not found")
	}
}

// TestDownloadURL проверяет выдачу подписанного URL и отказ для fallback.
func TestDownloadURL(t *testing.T) {
	svc, _, _, store, _ := newUploadEnv(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, uuid.NewString(), "passport.jpg", "image/jpeg", []byte("скан"))
	if err != nil {
		t.Fatalf("ошибка загрузки: %v", err)
	}

	url, err := svc.DownloadURL(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ошибка выдачи URL: %v", err)
	}
	if !strings.HasPrefix(url, "https://signed.example/") {
		t.Errorf("неожиданный URL: %s", url)
	}

	// Fallback-документ не обслуживается подписанными URL
	store.setUnavailable(true)
	fbDoc, err := svc.Upload(ctx, uuid.NewString(), "other.pdf", "application/pdf", []byte("данные"))
	if err != nil {
		t.Fatalf("ошибка загрузки: %v", err)
	}
	store.setUnavailable(false)

	if _, err := svc.DownloadURL(ctx, fbDoc.ID); err == nil {
		t.Error("для fallback-документа ожидался отказ")
	}
}

// TestBuildStorageKey проверяет формат ключа {yyyy}/{mm}/{id}/{имя}.
func TestBuildStorageKey(t *testing.T) {
	ts := time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC)
	key := BuildStorageKey(ts, "doc-id-123", "справка №5 (final).pdf")

	if !strings.HasPrefix(key, "2026/03/doc-id-123/") {
		t.Errorf("неожиданный префикс ключа: %s", key)
	}
	if strings.ContainsAny(key, " ()№") {
		t.Errorf("ключ содержит недопустимые символы: %s", key)
	}
}

// TestSanitizeFileName проверяет санитизацию имён файлов.
func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"contract.pdf", "contract.pdf"},
		{"my file (1).pdf", "my_file__1_.pdf"},
		{"../../etc/passwd", "etc_passwd"},
		{"заявка.pdf", "pdf"},
		{"***", "file"},
	}

	for _, tc := range cases {
		if got := SanitizeFileName(tc.in); got != tc.want {
			t.Errorf("SanitizeFileName(%q) = %q, ожидалось %q", tc.in, got, tc.want)
		}
	}
}
