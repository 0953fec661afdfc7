package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lendora/docvault/internal/domain/model"
)

// TestComputeScore_AllCombinations проверяет детерминированность оценки
// на всех восьми комбинациях компонент.
func TestComputeScore_AllCombinations(t *testing.T) {
	cases := []struct {
		db, store, activity bool
		wantScore           int
		wantStatus          string
	}{
		{true, true, true, 100, "healthy"},
		{true, true, false, 80, "healthy"},
		{true, false, true, 60, "degraded"},
		{false, true, true, 60, "degraded"},
		{true, false, false, 40, "unhealthy"},
		{false, true, false, 40, "unhealthy"},
		{false, false, true, 20, "unhealthy"},
		{false, false, false, 0, "unhealthy"},
	}

	for _, tc := range cases {
		score, status := ComputeScore(tc.db, tc.store, tc.activity)
		if score != tc.wantScore {
			t.Errorf("ComputeScore(%v, %v, %v): оценка %d, ожидалось %d",
				tc.db, tc.store, tc.activity, score, tc.wantScore)
		}
		if status != tc.wantStatus {
			t.Errorf("ComputeScore(%v, %v, %v): статус %s, ожидался %s",
				tc.db, tc.store, tc.activity, status, tc.wantStatus)
		}

		// Повторный вызов обязан дать тот же результат
		score2, status2 := ComputeScore(tc.db, tc.store, tc.activity)
		if score2 != score || status2 != status {
			t.Errorf("ComputeScore недетерминирована для (%v, %v, %v)",
				tc.db, tc.store, tc.activity)
		}
	}
}

// newHealthEnv собирает HealthReporter с in-memory зависимостями.
func newHealthEnv(t *testing.T) (*HealthReporter, *fakeDocRepo, *fakeAttemptRepo, *fakeObjectStore, *fakeDBPinger) {
	t.Helper()

	docs := newFakeDocRepo()
	attempts := newFakeAttemptRepo()
	store := newFakeObjectStore()
	db := &fakeDBPinger{}

	reporter := NewHealthReporter(docs, attempts, store, db, testLogger())
	return reporter, docs, attempts, store, db
}

// TestHealth_IsolatedChecks проверяет, что отказ одной проверки
// не скрывает результаты остальных.
func TestHealth_IsolatedChecks(t *testing.T) {
	reporter, _, attempts, store, db := newHealthEnv(t)
	ctx := context.Background()

	docID := uuid.NewString()
	if err := attempts.Insert(ctx, &docID, model.AttemptSuccess); err != nil {
		t.Fatalf("ошибка вставки попытки: %v", err)
	}

	// БД падает, хранилище и активность живы
	db.err = errors.New("connection refused")
	store.setUnavailable(false)

	report := reporter.Health(ctx)
	if report.Database {
		t.Error("проверка БД должна была провалиться")
	}
	if !report.Store {
		t.Error("проверка хранилища должна была пройти")
	}
	if !report.Activity {
		t.Error("проверка активности должна была пройти")
	}
	if report.Score != 60 || report.Status != "degraded" {
		t.Errorf("ожидалось 60/degraded, получено %d/%s", report.Score, report.Status)
	}
}

// TestMetrics проверяет отчёт метрик загрузок.
func TestMetrics(t *testing.T) {
	reporter, docs, attempts, _, _ := newHealthEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := uuid.NewString()
		if err := attempts.Insert(ctx, &id, model.AttemptSuccess); err != nil {
			t.Fatalf("ошибка вставки: %v", err)
		}
	}
	failedID := uuid.NewString()
	if err := attempts.Insert(ctx, &failedID, model.AttemptFailure); err != nil {
		t.Fatalf("ошибка вставки: %v", err)
	}

	key := "2026/01/doc/f.pdf"
	doc := &model.DocumentRecord{
		ID:            uuid.NewString(),
		ApplicationID: uuid.NewString(),
		FileName:      "f.pdf",
		StorageKey:    &key,
		MimeType:      "application/pdf",
		StorageStatus: model.StorageFallback,
	}
	if err := docs.Create(ctx, doc); err != nil {
		t.Fatalf("ошибка создания записи: %v", err)
	}

	report, err := reporter.Metrics(ctx)
	if err != nil {
		t.Fatalf("ошибка отчёта метрик: %v", err)
	}

	if report.TotalAttempts != 4 {
		t.Errorf("total_attempts: ожидалось 4, получено %d", report.TotalAttempts)
	}
	if report.SuccessRate != 0.75 {
		t.Errorf("success_rate: ожидалось 0.75, получено %f", report.SuccessRate)
	}
	if len(report.FallbackDocs) != 1 {
		t.Errorf("fallback_documents: ожидался 1 документ, получено %d", len(report.FallbackDocs))
	}
	if report.DocumentsByState[model.StorageFallback] != 1 {
		t.Error("breakdown по статусам не отражает fallback-документ")
	}
}

// TestServingStats_EmptyJournal проверяет статистику раздачи без попыток:
// нулевая доля успеха, деления на ноль нет.
func TestServingStats_EmptyJournal(t *testing.T) {
	reporter, _, _, _, _ := newHealthEnv(t)

	stats, err := reporter.ServingStats(context.Background())
	if err != nil {
		t.Fatalf("ошибка статистики раздачи: %v", err)
	}
	if stats.TotalAttempts != 0 {
		t.Errorf("total_attempts: ожидалось 0, получено %d", stats.TotalAttempts)
	}
	if stats.SuccessRate != 0 {
		t.Errorf("success_rate: ожидалось 0, получено %f", stats.SuccessRate)
	}
	if stats.WindowHours != 24 {
		t.Errorf("window_hours: ожидалось 24, получено %d", stats.WindowHours)
	}
}

// TestAudit проверяет сводку аудита.
func TestAudit(t *testing.T) {
	reporter, docs, attempts, _, _ := newHealthEnv(t)
	ctx := context.Background()

	// Без попыток last_upload_at отсутствует
	report, err := reporter.Audit(ctx)
	if err != nil {
		t.Fatalf("ошибка аудита: %v", err)
	}
	if report.LastUploadAt != nil {
		t.Error("last_upload_at должен отсутствовать для пустого журнала")
	}
	if report.TotalDocuments != 0 {
		t.Errorf("total_documents: ожидалось 0, получено %d", report.TotalDocuments)
	}

	doc := &model.DocumentRecord{
		ID:            uuid.NewString(),
		ApplicationID: uuid.NewString(),
		FileName:      "f.pdf",
		MimeType:      "application/pdf",
		StorageStatus: model.StoragePending,
	}
	if err := docs.Create(ctx, doc); err != nil {
		t.Fatalf("ошибка создания записи: %v", err)
	}
	if err := attempts.Insert(ctx, &doc.ID, model.AttemptSuccess); err != nil {
		t.Fatalf("ошибка вставки попытки: %v", err)
	}

	report, err = reporter.Audit(ctx)
	if err != nil {
		t.Fatalf("ошибка аудита: %v", err)
	}
	if report.TotalDocuments != 1 {
		t.Errorf("total_documents: ожидалось 1, получено %d", report.TotalDocuments)
	}
	if report.LastUploadAt == nil || time.Since(*report.LastUploadAt) > time.Minute {
		t.Error("last_upload_at не заполнен или некорректен")
	}
}

// TestApplicationStatus проверяет расчёт приоритетов заявок.
func TestApplicationStatus(t *testing.T) {
	reporter, docs, _, _, _ := newHealthEnv(t)
	ctx := context.Background()

	appHigh := uuid.NewString()
	appMedium := uuid.NewString()
	appLow := uuid.NewString()
	appClean := uuid.NewString()

	seed := func(appID string, missing int) {
		for i := 0; i < missing; i++ {
			doc := &model.DocumentRecord{
				ID:            uuid.NewString(),
				ApplicationID: appID,
				FileName:      "f.pdf",
				MimeType:      "application/pdf",
				StorageStatus: model.StorageFallback,
			}
			if err := docs.Create(ctx, doc); err != nil {
				t.Fatalf("ошибка создания записи: %v", err)
			}
		}
	}
	seed(appHigh, 6)
	seed(appMedium, 3)
	seed(appLow, 2)

	statuses, err := reporter.ApplicationStatus(ctx, []string{appHigh, appMedium, appLow, appClean})
	if err != nil {
		t.Fatalf("ошибка расчёта приоритетов: %v", err)
	}

	want := map[string]model.PriorityTier{
		appHigh:   model.TierHigh,
		appMedium: model.TierMedium,
		appLow:    model.TierLow,
		appClean:  model.TierLow,
	}
	if len(statuses) != len(want) {
		t.Fatalf("ожидалось %d заявок, получено %d", len(want), len(statuses))
	}
	for _, st := range statuses {
		if st.Tier != want[st.ApplicationID] {
			t.Errorf("заявка %s: приоритет %s, ожидался %s",
				st.ApplicationID, st.Tier, want[st.ApplicationID])
		}
	}

	// Пустой список — ошибка валидации
	if _, err := reporter.ApplicationStatus(ctx, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("ожидалась ошибка валидации, получено: %v", err)
	}
}
