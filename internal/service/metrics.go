package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики Prometheus сервисного слоя.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_uploads_total",
		Help: "Количество попыток загрузки документов по исходу",
	}, []string{"outcome"})

	migrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_migrations_total",
		Help: "Количество миграций документов из fallback по исходу",
	}, []string{"outcome"})

	scanRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dv_scan_runs_total",
		Help: "Количество завершённых запусков сверки",
	})

	scanFindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_scan_findings_total",
		Help: "Количество находок сверки по классификации",
	}, []string{"kind"})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dv_scan_duration_seconds",
		Help:    "Длительность запуска сверки",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dv_cache_hits_total",
		Help: "Количество попаданий в кэш метаданных документов",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dv_cache_misses_total",
		Help: "Количество промахов кэша метаданных документов",
	})
)
