package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lendora/docvault/internal/domain/model"
)

// DocumentCache — LRU-кэш метаданных документов с TTL.
// Снижает нагрузку на БД при повторных запросах одного документа.
type DocumentCache struct {
	lru *expirable.LRU[string, *model.DocumentRecord]
}

// NewDocumentCache создаёт кэш с заданным размером и TTL.
func NewDocumentCache(size int, ttl time.Duration) *DocumentCache {
	return &DocumentCache{
		lru: expirable.NewLRU[string, *model.DocumentRecord](size, nil, ttl),
	}
}

// Get возвращает документ из кэша.
func (c *DocumentCache) Get(documentID string) (*model.DocumentRecord, bool) {
	d, ok := c.lru.Get(documentID)
	if ok {
		cacheHitsTotal.Inc()
	} else {
		cacheMissesTotal.Inc()
	}
	return d, ok
}

// Set сохраняет документ в кэше.
func (c *DocumentCache) Set(d *model.DocumentRecord) {
	c.lru.Add(d.ID, d)
}

// Invalidate удаляет документ из кэша. Вызывается при любом изменении
// записи, чтобы кэш не отдавал устаревший статус.
func (c *DocumentCache) Invalidate(documentID string) {
	c.lru.Remove(documentID)
}
