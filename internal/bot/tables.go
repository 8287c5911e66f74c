package bot

import (
	"sync"
	"time"

	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

// tripleKey - ключ (биржа, рынок, монета)
type tripleKey struct {
	Exchange string
	Market   string
	Coin     string
}

// ============================================================
// Таблица пауз
// ============================================================

// PauseTable - общая таблица приостановок торговли.
//
// Записи создаёт классификатор ошибок, читают планировщик и
// арбитражный исполнитель перед каждой попыткой. Доступ дешёвый,
// охраняется собственным RWMutex таблицы (отдельно от леджера).
// Истёкшие записи инертны и не вычищаются.
type PauseTable struct {
	mu      sync.RWMutex
	entries map[tripleKey]models.PauseEntry
}

// NewPauseTable создаёт пустую таблицу пауз
func NewPauseTable() *PauseTable {
	return &PauseTable{entries: make(map[tripleKey]models.PauseEntry)}
}

// Pause приостанавливает тройку (биржа, рынок, монета) на duration
func (t *PauseTable) Pause(exchangeName, market, coin string, duration time.Duration, reason string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[tripleKey{exchangeName, market, coin}] = models.PauseEntry{
		Exchange: exchangeName,
		Market:   market,
		Coin:     coin,
		Until:    now.Add(duration),
		Reason:   reason,
	}
}

// Paused сообщает, действует ли пауза для тройки
func (t *PauseTable) Paused(exchangeName, market, coin string, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entries[tripleKey{exchangeName, market, coin}]
	return ok && entry.Active(now)
}

// Load загружает сохранённые паузы из хранилища при старте
func (t *PauseTable) Load(entries []models.PauseEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range entries {
		t.entries[tripleKey{e.Exchange, e.Market, e.Coin}] = e
	}
}

// Entries возвращает копию всех записей (для мониторинга)
func (t *PauseTable) Entries() []models.PauseEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.PauseEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}

// ============================================================
// Таблица минимальных объёмов
// ============================================================

// MinSizeTable - минимальные торгуемые объёмы площадок.
// Загружается один раз за запуск из внешнего хранилища.
type MinSizeTable struct {
	mu    sync.RWMutex
	sizes map[tripleKey]float64
}

// NewMinSizeTable создаёт пустую таблицу
func NewMinSizeTable() *MinSizeTable {
	return &MinSizeTable{sizes: make(map[tripleKey]float64)}
}

// Get возвращает минимум для тройки; 0 = без ограничения
func (t *MinSizeTable) Get(exchangeName, market, coin string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sizes[tripleKey{exchangeName, market, coin}]
}

// Set задаёт минимум для тройки
func (t *MinSizeTable) Set(exchangeName, market, coin string, minimum float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sizes[tripleKey{exchangeName, market, coin}] = minimum
}

// Load загружает минимумы из хранилища
func (t *MinSizeTable) Load(sizes []models.MinimumTradeSize) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range sizes {
		t.sizes[tripleKey{s.Exchange, s.Market, s.Coin}] = s.Minimum
	}
}
