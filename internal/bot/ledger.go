package bot

import (
	"sync"

	"github.com/teusbenschop/cryptobot-sub002/internal/models"
	"github.com/teusbenschop/cryptobot-sub002/pkg/utils"
)

// balanceKey - составной ключ без аллокации строк
type balanceKey struct {
	Exchange string
	Coin     string
}

// Ledger - общий in-memory леджер балансов по (биржа, монета).
//
// Commit всегда перезаписывает запись целиком (не дельта), поэтому
// последовательность "прочитать → решить → условно списать" обязана
// выполняться целиком под блокировкой леджера - иначе параллельные
// воркеры, делящие биржу/монету, теряют обновления и пере-коммитят
// одни и те же средства.
//
// Критическая секция никогда не должна охватывать сетевой вызов:
// Lock → Read → решение → Commit → Unlock, и только потом сеть.
type Ledger struct {
	mu          sync.Mutex
	balances    map[balanceKey]models.BalanceRecord
	withdrawals map[balanceKey]float64
}

// NewLedger создаёт пустой леджер
func NewLedger() *Ledger {
	return &Ledger{
		balances:    make(map[balanceKey]models.BalanceRecord),
		withdrawals: make(map[balanceKey]float64),
	}
}

// Lock захватывает общую блокировку леджера.
// Держатель обязан освободить её до любого сетевого вызова.
func (l *Ledger) Lock() { l.mu.Lock() }

// Unlock освобождает общую блокировку леджера
func (l *Ledger) Unlock() { l.mu.Unlock() }

// Read возвращает запись баланса для (биржа, монета).
//
// Доступный баланс корректируется на сумму незавершённого вывода:
// часть бирж показывает средства до фактического расчёта вывода.
// После коррекции доступный баланс не бывает отрицательным.
//
// Вызывается под Lock.
func (l *Ledger) Read(exchangeName, coin string) models.BalanceRecord {
	key := balanceKey{Exchange: exchangeName, Coin: coin}
	rec, ok := l.balances[key]
	if !ok {
		return models.BalanceRecord{Exchange: exchangeName, Coin: coin}
	}
	if pending := l.withdrawals[key]; pending > 0 {
		rec.Available = utils.ClampNonNegative(rec.Available - pending)
	}
	return rec
}

// Commit перезаписывает запись баланса целиком.
// Вызывается под Lock.
func (l *Ledger) Commit(exchangeName, coin string, total, available, reserved, unconfirmed float64) {
	key := balanceKey{Exchange: exchangeName, Coin: coin}
	l.balances[key] = models.BalanceRecord{
		Exchange:    exchangeName,
		Coin:        coin,
		Total:       total,
		Available:   available,
		Reserved:    reserved,
		Unconfirmed: unconfirmed,
	}
}

// SetPendingWithdrawal фиксирует сумму незавершённого вывода.
// Поставляется внешним монитором выводов; потребляется Read.
func (l *Ledger) SetPendingWithdrawal(exchangeName, coin string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := balanceKey{Exchange: exchangeName, Coin: coin}
	if amount <= 0 {
		delete(l.withdrawals, key)
		return
	}
	l.withdrawals[key] = amount
}

// LoadWithdrawals загружает снимок незавершённых выводов из хранилища
func (l *Ledger) LoadWithdrawals(ws []models.PendingWithdrawal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range ws {
		if w.Amount <= 0 {
			continue
		}
		l.withdrawals[balanceKey{Exchange: w.Exchange, Coin: w.Coin}] = w.Amount
	}
}
