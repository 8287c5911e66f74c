package models

import "time"

// PauseEntry - временная приостановка торговли тройки (биржа, рынок, монета)
//
// Создаётся классификатором ошибок после неудачной сделки.
// Истёкшие записи инертны и не удаляются автоматически.
type PauseEntry struct {
	Exchange string    `json:"exchange"`
	Market   string    `json:"market"`
	Coin     string    `json:"coin"`
	Until    time.Time `json:"until"`
	Reason   string    `json:"reason"`
}

// Active возвращает true если пауза ещё действует
func (p *PauseEntry) Active(now time.Time) bool {
	return now.Before(p.Until)
}
