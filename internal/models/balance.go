package models

// BalanceRecord - средства аккаунта для пары (биржа, монета)
//
// Запись всегда перезаписывается целиком при commit (не дельтами),
// поэтому последовательность read-modify-write должна выполняться
// вызывающим кодом под общей блокировкой леджера.
type BalanceRecord struct {
	Exchange    string  `json:"exchange"`
	Coin        string  `json:"coin"`
	Total       float64 `json:"total"`       // всего на счету
	Available   float64 `json:"available"`   // доступно для торговли
	Reserved    float64 `json:"reserved"`    // зарезервировано открытыми ордерами
	Unconfirmed float64 `json:"unconfirmed"` // неподтверждённые депозиты
}

// PendingWithdrawal - вывод средств, ещё не рассчитанный биржей
//
// Поставляется внешним монитором выводов. Леджер вычитает сумму из
// доступного баланса при чтении, компенсируя биржи которые показывают
// баланс до фактического расчёта вывода.
type PendingWithdrawal struct {
	Exchange string  `json:"exchange"`
	Coin     string  `json:"coin"`
	Amount   float64 `json:"amount"`
}

// MinimumTradeSize - минимальный торгуемый объём на площадке
//
// Значение 0 означает отсутствие ограничения.
type MinimumTradeSize struct {
	Exchange string  `json:"exchange"`
	Market   string  `json:"market"`
	Coin     string  `json:"coin"`
	Minimum  float64 `json:"minimum"`
}
