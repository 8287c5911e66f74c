package models

import "time"

// Статусы исполненной арбитражной сделки
const (
	TradeStatusSubmitted = "submitted" // обе ноги отправлены
	TradeStatusFailed    = "failed"    // хотя бы одна нога отклонена
)

// Trade - запись об одной арбитражной сделке (две ноги)
//
// Покупка на бирже с минимальным ask, продажа на бирже с максимальным bid.
type Trade struct {
	ID          int64     `json:"id"`
	Market      string    `json:"market"`
	Coin        string    `json:"coin"`
	AskExchange string    `json:"ask_exchange"` // где покупаем
	BidExchange string    `json:"bid_exchange"` // где продаём
	Quantity    float64   `json:"quantity"`
	AskRate     float64   `json:"ask_rate"` // скорректированная цена покупки
	BidRate     float64   `json:"bid_rate"` // скорректированная цена продажи
	BuyOrderID  string    `json:"buy_order_id"`
	SellOrderID string    `json:"sell_order_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Gain возвращает ожидаемый валовый доход сделки в базовой валюте
func (t *Trade) Gain() float64 {
	return t.Quantity * (t.BidRate - t.AskRate)
}

// PriceBought - цена фактической покупки монеты, для истории цен
type PriceBought struct {
	Exchange string    `json:"exchange"`
	Market   string    `json:"market"`
	Coin     string    `json:"coin"`
	Rate     float64   `json:"rate"`
	At       time.Time `json:"at"`
}

// TradingPairSpec - настроенная торговая пара (рынок, монета)
type TradingPairSpec struct {
	Market  string `json:"market"`
	Coin    string `json:"coin"`
	Enabled bool   `json:"enabled"`
}

// ExchangeAccount - учётная запись биржи с зашифрованными API ключами
type ExchangeAccount struct {
	ID                 int       `json:"id"`
	Name               string    `json:"name"`
	APIKeyEncrypted    string    `json:"-"`
	APISecretEncrypted string    `json:"-"`
	Enabled            bool      `json:"enabled"`
	CreatedAt          time.Time `json:"created_at"`
}
