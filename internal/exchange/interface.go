package exchange

import (
	"context"
	"time"
)

// Exchange определяет унифицированный интерфейс клиента биржи.
//
// Конкретные wire-реализации (REST/WebSocket) живут вне ядра; ядро
// работает только через этот интерфейс. Все блокирующие вызовы
// принимают context для отмены по дедлайну торгового окна.
type Exchange interface {
	// GetName возвращает имя биржи
	GetName() string

	// GetOrderBook получает одну сторону стакана для монеты на рынке.
	// Предложения упорядочены от лучшего к худшему.
	GetOrderBook(ctx context.Context, market, coin, side string) (*OrderBookSide, error)

	// GetBalance получает баланс монеты на бирже
	GetBalance(ctx context.Context, coin string) (*Balance, error)

	// PlaceLimitOrder размещает лимитный ордер.
	// Возвращает идентификатор ордера (пустой если биржа его не выдала),
	// сырой ответ провайдера и ошибку.
	PlaceLimitOrder(ctx context.Context, market, coin string, quantity, rate float64, side string) (orderID string, raw string, err error)

	// GetOrder запрашивает фактическое состояние ордера.
	// Используется для сверки после неоднозначного размещения.
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// CancelOrder отменяет ордер, возвращает true при успехе
	CancelOrder(ctx context.Context, orderID string) (bool, error)
}

// Offer - одно предложение в стакане: цена и количество
type Offer struct {
	Rate     float64 `json:"rate"`
	Quantity float64 `json:"quantity"`
}

// OrderBookSide - одна сторона стакана, упорядоченная лучшее-первым.
// Пересобирается заново при каждом запросе и не мутируется: алгоритмы
// фильтрации возвращают новые последовательности.
type OrderBookSide struct {
	Exchange  string    `json:"exchange"`
	Market    string    `json:"market"`
	Coin      string    `json:"coin"`
	Side      string    `json:"side"` // "buy" (bids) или "sell" (asks)
	Offers    []Offer   `json:"offers"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Best возвращает лучшее предложение (нулевое для пустого стакана)
func (b *OrderBookSide) Best() Offer {
	if len(b.Offers) == 0 {
		return Offer{}
	}
	return b.Offers[0]
}

// Balance - баланс монеты, как его сообщает биржа
type Balance struct {
	Coin        string  `json:"coin"`
	Total       float64 `json:"total"`
	Available   float64 `json:"available"`
	Reserved    float64 `json:"reserved"`
	Unconfirmed float64 `json:"unconfirmed"`
}

// Order - состояние ордера на бирже
type Order struct {
	ID        string    `json:"id"`
	Market    string    `json:"market"`
	Coin      string    `json:"coin"`
	Side      string    `json:"side"`
	Quantity  float64   `json:"quantity"`
	Rate      float64   `json:"rate"`
	FilledQty float64   `json:"filled_qty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Side constants
const (
	SideBuy  = "buy"  // сторона покупателей (bids)
	SideSell = "sell" // сторона продавцов (asks)
)

// Order status constants
const (
	OrderStatusOpen      = "open"
	OrderStatusFilled    = "filled"
	OrderStatusPartial   = "partial"
	OrderStatusCancelled = "cancelled"
	OrderStatusUnknown   = "unknown"
)
