package bot

import (
	"context"
	"sync"

	"github.com/teusbenschop/cryptobot-sub002/internal/exchange"
	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

// fakeExchange - конфигурируемая заглушка биржи для тестов.
// Поля-функции с nil дают безобидные значения по умолчанию.
type fakeExchange struct {
	name       string
	orderBook  func(market, coin, side string) (*exchange.OrderBookSide, error)
	balance    func(coin string) (*exchange.Balance, error)
	placeOrder func(market, coin string, quantity, rate float64, side string) (string, string, error)
	getOrder   func(orderID string) (*exchange.Order, error)
}

func (f *fakeExchange) GetName() string { return f.name }

func (f *fakeExchange) GetOrderBook(_ context.Context, market, coin, side string) (*exchange.OrderBookSide, error) {
	if f.orderBook == nil {
		return &exchange.OrderBookSide{Exchange: f.name, Market: market, Coin: coin, Side: side}, nil
	}
	return f.orderBook(market, coin, side)
}

func (f *fakeExchange) GetBalance(_ context.Context, coin string) (*exchange.Balance, error) {
	if f.balance == nil {
		return &exchange.Balance{Coin: coin}, nil
	}
	return f.balance(coin)
}

func (f *fakeExchange) PlaceLimitOrder(_ context.Context, market, coin string, quantity, rate float64, side string) (string, string, error) {
	if f.placeOrder == nil {
		return "order-1", "", nil
	}
	return f.placeOrder(market, coin, quantity, rate, side)
}

func (f *fakeExchange) GetOrder(_ context.Context, orderID string) (*exchange.Order, error) {
	if f.getOrder == nil {
		return &exchange.Order{ID: orderID, Status: exchange.OrderStatusFilled}, nil
	}
	return f.getOrder(orderID)
}

func (f *fakeExchange) CancelOrder(_ context.Context, _ string) (bool, error) {
	return true, nil
}

// bookOf собирает сторону стакана из пар (цена, количество)
func bookOf(name, market, coin, side string, levels ...[2]float64) *exchange.OrderBookSide {
	offers := make([]exchange.Offer, 0, len(levels))
	for _, l := range levels {
		offers = append(offers, exchange.Offer{Rate: l[0], Quantity: l[1]})
	}
	return &exchange.OrderBookSide{Exchange: name, Market: market, Coin: coin, Side: side, Offers: offers}
}

// fakeMultipathStore записывает каждую сохранённую версию плана
type fakeMultipathStore struct {
	mu       sync.Mutex
	plans    []*models.Multipath
	statuses []string
	saveErr  error
}

func (s *fakeMultipathStore) LoadMultipaths(context.Context) ([]*models.Multipath, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plans, nil
}

func (s *fakeMultipathStore) SaveMultipath(_ context.Context, m *models.Multipath) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, m.Status)
	return s.saveErr
}

func (s *fakeMultipathStore) saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.statuses))
	copy(out, s.statuses)
	return out
}

// fakeNotifier - наблюдатель, принимающий блоки, сделки и паузы
type fakeNotifier struct {
	mu     sync.Mutex
	blocks [][]string
	alerts int
	trades []*models.Trade
	pauses []models.PauseEntry
}

func (n *fakeNotifier) Notify(lines []string, alert bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocks = append(n.blocks, lines)
	if alert {
		n.alerts++
	}
}

func (n *fakeNotifier) BroadcastTrade(t *models.Trade) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trades = append(n.trades, t)
}

func (n *fakeNotifier) BroadcastPause(p models.PauseEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pauses = append(n.pauses, p)
}

// fakeTradeRecorder копит записанные сделки
type fakeTradeRecorder struct {
	mu     sync.Mutex
	trades []*models.Trade
	prices []*models.PriceBought
}

func (r *fakeTradeRecorder) RecordTrade(t *models.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
	return nil
}

func (r *fakeTradeRecorder) RecordPriceBought(p *models.PriceBought) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices = append(r.prices, p)
	return nil
}
