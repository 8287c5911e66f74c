package bot

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/teusbenschop/cryptobot-sub002/internal/exchange"
	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

// twoVenueSetup - пара бирж с гарантированным спредом: на alpha
// покупаем по 100, на beta продаём по 102
func twoVenueSetup() (*exchange.Registry, *fakeExchange, *fakeExchange) {
	alpha := &fakeExchange{
		name: "alpha",
		orderBook: func(market, coin, side string) (*exchange.OrderBookSide, error) {
			if side == exchange.SideSell {
				return bookOf("alpha", market, coin, side, [2]float64{100, 2}), nil
			}
			return bookOf("alpha", market, coin, side, [2]float64{99, 2}), nil
		},
	}
	beta := &fakeExchange{
		name: "beta",
		orderBook: func(market, coin, side string) (*exchange.OrderBookSide, error) {
			if side == exchange.SideSell {
				return bookOf("beta", market, coin, side, [2]float64{103, 2}), nil
			}
			return bookOf("beta", market, coin, side, [2]float64{102, 2}), nil
		},
	}
	registry := exchange.NewRegistry()
	registry.Add(alpha)
	registry.Add(beta)
	return registry, alpha, beta
}

func newTestExecutor(registry *exchange.Registry, ledger *Ledger, trades TradeRecorder, notify Notifier) *Executor {
	logger := zap.NewNop()
	pauses := NewPauseTable()
	reporter := NewReporter(logger, notify)
	classifier := NewClassifier(pauses, nil, reporter, logger)
	return NewExecutor(registry, ledger, pauses, NewMinSizeTable(), classifier,
		trades, reporter, testTradingConfig(), nil, nil, logger)
}

func TestRemoveVenue(t *testing.T) {
	got := removeVenue([]string{"alpha", "beta", "gamma"}, "beta")
	want := []string{"alpha", "gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("removeVenue = %v, ожидалось %v", got, want)
	}

	got = removeVenue([]string{"alpha"}, "missing")
	if !reflect.DeepEqual(got, []string{"alpha"}) {
		t.Errorf("removeVenue = %v, ожидался исходный набор", got)
	}
}

func TestSelectCombo(t *testing.T) {
	registry, _, _ := twoVenueSetup()
	ledger := NewLedger()
	e := newTestExecutor(registry, ledger, &fakeTradeRecorder{}, nil)
	pair := TradingPair{Market: "USDT", Coin: "LTC", Exchanges: []string{"alpha", "beta"}}

	t.Run("выбирается связка с максимальным спредом", func(t *testing.T) {
		books := e.fetchBooks(context.Background(), pair, pair.Exchanges)
		combo := e.selectCombo(pair, books, NewFeedback("test"))

		if combo == nil {
			t.Fatal("связка не найдена")
		}
		if combo.askVenue != "alpha" || combo.bidVenue != "beta" {
			t.Errorf("связка %s→%s, ожидалась alpha→beta", combo.askVenue, combo.bidVenue)
		}
	})

	t.Run("пауза биржи исключает её из перебора", func(t *testing.T) {
		e.pauses.Pause("beta", "USDT", "LTC", time.Hour, "test", time.Now())
		defer e.pauses.Pause("beta", "USDT", "LTC", -time.Hour, "expire", time.Now())

		books := e.fetchBooks(context.Background(), pair, pair.Exchanges)
		combo := e.selectCombo(pair, books, NewFeedback("test"))

		// Без beta ни одна пара bid > ask не складывается
		if combo != nil {
			t.Errorf("связка %s→%s найдена, ожидался nil", combo.askVenue, combo.bidVenue)
		}
	})
}

// Полный проход: одна итерация находит спред, условно списывает
// балансы, отправляет обе ноги и убирает обе биржи из набора
func TestRunPairExecutesTrade(t *testing.T) {
	registry, _, _ := twoVenueSetup()
	ledger := NewLedger()
	ledger.Lock()
	ledger.Commit("alpha", "USDT", 1000, 1000, 0, 0)
	ledger.Commit("beta", "LTC", 10, 10, 0, 0)
	ledger.Unlock()

	recorder := &fakeTradeRecorder{}
	notifier := &fakeNotifier{}
	e := newTestExecutor(registry, ledger, recorder, notifier)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.RunPair(ctx, TradingPair{Market: "USDT", Coin: "LTC", Exchanges: []string{"alpha", "beta"}})

	if len(recorder.trades) != 1 {
		t.Fatalf("записано %d сделок, ожидалась 1", len(recorder.trades))
	}
	trade := recorder.trades[0]
	if trade.Status != models.TradeStatusSubmitted {
		t.Errorf("Status = %q, ожидался %q", trade.Status, models.TradeStatusSubmitted)
	}
	if trade.AskExchange != "alpha" || trade.BidExchange != "beta" {
		t.Errorf("связка %s→%s, ожидалась alpha→beta", trade.AskExchange, trade.BidExchange)
	}
	if !almostEqual(trade.Quantity, 2) {
		t.Errorf("Quantity = %v, ожидалось 2", trade.Quantity)
	}
	if !almostEqual(trade.AskRate, 100) || !almostEqual(trade.BidRate, 102) {
		t.Errorf("цены %v/%v, ожидались 100/102", trade.AskRate, trade.BidRate)
	}
	if trade.BuyOrderID == "" || trade.SellOrderID == "" {
		t.Errorf("не записаны идентификаторы ордеров: %+v", trade)
	}

	if len(recorder.prices) != 1 {
		t.Errorf("записано %d цен покупки, ожидалась 1", len(recorder.prices))
	}

	// Сделка уходит наблюдателям вместе с записью в хранилище
	if len(notifier.trades) != 1 {
		t.Fatalf("разослано %d сделок, ожидалась 1", len(notifier.trades))
	}
	if notifier.trades[0] != trade {
		t.Errorf("наблюдателям ушла не та сделка: %+v", notifier.trades[0])
	}

	// Условное списание: стоимость покупки ушла с alpha, монета с beta
	ledger.Lock()
	market := ledger.Read("alpha", "USDT")
	coin := ledger.Read("beta", "LTC")
	ledger.Unlock()
	if math.Abs(market.Available-800) > 1e-9 {
		t.Errorf("alpha/USDT available = %v, ожидалось 800", market.Available)
	}
	if math.Abs(coin.Available-8) > 1e-9 {
		t.Errorf("beta/LTC available = %v, ожидалось 8", coin.Available)
	}
}

// Устаревшие стаканы прерывают итерацию без сделки
func TestIterateAbortsOnStaleBooks(t *testing.T) {
	registry, _, _ := twoVenueSetup()
	ledger := NewLedger()
	ledger.Lock()
	ledger.Commit("alpha", "USDT", 1000, 1000, 0, 0)
	ledger.Commit("beta", "LTC", 10, 10, 0, 0)
	ledger.Unlock()

	recorder := &fakeTradeRecorder{}
	e := newTestExecutor(registry, ledger, recorder, nil)
	e.cfg.BookStaleAfter = -time.Second // любой стакан считается устаревшим

	pair := TradingPair{Market: "USDT", Coin: "LTC", Exchanges: []string{"alpha", "beta"}}
	working := e.iterate(context.Background(), pair, pair.Exchanges)

	if len(recorder.trades) != 0 {
		t.Errorf("записано %d сделок, ожидалось 0", len(recorder.trades))
	}
	if len(working) != 2 {
		t.Errorf("рабочий набор %v, не должен меняться", working)
	}
}

// Обнулённое балансом количество убирает только биржу бедной стороны
func TestIterateDropsVenueOnLowBalance(t *testing.T) {
	registry, _, _ := twoVenueSetup()
	ledger := NewLedger()
	ledger.Lock()
	ledger.Commit("alpha", "USDT", 0.0004, 0.0004, 0, 0) // пыль
	ledger.Commit("beta", "LTC", 10, 10, 0, 0)
	ledger.Unlock()

	recorder := &fakeTradeRecorder{}
	e := newTestExecutor(registry, ledger, recorder, nil)

	pair := TradingPair{Market: "USDT", Coin: "LTC", Exchanges: []string{"alpha", "beta"}}
	working := e.iterate(context.Background(), pair, pair.Exchanges)

	if len(recorder.trades) != 0 {
		t.Errorf("записано %d сделок, ожидалось 0", len(recorder.trades))
	}
	if !reflect.DeepEqual(working, []string{"beta"}) {
		t.Errorf("рабочий набор %v, ожидался [beta]", working)
	}
}

// Недоступность всех стаканов завершает итерацию с исходом fetch_failed
func TestIterateAllFetchesFailed(t *testing.T) {
	down := func(string, string, string) (*exchange.OrderBookSide, error) {
		return nil, errors.New("connection refused")
	}
	registry := exchange.NewRegistry()
	registry.Add(&fakeExchange{name: "alpha", orderBook: down})
	registry.Add(&fakeExchange{name: "beta", orderBook: down})

	ledger := NewLedger()
	ledger.Lock()
	ledger.Commit("alpha", "USDT", 1000, 1000, 0, 0)
	ledger.Commit("beta", "LTC", 10, 10, 0, 0)
	ledger.Unlock()

	recorder := &fakeTradeRecorder{}
	e := newTestExecutor(registry, ledger, recorder, nil)

	before := testutil.ToFloat64(EvaluationsTotal.WithLabelValues("fetch_failed"))
	pair := TradingPair{Market: "USDT", Coin: "LTC", Exchanges: []string{"alpha", "beta"}}
	working := e.iterate(context.Background(), pair, pair.Exchanges)
	after := testutil.ToFloat64(EvaluationsTotal.WithLabelValues("fetch_failed"))

	if len(recorder.trades) != 0 {
		t.Errorf("записано %d сделок, ожидалось 0", len(recorder.trades))
	}
	if len(working) != 2 {
		t.Errorf("рабочий набор %v, не должен меняться", working)
	}
	if diff := after - before; math.Abs(diff-1) > 1e-9 {
		t.Errorf("fetch_failed вырос на %v, ожидался 1", diff)
	}
}
