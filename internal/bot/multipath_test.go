package bot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teusbenschop/cryptobot-sub002/internal/config"
	"github.com/teusbenschop/cryptobot-sub002/internal/exchange"
	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

func testTradingConfig() config.TradingConfig {
	return config.TradingConfig{
		WindowDuration:       time.Minute,
		ArbitragePace:        0,
		BookStaleAfter:       7 * time.Second,
		SchedulerTick:        time.Millisecond,
		MultipathConcurrency: 6,
		OrderTimeout:         time.Second,
		BalancePollInterval:  time.Millisecond,
		BalancePollTimeout:   time.Second,
		DustNotional:         0.0005,
	}
}

// fourLegPlan собирает план: ноги 1 и 3 покупают, 2 и 4 продают
func fourLegPlan(id int64, exchangeName string) *models.Multipath {
	return &models.Multipath{
		ID:       id,
		Exchange: exchangeName,
		Status:   models.MultipathBare,
		Legs: [models.MultipathLegCount]models.MultipathLeg{
			{Market: "USDT", Coin: "LTC", Quantity: 1},
			{Market: "USDT", Coin: "LTC", Quantity: 1},
			{Market: "USDT", Coin: "DOGE", Quantity: 1},
			{Market: "USDT", Coin: "DOGE", Quantity: 1},
		},
	}
}

// profitableExchange - биржа, на которой каждая нога исполняется сразу:
// покупаем по 100, продаём по 102, баланс всегда достаточный
func profitableExchange(name string) *fakeExchange {
	orderSeq := 0
	return &fakeExchange{
		name: name,
		orderBook: func(market, coin, side string) (*exchange.OrderBookSide, error) {
			if side == exchange.SideSell {
				return bookOf(name, market, coin, side, [2]float64{100, 10}), nil
			}
			return bookOf(name, market, coin, side, [2]float64{102, 10}), nil
		},
		balance: func(coin string) (*exchange.Balance, error) {
			return &exchange.Balance{Coin: coin, Total: 1000, Available: 1000}, nil
		},
		placeOrder: func(_, _ string, _, _ float64, _ string) (string, string, error) {
			orderSeq++
			return fmt.Sprintf("order-%d", orderSeq), "", nil
		},
	}
}

func newTestRunner(exch exchange.Exchange, store MultipathStore) *PathRunner {
	registry := exchange.NewRegistry()
	registry.Add(exch)
	logger := zap.NewNop()
	return NewPathRunner(registry, NewLedger(), store, NewReporter(logger, nil), testTradingConfig(), nil, logger)
}

// План проходит все четыре ноги в строгом порядке и завершается в done
func TestMultipathFullProgression(t *testing.T) {
	store := &fakeMultipathStore{}
	runner := newTestRunner(profitableExchange("alpha"), store)
	plan := fourLegPlan(1, "alpha")

	runner.Run(context.Background(), plan)

	if plan.Status != models.MultipathDone {
		t.Fatalf("Status = %q, ожидался %q", plan.Status, models.MultipathDone)
	}
	if plan.Executing {
		t.Error("флаг executing должен быть снят после завершения")
	}

	want := []string{
		models.MultipathBare, // первое сохранение с executing=true
		models.MultipathProfitable,
		models.MultipathStart,
		"buy1place", "buy1placed", "balance1good",
		"sell2place", "sell2placed", "balance2good",
		"buy3place", "buy3placed", "balance3good",
		"sell4place", "sell4placed", "balance4good",
		models.MultipathDone,
		models.MultipathDone, // финальное сохранение с executing=false
	}
	if got := store.saved(); !reflect.DeepEqual(got, want) {
		t.Errorf("последовательность сохранённых статусов:\n got %v\nwant %v", got, want)
	}

	for i, leg := range plan.Legs {
		if leg.OrderID == "" {
			t.Errorf("нога %d: не записан идентификатор ордера", i+1)
		}
		if leg.Rate <= 0 {
			t.Errorf("нога %d: не записана цена", i+1)
		}
	}
	if plan.GainEstimate <= 0 {
		t.Errorf("GainEstimate = %v, ожидалась положительная оценка", plan.GainEstimate)
	}
}

// Отказ размещения терминализует план в error, флаг executing снимается
func TestMultipathPlacementErrorTerminal(t *testing.T) {
	exch := profitableExchange("alpha")
	exch.placeOrder = func(_, _ string, _, _ float64, _ string) (string, string, error) {
		return "", "", errors.New("insufficient funds")
	}
	store := &fakeMultipathStore{}
	runner := newTestRunner(exch, store)
	plan := fourLegPlan(2, "alpha")

	runner.Run(context.Background(), plan)

	if plan.Status != models.MultipathError {
		t.Fatalf("Status = %q, ожидался %q", plan.Status, models.MultipathError)
	}
	if plan.Executing {
		t.Error("флаг executing должен быть снят даже при ошибке")
	}
}

// Разведка: отрицательная оценка дохода сворачивает план в unprofitable
func TestMultipathInvestigationUnprofitable(t *testing.T) {
	exch := profitableExchange("alpha")
	exch.orderBook = func(market, coin, side string) (*exchange.OrderBookSide, error) {
		if side == exchange.SideSell {
			return bookOf("alpha", market, coin, side, [2]float64{100, 10}), nil
		}
		return bookOf("alpha", market, coin, side, [2]float64{90, 10}), nil
	}
	runner := newTestRunner(exch, &fakeMultipathStore{})
	plan := fourLegPlan(3, "alpha")

	runner.Run(context.Background(), plan)

	if plan.Status != models.MultipathUnprofitable {
		t.Errorf("Status = %q, ожидался %q", plan.Status, models.MultipathUnprofitable)
	}
}

// Разведка: недоступный стакан сворачивает план в unrecoverable
func TestMultipathInvestigationUnrecoverable(t *testing.T) {
	exch := profitableExchange("alpha")
	exch.orderBook = func(_, _, _ string) (*exchange.OrderBookSide, error) {
		return nil, errors.New("market offline")
	}
	runner := newTestRunner(exch, &fakeMultipathStore{})
	plan := fourLegPlan(4, "alpha")

	runner.Run(context.Background(), plan)

	if plan.Status != models.MultipathUnrecoverable {
		t.Errorf("Status = %q, ожидался %q", plan.Status, models.MultipathUnrecoverable)
	}
}

// Таймаут размещения переводит ногу в uncertain, сверка через GetOrder
// возвращает её в placed или обратно в place
func TestMultipathUncertainLeg(t *testing.T) {
	exch := profitableExchange("alpha")
	exch.placeOrder = func(_, _ string, _, _ float64, _ string) (string, string, error) {
		return "", "", fmt.Errorf("place order: %w", context.DeadlineExceeded)
	}
	runner := newTestRunner(exch, &fakeMultipathStore{})
	plan := fourLegPlan(5, "alpha")
	plan.Status = "buy1place"

	next, err := runner.step(context.Background(), plan)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if next != "buy1uncertain" {
		t.Fatalf("next = %q, ожидался buy1uncertain", next)
	}

	// Без идентификатора сверять нечего: размещаем заново
	plan.Status = next
	next, err = runner.step(context.Background(), plan)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if next != "buy1place" {
		t.Errorf("next = %q, ожидался buy1place", next)
	}

	// Ордер найден на бирже: нога фактически размещена
	plan.Legs[0].OrderID = "order-77"
	plan.Status = "buy1uncertain"
	next, err = runner.step(context.Background(), plan)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if next != "buy1placed" {
		t.Errorf("next = %q, ожидался buy1placed", next)
	}

	// Биржа не знает такого ордера: размещение не прошло
	exch.getOrder = func(orderID string) (*exchange.Order, error) {
		return &exchange.Order{ID: orderID, Status: exchange.OrderStatusUnknown}, nil
	}
	plan.Status = "buy1uncertain"
	next, err = runner.step(context.Background(), plan)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if next != "buy1place" {
		t.Errorf("next = %q, ожидался buy1place", next)
	}
}

// Выведенное из баланса количество усекается вниз до восьми знаков:
// округление вверх рискует превысить доступный остаток
func TestPlaceLegDerivedQuantityTruncated(t *testing.T) {
	var placedQty float64
	exch := profitableExchange("alpha")
	exch.orderBook = func(market, coin, side string) (*exchange.OrderBookSide, error) {
		return bookOf("alpha", market, coin, side, [2]float64{3, 10}), nil
	}
	exch.placeOrder = func(_, _ string, quantity, _ float64, _ string) (string, string, error) {
		placedQty = quantity
		return "order-1", "", nil
	}
	runner := newTestRunner(exch, &fakeMultipathStore{})
	runner.ledger.Lock()
	runner.ledger.Commit("alpha", "USDT", 1, 1, 0, 0)
	runner.ledger.Unlock()

	plan := fourLegPlan(7, "alpha")
	plan.Legs[0].Quantity = 0 // количество выводится из баланса
	plan.Status = "buy1place"

	next, err := runner.step(context.Background(), plan)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if next != "buy1placed" {
		t.Fatalf("next = %q, ожидался buy1placed", next)
	}

	// 0.95 * 1 / 3 = 0.31666666... → ровно восемь знаков после усечения
	if !almostEqual(placedQty, 0.31666666) {
		t.Errorf("размещено количество %.12f, ожидалось 0.31666666", placedQty)
	}
	if !almostEqual(plan.Legs[0].Quantity, 0.31666666) {
		t.Errorf("в ноге записано %.12f, ожидалось 0.31666666", plan.Legs[0].Quantity)
	}
	if plan.Legs[0].OrderID == "" {
		t.Error("не записан идентификатор ордера")
	}
}

// flakySaveStore отклоняет первые failures сохранений
type flakySaveStore struct {
	failures int
	calls    int
}

func (s *flakySaveStore) LoadMultipaths(context.Context) ([]*models.Multipath, error) {
	return nil, nil
}

func (s *flakySaveStore) SaveMultipath(context.Context, *models.Multipath) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("connection reset")
	}
	return nil
}

// Сохранение плана повторяется до успеха: потерянный переход заставил
// бы возобновлённый план повторить уже исполненную ногу
func TestPersistRetriesTransientFailure(t *testing.T) {
	store := &flakySaveStore{failures: 2}
	runner := newTestRunner(profitableExchange("alpha"), store)
	plan := fourLegPlan(8, "alpha")
	plan.Status = "balance2good"

	runner.persist(plan)

	if store.calls != 3 {
		t.Errorf("выполнено %d попыток сохранения, ожидались 3", store.calls)
	}
	if plan.UpdatedAt.IsZero() {
		t.Error("UpdatedAt должен обновляться при сохранении")
	}
}

// Возобновлённый план продолжает с сохранённого статуса, не повторяя
// уже исполненные ноги
func TestMultipathResumeFromPersistedStatus(t *testing.T) {
	placed := 0
	exch := profitableExchange("alpha")
	base := exch.placeOrder
	exch.placeOrder = func(market, coin string, quantity, rate float64, side string) (string, string, error) {
		placed++
		return base(market, coin, quantity, rate, side)
	}
	runner := newTestRunner(exch, &fakeMultipathStore{})
	plan := fourLegPlan(6, "alpha")
	plan.Status = "balance2good"

	runner.Run(context.Background(), plan)

	if plan.Status != models.MultipathDone {
		t.Fatalf("Status = %q, ожидался %q", plan.Status, models.MultipathDone)
	}
	if placed != 2 {
		t.Errorf("размещено %d ордеров, ожидалось 2 (только ноги 3 и 4)", placed)
	}
}
