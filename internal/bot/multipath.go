package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teusbenschop/cryptobot-sub002/internal/config"
	"github.com/teusbenschop/cryptobot-sub002/internal/exchange"
	"github.com/teusbenschop/cryptobot-sub002/internal/models"
	"github.com/teusbenschop/cryptobot-sub002/pkg/retry"
	"github.com/teusbenschop/cryptobot-sub002/pkg/utils"
)

// ============================================================
// Машина состояний мультипути
// ============================================================
//
// Мультипуть - цепочка из четырёх ног покупка/продажа на одной бирже.
// Каждая нога проходит фазы place → (uncertain →) placed → balance good,
// статус сохраняется в хранилище после КАЖДОГО перехода: прогресс
// переживает перезапуск процесса, и возобновлённый план продолжает
// ровно с той фазы, где остановился.

// MultipathStore - персистентное хранилище планов
type MultipathStore interface {
	// LoadMultipaths возвращает нетерминальные планы, старые первыми
	LoadMultipaths(ctx context.Context) ([]*models.Multipath, error)

	// SaveMultipath сохраняет статус, ноги и флаг executing плана
	SaveMultipath(ctx context.Context, m *models.Multipath) error
}

// PathRunner исполняет один мультипуть от текущего статуса до терминала
type PathRunner struct {
	registry *exchange.Registry
	ledger   *Ledger
	store    MultipathStore
	reporter *Reporter
	cfg      config.TradingConfig

	// ease-процент каждой биржи
	ease map[string]float64

	logger *zap.Logger
}

// NewPathRunner создаёт исполнитель мультипутей
func NewPathRunner(
	registry *exchange.Registry,
	ledger *Ledger,
	store MultipathStore,
	reporter *Reporter,
	cfg config.TradingConfig,
	ease map[string]float64,
	logger *zap.Logger,
) *PathRunner {
	return &PathRunner{
		registry: registry,
		ledger:   ledger,
		store:    store,
		reporter: reporter,
		cfg:      cfg,
		ease:     ease,
		logger:   logger,
	}
}

// Run ведёт план через машину состояний до терминального статуса или
// отмены контекста. Флаг executing снимается безусловно на выходе,
// даже при ошибке: зависший флаг навсегда исключил бы план из выборки
// планировщика.
func (r *PathRunner) Run(ctx context.Context, plan *models.Multipath) {
	plan.Executing = true
	r.persist(plan)
	MultipathActive.Inc()

	defer func() {
		plan.Executing = false
		r.persist(plan)
		MultipathActive.Dec()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if models.MultipathTerminal(plan.Status) {
			return
		}

		next, err := r.step(ctx, plan)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Конец окна: план остаётся в текущем статусе и будет
				// возобновлён в следующем окне
				return
			}
			r.logger.Error("multipath step failed",
				zap.Int64("plan", plan.ID),
				zap.String("status", plan.Status),
				zap.Error(err))
			next = models.MultipathError
		}

		r.transition(plan, next)
	}
}

// transition переводит план в новый статус и сохраняет его
func (r *PathRunner) transition(plan *models.Multipath, status string) {
	if status == plan.Status {
		return
	}
	r.logger.Info("multipath transition",
		zap.Int64("plan", plan.ID),
		zap.String("from", plan.Status),
		zap.String("to", status))
	plan.Status = status
	MultipathTransitions.WithLabelValues(status).Inc()
	r.persist(plan)
}

// persist сохраняет план; ошибка сохранения не прерывает исполнение.
// Потерянный переход заставил бы возобновлённый план повторить уже
// исполненную ногу, поэтому сохранение повторяется с backoff.
func (r *PathRunner) persist(plan *models.Multipath) {
	plan.UpdatedAt = time.Now()
	// Сохранение обязано пройти даже после отмены торгового окна
	err := retry.Do(context.Background(), func() error {
		return r.store.SaveMultipath(context.Background(), plan)
	}, retry.DefaultConfig())
	if err != nil {
		r.logger.Error("failed to persist multipath",
			zap.Int64("plan", plan.ID),
			zap.String("status", plan.Status),
			zap.Error(err))
	}
}

// step выполняет один шаг машины состояний и возвращает следующий статус
func (r *PathRunner) step(ctx context.Context, plan *models.Multipath) (string, error) {
	switch plan.Status {
	case models.MultipathBare:
		return r.investigate(ctx, plan)

	case models.MultipathProfitable:
		return models.MultipathStart, nil

	case models.MultipathStart:
		return models.LegStatus(1, models.PhasePlace), nil
	}

	leg, phase, ok := models.ParseLegStatus(plan.Status)
	if !ok {
		return "", fmt.Errorf("unknown multipath status %q", plan.Status)
	}

	switch phase {
	case models.PhasePlace:
		return r.placeLeg(ctx, plan, leg)
	case models.PhaseUncertain:
		return r.verifyLeg(ctx, plan, leg)
	case models.PhasePlaced:
		return models.LegStatus(leg, models.PhaseBalanceGood), nil
	case models.PhaseBalanceGood:
		return r.awaitBalance(ctx, plan, leg)
	}
	return "", fmt.Errorf("unknown leg phase %d", phase)
}

// investigate проверяет выполнимость плана по текущим стаканам.
//
// Исходы: мёртвый или недоступный стакан любой ноги - unrecoverable;
// отрицательная оценка дохода - unprofitable; иначе profitable с
// записанной оценкой.
func (r *PathRunner) investigate(ctx context.Context, plan *models.Multipath) (string, error) {
	exch, err := r.registry.Get(plan.Exchange)
	if err != nil {
		return models.MultipathUnrecoverable, nil
	}

	fb := NewFeedback("multipath %d investigation on %s", plan.ID, plan.Exchange)
	defer r.reporter.Flush(fb)

	var cost, proceeds float64
	for i := range plan.Legs {
		leg := i + 1
		spec := &plan.Legs[i]

		offers, err := r.fetchLegBook(ctx, exch, spec, leg)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			fb.Addf("leg %d: book unavailable: %v", leg, err)
			return models.MultipathUnrecoverable, nil
		}
		if !BookGood(offers, 0) {
			fb.Addf("leg %d: order book degenerate after filtering", leg)
			return models.MultipathUnrecoverable, nil
		}

		quantity := spec.Quantity
		if quantity <= 0 {
			quantity = offers[0].Quantity
		}
		rate, available := RateForQuantity(offers, quantity)
		if available <= 0 {
			fb.Addf("leg %d: no volume available", leg)
			return models.MultipathUnrecoverable, nil
		}
		rate = r.easeRate(plan.Exchange, rate, leg)

		if models.LegOp(leg) == exchange.SideBuy {
			cost += available * rate
		} else {
			proceeds += available * rate
		}
		fb.Addf("leg %d: %s %.8f %s/%s @ %.8f",
			leg, models.LegOp(leg), available, spec.Market, spec.Coin, rate)
	}

	if cost <= 0 {
		return models.MultipathUnrecoverable, nil
	}
	gain := (proceeds - cost) / cost * 100
	plan.GainEstimate = gain
	fb.Addf("gain estimate %.4f%%", gain)

	if gain < 0 {
		return models.MultipathUnprofitable, nil
	}
	return models.MultipathProfitable, nil
}

// placeLeg выставляет лимитный ордер очередной ноги.
//
// Исходы: подтверждённое размещение - placed; таймаут без ответа
// (результат на бирже неизвестен) - uncertain; явный отказ - error.
func (r *PathRunner) placeLeg(ctx context.Context, plan *models.Multipath, leg int) (string, error) {
	exch, err := r.registry.Get(plan.Exchange)
	if err != nil {
		return "", err
	}
	spec := &plan.Legs[leg-1]
	op := models.LegOp(leg)

	offers, err := r.fetchLegBook(ctx, exch, spec, leg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("leg %d book fetch: %w", leg, err)
	}
	if !BookGood(offers, 0) {
		return "", fmt.Errorf("leg %d: order book degenerate", leg)
	}

	// Количество ноги: план может задать его заранее, иначе берём
	// безопасную долю доступного баланса под блокировкой леджера
	quantity := spec.Quantity
	if quantity <= 0 {
		best := offers[0].Rate
		r.ledger.Lock()
		if op == exchange.SideBuy {
			bal := r.ledger.Read(plan.Exchange, spec.Market)
			if best > 0 {
				quantity = BalanceSafetyFactor * bal.Available / best
			}
		} else {
			bal := r.ledger.Read(plan.Exchange, spec.Coin)
			quantity = BalanceSafetyFactor * bal.Available
		}
		r.ledger.Unlock()
	}

	// Реальная цена исполнения на это количество; глубины может не хватить
	rate, available := RateForQuantity(offers, quantity)
	if quantity > available {
		quantity = available
	}
	// Усечение вниз: округление вверх рискует превысить доступный баланс,
	// а биржи отклоняют количества с лишними знаками
	quantity = utils.RoundDown(quantity, 8)
	if quantity <= 0 {
		return "", fmt.Errorf("leg %d: no executable quantity", leg)
	}
	rate = r.easeRate(plan.Exchange, rate, leg)

	orderCtx, cancel := context.WithTimeout(ctx, r.cfg.OrderTimeout)
	defer cancel()

	start := time.Now()
	orderID, raw, placeErr := exch.PlaceLimitOrder(orderCtx, spec.Market, spec.Coin, quantity, rate, op)
	OrderSubmitLatency.WithLabelValues(plan.Exchange, op).Observe(time.Since(start).Seconds())

	spec.Quantity = quantity
	spec.Rate = rate
	spec.OrderID = orderID

	if placeErr != nil {
		// Таймаут не означает отказ: ордер мог быть принят биржей.
		// Помечаем ногу неопределённой и сверяем её состояние отдельно.
		if errors.Is(placeErr, context.DeadlineExceeded) && ctx.Err() == nil {
			r.logger.Warn("leg placement ambiguous",
				zap.Int64("plan", plan.ID),
				zap.Int("leg", leg),
				zap.Error(placeErr))
			return models.LegStatus(leg, models.PhaseUncertain), nil
		}
		return "", fmt.Errorf("leg %d placement: %w (raw %s)", leg, placeErr, raw)
	}
	if orderID == "" {
		return "", fmt.Errorf("leg %d: order placed without an order id (raw %s)", leg, raw)
	}

	return models.LegStatus(leg, models.PhasePlaced), nil
}

// verifyLeg сверяет ногу после неоднозначного размещения.
//
// Ордер найден на бирже - нога фактически размещена; ордера нет -
// размещение не прошло, повторяем выставление; сверка не удалась
// после повторных попыток - терминальная ошибка.
func (r *PathRunner) verifyLeg(ctx context.Context, plan *models.Multipath, leg int) (string, error) {
	exch, err := r.registry.Get(plan.Exchange)
	if err != nil {
		return "", err
	}
	spec := &plan.Legs[leg-1]

	if spec.OrderID == "" {
		// Биржа не выдала идентификатор - сверять нечего, размещаем заново
		return models.LegStatus(leg, models.PhasePlace), nil
	}

	cfg := retry.ConservativeConfig()
	cfg.RetryIf = retry.RetryIfNotContext
	order, err := retry.DoWithResult(ctx, func() (*exchange.Order, error) {
		return exch.GetOrder(ctx, spec.OrderID)
	}, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("leg %d verification: %w", leg, err)
	}

	if order == nil || order.Status == exchange.OrderStatusUnknown {
		return models.LegStatus(leg, models.PhasePlace), nil
	}
	return models.LegStatus(leg, models.PhasePlaced), nil
}

// awaitBalance ждёт поступления выручки ноги на баланс биржи.
//
// Покупка приносит монету ноги, продажа - базовую валюту рынка.
// Баланс опрашивается с шагом BalancePollInterval; не дождались за
// BalancePollTimeout - терминальная ошибка (средства застряли, нужен
// оператор). Дождались - свежий баланс коммитится в леджер и машина
// переходит к следующей ноге или в done.
func (r *PathRunner) awaitBalance(ctx context.Context, plan *models.Multipath, leg int) (string, error) {
	exch, err := r.registry.Get(plan.Exchange)
	if err != nil {
		return "", err
	}
	spec := &plan.Legs[leg-1]

	var coin string
	var expected float64
	if models.LegOp(leg) == exchange.SideBuy {
		coin = spec.Coin
		expected = spec.Quantity
	} else {
		coin = spec.Market
		expected = spec.Quantity * spec.Rate
	}
	// Комиссия биржи уменьшает фактическое поступление
	expected *= 0.99

	deadline := time.Now().Add(r.cfg.BalancePollTimeout)
	for {
		bal, err := exch.GetBalance(ctx, coin)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			r.logger.Warn("balance poll failed",
				zap.Int64("plan", plan.ID),
				zap.Int("leg", leg),
				zap.String("coin", coin),
				zap.Error(err))
		} else if bal.Available >= expected {
			r.ledger.Lock()
			r.ledger.Commit(plan.Exchange, coin, bal.Total, bal.Available, bal.Reserved, bal.Unconfirmed)
			r.ledger.Unlock()

			if leg >= models.MultipathLegCount {
				return models.MultipathDone, nil
			}
			return models.LegStatus(leg+1, models.PhasePlace), nil
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("leg %d: balance of %s did not arrive within %v (expected %.8f, have %.8f)",
				leg, coin, r.cfg.BalancePollTimeout, expected, balAvailable(bal))
		}
		if !sleepCtx(ctx, r.cfg.BalancePollInterval) {
			return "", ctx.Err()
		}
	}
}

// fetchLegBook получает и фильтрует сторону стакана, которую потребляет
// нога: покупка снимает предложения продавцов, продажа - покупателей
func (r *PathRunner) fetchLegBook(ctx context.Context, exch exchange.Exchange, spec *models.MultipathLeg, leg int) ([]exchange.Offer, error) {
	side := exchange.SideSell
	if models.LegOp(leg) == exchange.SideSell {
		side = exchange.SideBuy
	}

	start := time.Now()
	book, err := exch.GetOrderBook(ctx, spec.Market, spec.Coin, side)
	BookFetchLatency.WithLabelValues(exch.GetName()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return FilterDust(book.Offers, r.cfg.DustNotional), nil
}

// easeRate корректирует цену ноги на ease-процент биржи: покупаем
// чуть дороже, продаём чуть дешевле, чтобы исполниться немедленно
func (r *PathRunner) easeRate(exchangeName string, rate float64, leg int) float64 {
	ease := r.ease[exchangeName]
	if models.LegOp(leg) == exchange.SideBuy {
		return rate * (1 + ease/100)
	}
	return utils.ClampNonNegative(rate * (1 - ease/100))
}

func balAvailable(b *exchange.Balance) float64 {
	if b == nil {
		return 0
	}
	return b.Available
}
