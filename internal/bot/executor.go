package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teusbenschop/cryptobot-sub002/internal/config"
	"github.com/teusbenschop/cryptobot-sub002/internal/exchange"
	"github.com/teusbenschop/cryptobot-sub002/internal/models"
	"github.com/teusbenschop/cryptobot-sub002/pkg/utils"
)

// TradeRecorder сохраняет результаты сделок во внешнее хранилище
type TradeRecorder interface {
	RecordTrade(trade *models.Trade) error
	RecordPriceBought(price *models.PriceBought) error
}

// TradingPair - пара рынок/монета с рабочим набором бирж.
// Набор живёт только до конца текущего торгового окна.
type TradingPair struct {
	Market    string
	Coin      string
	Exchanges []string
}

// Executor - арбитражный исполнитель: один воркер на торговую пару.
//
// Цикл итерации:
//  1. параллельно получить стаканы всех бирж рабочего набора;
//  2. выбрать лучшую связку bid > ask из всех комбинаций бирж;
//  3. под общей блокировкой леджера: прочитать балансы, вызвать
//     процессор, условно списать средства (чтобы параллельные пары,
//     делящие биржу/монету, не закоммитили одни и те же деньги);
//  4. отпустить блокировку ДО любого сетевого вызова;
//  5. отправить обе ноги параллельно, дождаться обеих, параллельно
//     прогнать классификатор, сохранить сделку.
//
// Сбои итерации никогда не роняют воркер: следующая итерация
// оценивает рынок заново.
type Executor struct {
	registry   *exchange.Registry
	ledger     *Ledger
	pauses     *PauseTable
	minSizes   *MinSizeTable
	classifier *Classifier
	trades     TradeRecorder
	reporter   *Reporter
	cfg        config.TradingConfig

	// ease-процент каждой биржи: наценка за немедленное исполнение
	ease map[string]float64

	// понедельный гейт торговли (сейчас всегда true)
	dayGate func(time.Time) bool

	logger *zap.Logger
}

// NewExecutor создаёт арбитражный исполнитель
func NewExecutor(
	registry *exchange.Registry,
	ledger *Ledger,
	pauses *PauseTable,
	minSizes *MinSizeTable,
	classifier *Classifier,
	trades TradeRecorder,
	reporter *Reporter,
	cfg config.TradingConfig,
	ease map[string]float64,
	dayGate func(time.Time) bool,
	logger *zap.Logger,
) *Executor {
	if dayGate == nil {
		dayGate = func(time.Time) bool { return true }
	}
	return &Executor{
		registry:   registry,
		ledger:     ledger,
		pauses:     pauses,
		minSizes:   minSizes,
		classifier: classifier,
		trades:     trades,
		reporter:   reporter,
		cfg:        cfg,
		ease:       ease,
		dayGate:    dayGate,
		logger:     logger,
	}
}

// RunPair крутит арбитражный цикл для пары до конца торгового окна
// или пока рабочий набор не сожмётся ниже двух бирж.
func (e *Executor) RunPair(ctx context.Context, pair TradingPair) {
	working := append([]string(nil), pair.Exchanges...)
	first := true

	for {
		if ctx.Err() != nil {
			return
		}
		if len(working) < 2 {
			e.logger.Debug("working set exhausted",
				zap.String("market", pair.Market), zap.String("coin", pair.Coin))
			return
		}

		// Пауза между итерациями (кроме первой)
		if !first {
			if !sleepCtx(ctx, e.cfg.ArbitragePace) {
				return
			}
		}
		first = false

		if !e.dayGate(time.Now()) {
			continue
		}

		working = e.iterate(ctx, pair, working)
	}
}

// venueBooks - обе стороны стакана одной биржи, уже отфильтрованные
type venueBooks struct {
	name string
	asks []exchange.Offer // сторона продавцов: здесь покупаем
	bids []exchange.Offer // сторона покупателей: здесь продаём
	err  error
}

// arbCombo - выбранная связка бирж для арбитража
type arbCombo struct {
	askVenue string // покупаем (минимальный ask)
	bidVenue string // продаём (максимальный bid)
	asks     []exchange.Offer
	bids     []exchange.Offer
	spread   float64
}

// iterate выполняет одну итерацию и возвращает обновлённый рабочий набор
func (e *Executor) iterate(ctx context.Context, pair TradingPair, working []string) []string {
	fb := NewFeedback("arbitrage %s/%s venues=%v", pair.Market, pair.Coin, working)
	defer e.reporter.Flush(fb)

	fetchStart := time.Now()
	books := e.fetchBooks(ctx, pair, working)

	failed := 0
	for _, b := range books {
		if b.err != nil {
			failed++
		}
	}
	if len(books) > 0 && failed == len(books) {
		fb.Addf("all %d book fetches failed, skipping iteration", failed)
		EvaluationsTotal.WithLabelValues("fetch_failed").Inc()
		return working
	}

	combo := e.selectCombo(pair, books, fb)
	if combo == nil {
		EvaluationsTotal.WithLabelValues("no_combo").Inc()
		return working
	}
	fb.Addf("best combo: buy on %s, sell on %s, raw spread %.4f%%",
		combo.askVenue, combo.bidVenue, combo.spread)

	// Порог спреда: оба ease-процента плюс фиксированная маржа
	required := e.ease[combo.askVenue] + e.ease[combo.bidVenue] + FixedMarginPercent
	if combo.spread < required {
		fb.Addf("spread below threshold %.4f%%, skipping", required)
		EvaluationsTotal.WithLabelValues("rejected").Inc()
		return working
	}

	// Устаревшие стаканы обесценивают возможность: цены уже ушли
	if time.Since(fetchStart) > e.cfg.BookStaleAfter {
		fb.Addf("order books stale (%.1fs > %.1fs), aborting iteration",
			time.Since(fetchStart).Seconds(), e.cfg.BookStaleAfter.Seconds())
		EvaluationsTotal.WithLabelValues("stale").Inc()
		return working
	}

	// ============ Критическая секция: решить и условно списать ============
	// Не должна охватывать ни одного сетевого вызова.
	e.ledger.Lock()

	marketBal := e.ledger.Read(combo.askVenue, pair.Market)
	coinBal := e.ledger.Read(combo.bidVenue, pair.Coin)

	decision := DecideArbitrage(ProcessorInput{
		Market:          pair.Market,
		Coin:            pair.Coin,
		AskExchange:     combo.askVenue,
		AskOffers:       combo.asks,
		AskEase:         e.ease[combo.askVenue],
		BidExchange:     combo.bidVenue,
		BidOffers:       combo.bids,
		BidEase:         e.ease[combo.bidVenue],
		MarketAvailable: marketBal.Available,
		CoinAvailable:   coinBal.Available,
		AskMinimum:      e.minSizes.Get(combo.askVenue, pair.Market, pair.Coin),
		BidMinimum:      e.minSizes.Get(combo.bidVenue, pair.Market, pair.Coin),
		DustNotional:    e.cfg.DustNotional,
	})

	if decision.Quantity > 0 {
		// Условное списание: базовая валюта уходит с биржи покупки,
		// монета - с биржи продажи. Параллельные пары увидят урезанные
		// балансы и не закоммитят те же средства.
		cost := decision.Quantity * decision.AskRate
		e.ledger.Commit(combo.askVenue, pair.Market,
			marketBal.Total-cost,
			utils.ClampNonNegative(marketBal.Available-cost),
			marketBal.Reserved, marketBal.Unconfirmed)
		e.ledger.Commit(combo.bidVenue, pair.Coin,
			coinBal.Total-decision.Quantity,
			utils.ClampNonNegative(coinBal.Available-decision.Quantity),
			coinBal.Reserved, coinBal.Unconfirmed)
	}

	e.ledger.Unlock()
	// ============ Конец критической секции ============

	if decision.Quantity > 0 {
		fb.Addf("decision: quantity %.8f, buy@%.8f on %s, sell@%.8f on %s",
			decision.Quantity, decision.AskRate, combo.askVenue, decision.BidRate, combo.bidVenue)
		working = e.executeTrade(ctx, pair, combo, decision, working, fb)
		EvaluationsTotal.WithLabelValues("traded").Inc()
	} else {
		fb.Addf("no trade: %s", decision.Reason)
		EvaluationsTotal.WithLabelValues("rejected").Inc()
	}

	// Балансовые флаги сжимают рабочий набор до конца окна
	if decision.MarketBalanceTooLow {
		working = removeVenue(working, combo.askVenue)
		fb.Addf("dropping %s: market balance too low", combo.askVenue)
	}
	if decision.CoinBalanceTooLow {
		working = removeVenue(working, combo.bidVenue)
		fb.Addf("dropping %s: coin balance too low", combo.bidVenue)
	}

	return working
}

// fetchBooks параллельно получает обе стороны стакана каждой биржи
// рабочего набора и сразу фильтрует их (пыль + минимальный объём)
func (e *Executor) fetchBooks(ctx context.Context, pair TradingPair, working []string) []venueBooks {
	books := make([]venueBooks, len(working))

	var wg sync.WaitGroup
	for i, name := range working {
		wg.Add(1)
		go func(idx int, venueName string) {
			defer wg.Done()
			books[idx] = e.fetchVenue(ctx, pair, venueName)
		}(i, name)
	}
	wg.Wait()

	return books
}

// fetchVenue получает и фильтрует обе стороны стакана одной биржи
func (e *Executor) fetchVenue(ctx context.Context, pair TradingPair, venueName string) venueBooks {
	vb := venueBooks{name: venueName}

	exch, err := e.registry.Get(venueName)
	if err != nil {
		vb.err = err
		return vb
	}

	start := time.Now()

	// Обе стороны параллельно
	type sideResult struct {
		book *exchange.OrderBookSide
		err  error
	}
	askCh := make(chan sideResult, 1)
	bidCh := make(chan sideResult, 1)

	go func() {
		book, err := exch.GetOrderBook(ctx, pair.Market, pair.Coin, exchange.SideSell)
		askCh <- sideResult{book, err}
	}()
	go func() {
		book, err := exch.GetOrderBook(ctx, pair.Market, pair.Coin, exchange.SideBuy)
		bidCh <- sideResult{book, err}
	}()

	askRes := <-askCh
	bidRes := <-bidCh
	BookFetchLatency.WithLabelValues(venueName).Observe(time.Since(start).Seconds())

	if askRes.err != nil {
		vb.err = askRes.err
		return vb
	}
	if bidRes.err != nil {
		vb.err = bidRes.err
		return vb
	}

	minimum := e.minSizes.Get(venueName, pair.Market, pair.Coin)
	vb.asks = FilterMinimumSize(FilterDust(askRes.book.Offers, e.cfg.DustNotional), minimum)
	vb.bids = FilterMinimumSize(FilterDust(bidRes.book.Offers, e.cfg.DustNotional), minimum)
	return vb
}

// selectCombo перебирает все комбинации бирж (покупка, продажа) и
// возвращает связку с максимальным положительным спредом.
// Пропускает биржи с ошибкой получения стакана и тройки на паузе.
func (e *Executor) selectCombo(pair TradingPair, books []venueBooks, fb *Feedback) *arbCombo {
	now := time.Now()
	var best *arbCombo

	for _, askSide := range books {
		if askSide.err != nil {
			fb.Addf("%s: book fetch failed: %v", askSide.name, askSide.err)
			continue
		}
		if len(askSide.asks) == 0 {
			continue
		}
		if e.pauses.Paused(askSide.name, pair.Market, pair.Coin, now) {
			continue
		}
		for _, bidSide := range books {
			if bidSide.err != nil || len(bidSide.bids) == 0 {
				continue
			}
			if e.pauses.Paused(bidSide.name, pair.Market, pair.Coin, now) {
				continue
			}

			bestAsk := askSide.asks[0].Rate
			bestBid := bidSide.bids[0].Rate
			if bestBid <= bestAsk {
				continue
			}

			spread := utils.SpreadPercent(bestAsk, bestBid)
			if best == nil || spread > best.spread {
				best = &arbCombo{
					askVenue: askSide.name,
					bidVenue: bidSide.name,
					asks:     askSide.asks,
					bids:     bidSide.bids,
					spread:   spread,
				}
			}
		}
	}

	return best
}

// legOutcome - исход размещения одной ноги
type legOutcome struct {
	venue   string
	side    string
	orderID string
	raw     string
	err     error
}

// executeTrade отправляет обе ноги параллельно, прогоняет классификатор
// и сохраняет сделку. Возвращает рабочий набор без бирж, которые
// классификатор велел убрать.
func (e *Executor) executeTrade(
	ctx context.Context,
	pair TradingPair,
	combo *arbCombo,
	decision TradeDecision,
	working []string,
	fb *Feedback,
) []string {
	askExch, askErr := e.registry.Get(combo.askVenue)
	bidExch, bidErr := e.registry.Get(combo.bidVenue)
	if askErr != nil || bidErr != nil {
		fb.Addf("exchange lookup failed: ask=%v bid=%v", askErr, bidErr)
		fb.Escalate()
		return working
	}

	orderCtx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	defer cancel()

	// ПАРАЛЛЕЛЬНАЯ отправка обеих ног, порядок между ними не определён
	buyCh := make(chan legOutcome, 1)
	sellCh := make(chan legOutcome, 1)

	go func() {
		start := time.Now()
		orderID, raw, err := askExch.PlaceLimitOrder(orderCtx,
			pair.Market, pair.Coin, decision.Quantity, decision.AskRate, exchange.SideBuy)
		OrderSubmitLatency.WithLabelValues(combo.askVenue, exchange.SideBuy).Observe(time.Since(start).Seconds())
		buyCh <- legOutcome{venue: combo.askVenue, side: exchange.SideBuy, orderID: orderID, raw: raw, err: err}
	}()
	go func() {
		start := time.Now()
		orderID, raw, err := bidExch.PlaceLimitOrder(orderCtx,
			pair.Market, pair.Coin, decision.Quantity, decision.BidRate, exchange.SideSell)
		OrderSubmitLatency.WithLabelValues(combo.bidVenue, exchange.SideSell).Observe(time.Since(start).Seconds())
		sellCh <- legOutcome{venue: combo.bidVenue, side: exchange.SideSell, orderID: orderID, raw: raw, err: err}
	}()

	// Ждём обе ноги: слушаем оба канала одновременно
	var buy, sell legOutcome
	var buyDone, sellDone bool
	for !buyDone || !sellDone {
		select {
		case buy = <-buyCh:
			buyDone = true
		case sell = <-sellCh:
			sellDone = true
		}
	}

	fb.Addf("buy leg on %s: id=%q err=%v", buy.venue, buy.orderID, buy.err)
	fb.Addf("sell leg on %s: id=%q err=%v", sell.venue, sell.orderID, sell.err)

	// Параллельная классификация обеих ног
	now := time.Now()
	verdicts := make([]FollowupVerdict, 2)
	var wg sync.WaitGroup
	for i, leg := range []legOutcome{buy, sell} {
		wg.Add(1)
		go func(idx int, lo legOutcome) {
			defer wg.Done()
			errText := ""
			if lo.err != nil {
				errText = lo.err.Error()
			}
			verdicts[idx] = e.classifier.Apply(lo.venue, pair.Market, pair.Coin, lo.orderID, errText, lo.raw, now)
		}(i, leg)
	}
	wg.Wait()

	// Политика классификатора: биржа с попыткой размещения убирается
	// из рабочего набора - повтор той же пары в этом окне рискует
	// дублирующим ордером
	for i, leg := range []legOutcome{buy, sell} {
		if verdicts[i].RemoveVenue {
			working = removeVenue(working, leg.venue)
		}
		fb.Addf("%s follow-up: rule=%s pause=%v", leg.venue, verdicts[i].Rule, verdicts[i].Pause)
	}

	// Персистентная запись сделки
	status := models.TradeStatusSubmitted
	if buy.err != nil || sell.err != nil {
		status = models.TradeStatusFailed
		fb.Escalate()
	}
	trade := &models.Trade{
		Market:      pair.Market,
		Coin:        pair.Coin,
		AskExchange: combo.askVenue,
		BidExchange: combo.bidVenue,
		Quantity:    decision.Quantity,
		AskRate:     decision.AskRate,
		BidRate:     decision.BidRate,
		BuyOrderID:  buy.orderID,
		SellOrderID: sell.orderID,
		Status:      status,
		CreatedAt:   now,
	}
	if err := e.trades.RecordTrade(trade); err != nil {
		e.logger.Error("failed to record trade", zap.Error(err))
	}
	TradesSubmitted.WithLabelValues(status).Inc()
	e.reporter.Trade(trade)

	if buy.err == nil {
		price := &models.PriceBought{
			Exchange: combo.askVenue,
			Market:   pair.Market,
			Coin:     pair.Coin,
			Rate:     decision.AskRate,
			At:       now,
		}
		if err := e.trades.RecordPriceBought(price); err != nil {
			e.logger.Error("failed to record bought price", zap.Error(err))
		}
	}

	return working
}

// removeVenue возвращает набор без указанной биржи
func removeVenue(working []string, venue string) []string {
	out := working[:0]
	for _, v := range working {
		if v != venue {
			out = append(out, v)
		}
	}
	return out
}

// sleepCtx ждёт duration с возможностью отмены; false если контекст отменён
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
