package bot

import (
	"fmt"

	"github.com/teusbenschop/cryptobot-sub002/internal/exchange"
	"github.com/teusbenschop/cryptobot-sub002/pkg/utils"
)

// Маржа безопасности решения
const (
	// FixedMarginPercent - фиксированная надбавка к требуемому спреду
	// сверх ease-процентов обеих бирж
	FixedMarginPercent = 0.55

	// BalanceSafetyFactor - доля доступного баланса, которую разрешено
	// коммитить в одну сделку; остаток страхует от рассинхронизации
	// кэша балансов с биржей
	BalanceSafetyFactor = 0.95

	// MinimumSizeFactor - требуемый запас над минимальным объёмом
	// площадки; впритык к минимуму ордер часто отклоняется из-за
	// округления количества
	MinimumSizeFactor = 1.02
)

// ProcessorInput - входные данные одного арбитражного решения.
// Стаканы уже отфильтрованы (пыль + минимальный объём).
type ProcessorInput struct {
	Market string
	Coin   string

	// Сторона покупки: биржа с минимальным ask
	AskExchange string
	AskOffers   []exchange.Offer
	AskEase     float64 // ease-процент биржи покупки

	// Сторона продажи: биржа с максимальным bid
	BidExchange string
	BidOffers   []exchange.Offer
	BidEase     float64 // ease-процент биржи продажи

	// Доступные балансы: базовая валюта на бирже покупки,
	// монета на бирже продажи (уже скорректированные леджером)
	MarketAvailable float64
	CoinAvailable   float64

	// Минимальные объёмы площадок (0 = без ограничения)
	AskMinimum float64
	BidMinimum float64

	// Порог пыли рынка в базовой валюте
	DustNotional float64
}

// TradeDecision - результат одной оценки.
//
// Quantity = 0 означает "не торговать". Флаги *TooLow взводятся только
// когда именно баланс соответствующей стороны обнулил количество; они
// не взаимоисключающие и позволяют вызывающему коду убрать одну биржу
// из рабочего набора вместо отказа от всей пары.
type TradeDecision struct {
	Quantity float64
	AskRate  float64 // скорректированная цена покупки
	BidRate  float64 // скорректированная цена продажи

	MarketBalanceTooLow bool
	CoinBalanceTooLow   bool

	// Причина отказа для блока обратной связи (пустая при Quantity > 0)
	Reason string
}

// DecideArbitrage вычисляет безопасное исполняемое количество и
// скорректированные цены для пары стаканов.
//
// Чистая функция: никаких сетевых вызовов и общего состояния, вся
// работа с леджером выполняется вызывающим кодом под его блокировкой.
func DecideArbitrage(in ProcessorInput) TradeDecision {
	var d TradeDecision

	// 1. Стартовое количество - меньшая из глубин двух стаканов
	quantity := min(bookDepth(in.AskOffers), bookDepth(in.BidOffers))

	// 2. Реально достижимые цены на это количество (с проскальзыванием)
	askRate, _ := RateForQuantity(in.AskOffers, quantity)
	bidRate, _ := RateForQuantity(in.BidOffers, quantity)
	if !BookGood(in.AskOffers, 0) || !BookGood(in.BidOffers, 0) {
		quantity = 0
		d.Reason = "order book degenerate after filtering"
	}

	// 3. Ease-коррекция: покупаем чуть дороже, продаём чуть дешевле,
	// чтобы исполниться немедленно, а не висеть открытым ордером
	askRate *= 1 + in.AskEase/100
	bidRate *= 1 - in.BidEase/100
	d.AskRate = askRate
	d.BidRate = bidRate

	// 4. Спред после коррекции обязан перекрывать оба ease-процента
	// плюс фиксированную маржу
	required := in.AskEase + in.BidEase + FixedMarginPercent
	spread := utils.SpreadPercent(askRate, bidRate)
	if quantity > 0 && (bidRate <= askRate || spread < required) {
		quantity = 0
		d.Reason = fmt.Sprintf("spread %.4f%% below required %.4f%%", spread, required)
	}

	// 5. Кап по базовой валюте на бирже покупки
	if quantity > 0 && bidRate > 0 {
		limit := BalanceSafetyFactor * in.MarketAvailable / bidRate
		if quantity > limit {
			quantity = limit
		}
	}

	// 6. Если после капа оборот стал пылью - баланс базовой валюты мал
	if quantity > 0 && quantity*bidRate < in.DustNotional {
		quantity = 0
		d.MarketBalanceTooLow = true
		d.Reason = fmt.Sprintf("market balance too low on %s", in.AskExchange)
	}

	// 7. Кап по монете на бирже продажи
	if quantity > 0 {
		limit := BalanceSafetyFactor * in.CoinAvailable
		if quantity > limit {
			quantity = limit
		}
	}

	// 8. Пыль на стороне монеты - баланс монеты мал
	if quantity > 0 && quantity*bidRate < in.DustNotional {
		quantity = 0
		d.CoinBalanceTooLow = true
		d.Reason = fmt.Sprintf("coin balance too low on %s", in.BidExchange)
	}

	// 9. Минимальные объёмы обеих площадок с запасом
	for _, minimum := range []float64{in.AskMinimum, in.BidMinimum} {
		if quantity > 0 && minimum > 0 && quantity < minimum*MinimumSizeFactor {
			quantity = 0
			d.Reason = fmt.Sprintf("quantity below venue minimum %.8f", minimum)
		}
	}

	d.Quantity = quantity
	if quantity > 0 {
		d.Reason = ""
	}
	return d
}

// bookDepth возвращает суммарное количество всех предложений
func bookDepth(offers []exchange.Offer) float64 {
	var depth float64
	for _, o := range offers {
		depth += o.Quantity
	}
	return depth
}
