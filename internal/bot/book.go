package bot

import (
	"github.com/teusbenschop/cryptobot-sub002/internal/exchange"
)

// ============================================================
// Алгоритмы нормализации стакана
// ============================================================
//
// Чистые детерминированные функции над отсортированной стороной
// стакана (лучшее предложение первым). Никогда не мутируют вход:
// фильтры возвращают новые последовательности. Повторное применение
// к уже отфильтрованному результату даёт идентичный результат.

// FilterDust убирает предложения, чей оборот (количество × цена)
// ниже порога пыли рынка. Такие сделки не окупают комиссию и
// потери точности.
func FilterDust(offers []exchange.Offer, dustNotional float64) []exchange.Offer {
	if dustNotional <= 0 {
		out := make([]exchange.Offer, len(offers))
		copy(out, offers)
		return out
	}
	out := make([]exchange.Offer, 0, len(offers))
	for _, o := range offers {
		if o.Quantity*o.Rate >= dustNotional {
			out = append(out, o)
		}
	}
	return out
}

// FilterMinimumSize убирает предложения ниже минимального торгуемого
// объёма площадки. Минимум 0 означает отсутствие ограничения.
func FilterMinimumSize(offers []exchange.Offer, minimum float64) []exchange.Offer {
	if minimum <= 0 {
		out := make([]exchange.Offer, len(offers))
		copy(out, offers)
		return out
	}
	out := make([]exchange.Offer, 0, len(offers))
	for _, o := range offers {
		if o.Quantity >= minimum {
			out = append(out, o)
		}
	}
	return out
}

// BookGood сообщает, пригоден ли отфильтрованный стакан для торговли:
// хотя бы одно предложение выжило и суммарная глубина верхних уровней
// не ниже depthFloor (0 отключает проверку глубины).
func BookGood(offers []exchange.Offer, depthFloor float64) bool {
	if len(offers) == 0 {
		return false
	}
	if depthFloor <= 0 {
		return true
	}
	var depth float64
	for _, o := range offers {
		depth += o.Quantity
		if depth >= depthFloor {
			return true
		}
	}
	return false
}

// RateForQuantity идёт по стакану от лучшего уровня, накапливая
// количество, пока не наберётся target или стакан не кончится.
//
// Возвращает худшую цену, необходимую для набора target (реальная
// стоимость исполнения с проскальзыванием, а не наивная лучшая цена),
// и фактически доступное количество: target если глубины хватило,
// иначе всё что стакан может отдать.
//
// Пустой стакан даёт (0, 0).
func RateForQuantity(offers []exchange.Offer, target float64) (rate float64, available float64) {
	if len(offers) == 0 {
		return 0, 0
	}
	if target <= 0 {
		return offers[0].Rate, 0
	}

	var cumulative float64
	for _, o := range offers {
		cumulative += o.Quantity
		rate = o.Rate
		if cumulative >= target {
			return rate, target
		}
	}
	// Глубины не хватило: отдаём всё что есть по худшей цене
	return rate, cumulative
}
