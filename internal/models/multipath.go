package models

import (
	"strconv"
	"strings"
	"time"
)

// ============================================================
// Статусы мультипути
// ============================================================
//
// Мультипуть - запланированная цепочка из четырёх ног покупка/продажа
// на одной бирже, исполняемая как одна логическая сделка.
//
// Порядок статусов:
//
//	bare → {profitable | unrecoverable}          (разведка выполнимости)
//	profitable → start → buy1place → buy1placed → balance1good
//	           → sell2place → ... → balance4good → done
//
// Любая нога может свернуть в error / unrecoverable / unprofitable.
// Статус сохраняется в БД после каждого перехода, чтобы прогресс
// переживал перезапуск процесса.
const (
	MultipathBare          = "bare"          // создан, выполнимость не проверена
	MultipathProfitable    = "profitable"    // разведка подтвердила ожидаемый доход
	MultipathStart         = "start"         // взят в работу, начинаем первую ногу
	MultipathDone          = "done"          // все четыре ноги завершены
	MultipathError         = "error"         // терминальная ошибка исполнения
	MultipathUnrecoverable = "unrecoverable" // рынок недоступен / стакан мёртв
	MultipathUnprofitable  = "unprofitable"  // ожидаемый доход отрицательный
)

// LegPhase - фаза внутри одной ноги
type LegPhase int

const (
	PhasePlace       LegPhase = iota // выставление лимитного ордера
	PhaseUncertain                   // исход размещения неизвестен, нужна сверка
	PhasePlaced                      // ордер подтверждённо исполнен
	PhaseBalanceGood                 // ожидание поступления баланса
)

// MultipathLegCount - число ног мультипути
const MultipathLegCount = 4

// LegOp возвращает операцию ноги: нечётные ноги покупают, чётные продают
func LegOp(leg int) string {
	if leg%2 == 1 {
		return "buy"
	}
	return "sell"
}

// LegStatus собирает строковый статус для (нога, фаза): "buy1place",
// "sell2uncertain", "balance3good" и т.д.
func LegStatus(leg int, phase LegPhase) string {
	if phase == PhaseBalanceGood {
		return "balance" + strconv.Itoa(leg) + "good"
	}
	s := LegOp(leg) + strconv.Itoa(leg)
	switch phase {
	case PhaseUncertain:
		return s + "uncertain"
	case PhasePlaced:
		return s + "placed"
	default:
		return s + "place"
	}
}

// ParseLegStatus разбирает строковый статус ноги обратно в (нога, фаза).
// Возвращает ok=false для статусов вне ног (bare, done, ...).
func ParseLegStatus(status string) (leg int, phase LegPhase, ok bool) {
	if strings.HasPrefix(status, "balance") && strings.HasSuffix(status, "good") {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(status, "balance"), "good"))
		if err != nil || n < 1 || n > MultipathLegCount {
			return 0, 0, false
		}
		return n, PhaseBalanceGood, true
	}

	var rest string
	switch {
	case strings.HasPrefix(status, "buy"):
		rest = strings.TrimPrefix(status, "buy")
	case strings.HasPrefix(status, "sell"):
		rest = strings.TrimPrefix(status, "sell")
	default:
		return 0, 0, false
	}
	if len(rest) < 2 {
		return 0, 0, false
	}

	n, err := strconv.Atoi(rest[:1])
	if err != nil || n < 1 || n > MultipathLegCount {
		return 0, 0, false
	}
	// Операция в статусе обязана соответствовать чётности ноги
	if !strings.HasPrefix(status, LegOp(n)) {
		return 0, 0, false
	}

	switch rest[1:] {
	case "place":
		phase = PhasePlace
	case "uncertain":
		phase = PhaseUncertain
	case "placed":
		phase = PhasePlaced
	default:
		return 0, 0, false
	}
	return n, phase, true
}

// MultipathTerminal возвращает true для терминальных статусов
func MultipathTerminal(status string) bool {
	switch status {
	case MultipathDone, MultipathError, MultipathUnrecoverable, MultipathUnprofitable:
		return true
	}
	return false
}

// ============================================================
// Сущности мультипути
// ============================================================

// MultipathLeg - одна нога плана: рынок и монета, плюс фактические
// параметры исполнения (заполняются по ходу работы машины состояний)
type MultipathLeg struct {
	Market   string  `json:"market"`
	Coin     string  `json:"coin"`
	Quantity float64 `json:"quantity"`
	Rate     float64 `json:"rate"`
	OrderID  string  `json:"order_id"`
}

// Multipath - персистентный план четырёхногой сделки
type Multipath struct {
	ID       int64                          `json:"id"`
	Exchange string                         `json:"exchange"`
	Status   string                         `json:"status"`
	Legs     [MultipathLegCount]MultipathLeg `json:"legs"`

	// Оценка дохода в процентах, вычисленная при разведке
	GainEstimate float64 `json:"gain_estimate"`

	// Персистентный маркер взаимного исключения: true только пока
	// план находится в работе у воркера
	Executing bool `json:"executing"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TouchPoint - точка касания плана: стакан (биржа, рынок, монета)
type TouchPoint struct {
	Exchange string
	Market   string
	Coin     string
}

// TouchPoints возвращает все стаканы, которые затрагивает план.
// Два плана конфликтуют, если множества их точек касания пересекаются:
// исполнение одного меняет стакан, от которого зависит другой.
func (m *Multipath) TouchPoints() []TouchPoint {
	pts := make([]TouchPoint, 0, MultipathLegCount)
	for _, leg := range m.Legs {
		if leg.Market == "" || leg.Coin == "" {
			continue
		}
		pts = append(pts, TouchPoint{Exchange: m.Exchange, Market: leg.Market, Coin: leg.Coin})
	}
	return pts
}

// Clashes возвращает true если планы затрагивают общий стакан
func (m *Multipath) Clashes(other *Multipath) bool {
	for _, a := range m.TouchPoints() {
		for _, b := range other.TouchPoints() {
			if a == b {
				return true
			}
		}
	}
	return false
}
