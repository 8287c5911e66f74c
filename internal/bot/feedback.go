package bot

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

// ============================================================
// Блоки обратной связи
// ============================================================
//
// Каждая оценка (арбитражная итерация, шаг мультипути) собирает
// упорядоченный блок строк: что увидели, что решили и почему отказали.
// Блок уходит в структурированный лог целиком; существенные сбои
// дополнительно эскалируются в канал алертов. Ни одна отменённая
// сделка не теряет своё "почему".

// Feedback - один блок обратной связи
type Feedback struct {
	header string
	lines  []string
	alert  bool
}

// NewFeedback начинает блок с заголовком
func NewFeedback(format string, args ...interface{}) *Feedback {
	return &Feedback{header: fmt.Sprintf(format, args...)}
}

// Addf добавляет строку в блок
func (f *Feedback) Addf(format string, args ...interface{}) {
	f.lines = append(f.lines, fmt.Sprintf(format, args...))
}

// Escalate помечает блок для отправки в канал алертов
func (f *Feedback) Escalate() {
	f.alert = true
}

// Lines возвращает заголовок и строки блока по порядку
func (f *Feedback) Lines() []string {
	out := make([]string, 0, len(f.lines)+1)
	out = append(out, f.header)
	out = append(out, f.lines...)
	return out
}

// Notifier доставляет блоки наблюдателям (websocket hub, алерты)
type Notifier interface {
	Notify(lines []string, alert bool)
}

// TradeBroadcaster рассылает наблюдателям отправленные сделки.
// Необязательное расширение Notifier.
type TradeBroadcaster interface {
	BroadcastTrade(trade *models.Trade)
}

// PauseBroadcaster рассылает наблюдателям новые паузы.
// Необязательное расширение Notifier.
type PauseBroadcaster interface {
	BroadcastPause(pause models.PauseEntry)
}

// Reporter выводит блоки в лог и рассылает наблюдателям
type Reporter struct {
	logger *zap.Logger
	notify Notifier // может быть nil
}

// NewReporter создаёт репортер
func NewReporter(logger *zap.Logger, notify Notifier) *Reporter {
	return &Reporter{logger: logger, notify: notify}
}

// Flush выводит блок: структурированный лог + рассылка наблюдателям
func (r *Reporter) Flush(f *Feedback) {
	if f == nil {
		return
	}
	lines := f.Lines()

	if f.alert {
		r.logger.Warn("evaluation feedback", zap.Strings("block", lines), zap.Bool("alert", true))
	} else {
		r.logger.Info("evaluation feedback", zap.Strings("block", lines))
	}

	if r.notify != nil {
		r.notify.Notify(lines, f.alert)
	}
}

// Trade рассылает сделку наблюдателям, умеющим её принимать
func (r *Reporter) Trade(trade *models.Trade) {
	if b, ok := r.notify.(TradeBroadcaster); ok {
		b.BroadcastTrade(trade)
	}
}

// Pause рассылает новую паузу наблюдателям, умеющим её принимать
func (r *Reporter) Pause(pause models.PauseEntry) {
	if b, ok := r.notify.(PauseBroadcaster); ok {
		b.BroadcastPause(pause)
	}
}
