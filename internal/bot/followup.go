package bot

import (
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ============================================================
// Классификатор исходов размещения ордера
// ============================================================
//
// Превращает сырой текст ошибки провайдера и сырой ответ в политику:
// на сколько ставить тройку (биржа, рынок, монета) на паузу и нужен
// ли алерт. Биржа ВСЕГДА убирается из рабочего набора пары после
// попытки размещения: повтор идентичной пары в том же окне создаёт
// риск дублирующего ордера.

// FollowupRule - одно правило сопоставления, порядок в таблице значим:
// выигрывает первое совпавшее
type FollowupRule struct {
	Name     string
	Matchers []string // подстроки, без учёта регистра
	Pause    time.Duration
	Alert    bool
}

// Имена правил (попадают в метрики и причины пауз)
const (
	RuleTimeout         = "response_timeout"
	RuleMarketOffline   = "market_offline"
	RuleUnavailable     = "service_unavailable"
	RuleInsufficient    = "insufficient_funds"
	RuleInvalidVolume   = "invalid_volume"
	RulePairMissing     = "pair_missing"
	RuleProviderError   = "provider_error"
	RuleEmptyOrderID    = "empty_order_id"
	RuleFulfilled       = "fulfilled"
	RuleUnrecognized    = "unrecognized_outcome"
)

// DefaultFollowupRules - таблица классификации в порядке приоритета
var DefaultFollowupRules = []FollowupRule{
	{Name: RuleTimeout, Matchers: []string{"timeout", "timed out"}, Pause: 5 * time.Minute},
	{Name: RuleMarketOffline, Matchers: []string{"offline"}, Pause: 2880 * time.Minute},
	{Name: RuleUnavailable, Matchers: []string{"unavailable", "maintenance"}, Pause: 60 * time.Minute},
	{Name: RuleInsufficient, Matchers: []string{"insufficient"}, Pause: 60 * time.Minute},
	{Name: RuleInvalidVolume, Matchers: []string{"invalid volume", "min_trade_requirement_not_met", "amount too small", "dust"}, Pause: 60 * time.Minute},
	{Name: RulePairMissing, Matchers: []string{"invalid market", "market does not exist", "trading is disabled", "pair is not provided", "restricted"}, Pause: 1440 * time.Minute},
}

// FollowupVerdict - решение классификатора
type FollowupVerdict struct {
	Rule        string
	Pause       time.Duration
	RemoveVenue bool // всегда true после попытки размещения
	Alert       bool
	Reason      string
}

// PauseSaver сохраняет паузу во внешнее хранилище
type PauseSaver interface {
	SavePause(entry models.PauseEntry) error
}

// Classifier применяет таблицу правил и ведёт таблицу пауз
type Classifier struct {
	rules    []FollowupRule
	pauses   *PauseTable
	store    PauseSaver // может быть nil
	reporter *Reporter
	logger   *zap.Logger
}

// NewClassifier создаёт классификатор со стандартной таблицей правил
func NewClassifier(pauses *PauseTable, store PauseSaver, reporter *Reporter, logger *zap.Logger) *Classifier {
	return &Classifier{
		rules:    DefaultFollowupRules,
		pauses:   pauses,
		store:    store,
		reporter: reporter,
		logger:   logger,
	}
}

// Classify определяет вердикт для исхода размещения. Чистая функция
// относительно таблицы правил: таблицы пауз не трогает.
func (c *Classifier) Classify(orderID, errText, rawPayload string) FollowupVerdict {
	haystack := strings.ToLower(errText)

	// Вытаскиваем сообщение провайдера из сырого ответа
	payloadMsg, payloadParsed := extractProviderMessage(rawPayload)
	if payloadMsg != "" {
		haystack += " " + strings.ToLower(payloadMsg)
	}

	if strings.TrimSpace(haystack) != "" {
		for _, rule := range c.rules {
			for _, m := range rule.Matchers {
				if strings.Contains(haystack, m) {
					return FollowupVerdict{
						Rule:        rule.Name,
						Pause:       rule.Pause,
						RemoveVenue: true,
						Alert:       rule.Alert,
						Reason:      errText,
					}
				}
			}
		}
		// Провайдер вернул текст ошибки, но он не распознан таблицей
		if errText != "" {
			return FollowupVerdict{
				Rule:        RuleProviderError,
				Pause:       60 * time.Minute,
				RemoveVenue: true,
				Reason:      errText,
			}
		}
	}

	if orderID == "" {
		// Ответ есть, но непригоден даже для извлечения сообщения -
		// полностью нераспознанный исход, консервативная пауза + алерт
		if rawPayload != "" && !payloadParsed {
			return FollowupVerdict{
				Rule:        RuleUnrecognized,
				Pause:       5 * time.Minute,
				RemoveVenue: true,
				Alert:       true,
				Reason:      "unrecognized placement outcome",
			}
		}
		return FollowupVerdict{
			Rule:        RuleEmptyOrderID,
			Pause:       5 * time.Minute,
			RemoveVenue: true,
			Reason:      "order placed without an order id",
		}
	}

	// Подтверждённое исполнение и "есть id, ошибок не найдено" ведут
	// себя одинаково: паузы нет, биржа всё равно убирается из набора.
	// Ветка сохранена единой намеренно.
	return FollowupVerdict{Rule: RuleFulfilled, RemoveVenue: true}
}

// Apply классифицирует исход и применяет политику: пишет паузу для
// (биржа, рынок, монета), сохраняет её в хранилище и эскалирует алерт.
func (c *Classifier) Apply(exchangeName, market, coin, orderID, errText, rawPayload string, now time.Time) FollowupVerdict {
	verdict := c.Classify(orderID, errText, rawPayload)

	if verdict.Pause > 0 {
		c.pauses.Pause(exchangeName, market, coin, verdict.Pause, verdict.Reason, now)
		PausesWritten.WithLabelValues(verdict.Rule).Inc()

		entry := models.PauseEntry{
			Exchange: exchangeName,
			Market:   market,
			Coin:     coin,
			Until:    now.Add(verdict.Pause),
			Reason:   verdict.Reason,
		}
		if c.store != nil {
			if err := c.store.SavePause(entry); err != nil {
				c.logger.Warn("failed to persist pause entry",
					zap.String("exchange", exchangeName),
					zap.String("market", market),
					zap.String("coin", coin),
					zap.Error(err))
			}
		}
		if c.reporter != nil {
			c.reporter.Pause(entry)
		}
	}

	c.logger.Info("follow-up verdict",
		zap.String("exchange", exchangeName),
		zap.String("market", market),
		zap.String("coin", coin),
		zap.String("rule", verdict.Rule),
		zap.Duration("pause", verdict.Pause),
		zap.Bool("alert", verdict.Alert))

	if verdict.Alert && c.reporter != nil {
		fb := NewFeedback("unrecognized order outcome on %s %s/%s", exchangeName, market, coin)
		fb.Addf("order id: %q", orderID)
		fb.Addf("error: %q", errText)
		fb.Addf("raw: %s", rawPayload)
		fb.Escalate()
		c.reporter.Flush(fb)
	}

	return verdict
}

// extractProviderMessage достаёт текст сообщения из сырого JSON ответа
// провайдера. Возвращает (сообщение, удалось ли разобрать ответ).
func extractProviderMessage(raw string) (string, bool) {
	if raw == "" {
		return "", true
	}
	var payload map[string]interface{}
	if err := json.UnmarshalFromString(raw, &payload); err != nil {
		return "", false
	}
	for _, field := range []string{"message", "error", "msg", "reason"} {
		if v, ok := payload[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", true
}
