package websocket

import (
	"time"

	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeFeedback - блок обратной связи одной оценки
	// (арбитражная итерация или шаг мультипути)
	MessageTypeFeedback MessageType = "feedback"

	// MessageTypeAlert - блок, требующий внимания оператора
	// (нераспознанный исход размещения, сбой ноги)
	MessageTypeAlert MessageType = "alert"

	// MessageTypeTrade - отправленная арбитражная сделка
	MessageTypeTrade MessageType = "tradeUpdate"

	// MessageTypePause - новая пауза тройки (биржа, рынок, монета)
	MessageTypePause MessageType = "pauseUpdate"
)

// BaseMessage - общая часть всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// FeedbackMessage - блок обратной связи: заголовок и строки по порядку
type FeedbackMessage struct {
	BaseMessage
	Lines []string `json:"lines"`
	Alert bool     `json:"alert"`
}

// TradeMessage - сообщение об отправленной сделке
type TradeMessage struct {
	BaseMessage
	Trade *models.Trade `json:"trade"`
}

// PauseMessage - сообщение о новой паузе
type PauseMessage struct {
	BaseMessage
	Pause models.PauseEntry `json:"pause"`
}

// NewFeedbackMessage создает сообщение с блоком обратной связи
func NewFeedbackMessage(lines []string, alert bool) *FeedbackMessage {
	msgType := MessageTypeFeedback
	if alert {
		msgType = MessageTypeAlert
	}
	return &FeedbackMessage{
		BaseMessage: BaseMessage{Type: msgType, Timestamp: time.Now()},
		Lines:       lines,
		Alert:       alert,
	}
}

// NewTradeMessage создает сообщение о сделке
func NewTradeMessage(trade *models.Trade) *TradeMessage {
	return &TradeMessage{
		BaseMessage: BaseMessage{Type: MessageTypeTrade, Timestamp: time.Now()},
		Trade:       trade,
	}
}

// NewPauseMessage создает сообщение о паузе
func NewPauseMessage(pause models.PauseEntry) *PauseMessage {
	return &PauseMessage{
		BaseMessage: BaseMessage{Type: MessageTypePause, Timestamp: time.Now()},
		Pause:       pause,
	}
}
