package repository

import (
	"database/sql"
	"time"

	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

// TradeRepository - работа с таблицами trades и prices_bought
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// RecordTrade создает запись об арбитражной сделке
func (r *TradeRepository) RecordTrade(trade *models.Trade) error {
	query := `
		INSERT INTO trades (market, coin, ask_exchange, bid_exchange, quantity, ask_rate, bid_rate, buy_order_id, sell_order_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now()
	}

	return r.db.QueryRow(
		query,
		trade.Market,
		trade.Coin,
		trade.AskExchange,
		trade.BidExchange,
		trade.Quantity,
		trade.AskRate,
		trade.BidRate,
		trade.BuyOrderID,
		trade.SellOrderID,
		trade.Status,
		trade.CreatedAt,
	).Scan(&trade.ID)
}

// RecordPriceBought сохраняет цену фактической покупки для истории цен
func (r *TradeRepository) RecordPriceBought(price *models.PriceBought) error {
	query := `
		INSERT INTO prices_bought (exchange, market, coin, rate, at)
		VALUES ($1, $2, $3, $4, $5)`

	if price.At.IsZero() {
		price.At = time.Now()
	}

	_, err := r.db.Exec(query, price.Exchange, price.Market, price.Coin, price.Rate, price.At)
	return err
}

// GetRecent возвращает последние N сделок
func (r *TradeRepository) GetRecent(limit int) ([]*models.Trade, error) {
	query := `
		SELECT id, market, coin, ask_exchange, bid_exchange, quantity, ask_rate, bid_rate, buy_order_id, sell_order_id, status, created_at
		FROM trades
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		trade := &models.Trade{}
		err := rows.Scan(
			&trade.ID,
			&trade.Market,
			&trade.Coin,
			&trade.AskExchange,
			&trade.BidExchange,
			&trade.Quantity,
			&trade.AskRate,
			&trade.BidRate,
			&trade.BuyOrderID,
			&trade.SellOrderID,
			&trade.Status,
			&trade.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// CountByStatus возвращает количество сделок с определенным статусом
func (r *TradeRepository) CountByStatus(status string) (int, error) {
	query := `SELECT COUNT(*) FROM trades WHERE status = $1`

	var count int
	err := r.db.QueryRow(query, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// LastPriceBought возвращает последнюю цену покупки монеты на бирже
func (r *TradeRepository) LastPriceBought(exchange, market, coin string) (*models.PriceBought, error) {
	query := `
		SELECT exchange, market, coin, rate, at
		FROM prices_bought
		WHERE exchange = $1 AND market = $2 AND coin = $3
		ORDER BY at DESC
		LIMIT 1`

	price := &models.PriceBought{}
	err := r.db.QueryRow(query, exchange, market, coin).Scan(
		&price.Exchange,
		&price.Market,
		&price.Coin,
		&price.Rate,
		&price.At,
	)
	if err != nil {
		return nil, err
	}

	return price, nil
}
