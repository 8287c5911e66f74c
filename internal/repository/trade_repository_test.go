package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

// ============================================================
// TradeRepository Tests
// ============================================================

func TestTradeRepositoryRecordTrade(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	trade := &models.Trade{
		Market:      "USDT",
		Coin:        "LTC",
		AskExchange: "alpha",
		BidExchange: "beta",
		Quantity:    2,
		AskRate:     100.1,
		BidRate:     101.898,
		BuyOrderID:  "buy-1",
		SellOrderID: "sell-1",
		Status:      models.TradeStatusSubmitted,
	}

	mock.ExpectQuery(`INSERT INTO trades`).
		WithArgs(
			trade.Market, trade.Coin, trade.AskExchange, trade.BidExchange,
			trade.Quantity, trade.AskRate, trade.BidRate,
			trade.BuyOrderID, trade.SellOrderID, trade.Status, sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(13))

	repo := NewTradeRepository(db)
	if err := repo.RecordTrade(trade); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	if trade.ID != 13 {
		t.Errorf("ID = %d, ожидался 13", trade.ID)
	}
	if trade.CreatedAt.IsZero() {
		t.Error("CreatedAt не заполнен")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("невыполненные ожидания: %v", err)
	}
}

func TestTradeRepositoryRecordPriceBought(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	price := &models.PriceBought{
		Exchange: "alpha",
		Market:   "USDT",
		Coin:     "LTC",
		Rate:     100.1,
		At:       time.Now(),
	}

	mock.ExpectExec(`INSERT INTO prices_bought`).
		WithArgs(price.Exchange, price.Market, price.Coin, price.Rate, price.At).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewTradeRepository(db)
	if err := repo.RecordPriceBought(price); err != nil {
		t.Fatalf("RecordPriceBought: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("невыполненные ожидания: %v", err)
	}
}

func TestTradeRepositoryGetRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "market", "coin", "ask_exchange", "bid_exchange",
		"quantity", "ask_rate", "bid_rate", "buy_order_id", "sell_order_id", "status", "created_at",
	}).
		AddRow(2, "USDT", "LTC", "alpha", "beta", 2.0, 100.1, 101.898, "b2", "s2", models.TradeStatusSubmitted, now).
		AddRow(1, "USDT", "DOGE", "beta", "alpha", 5.0, 0.1, 0.12, "b1", "s1", models.TradeStatusFailed, now.Add(-time.Minute))

	mock.ExpectQuery(`SELECT .+ FROM trades ORDER BY created_at DESC LIMIT`).
		WithArgs(10).
		WillReturnRows(rows)

	repo := NewTradeRepository(db)
	trades, err := repo.GetRecent(10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}

	if len(trades) != 2 {
		t.Fatalf("получено %d сделок, ожидалось 2", len(trades))
	}
	if trades[0].ID != 2 || trades[1].ID != 1 {
		t.Errorf("порядок сделок %d, %d; ожидался 2, 1", trades[0].ID, trades[1].ID)
	}
	if trades[1].Status != models.TradeStatusFailed {
		t.Errorf("Status = %q, ожидался %q", trades[1].Status, models.TradeStatusFailed)
	}
}
