package repository

import (
	"database/sql"

	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

// SettingsRepository - загрузка настроечных таблиц при старте движка:
// минимальные объёмы площадок, паузы, незавершённые выводы и учётные
// записи бирж
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository создает новый экземпляр репозитория
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// LoadMinimumTradeSizes возвращает минимальные торгуемые объёмы площадок
func (r *SettingsRepository) LoadMinimumTradeSizes() ([]models.MinimumTradeSize, error) {
	query := `
		SELECT exchange, market, coin, minimum
		FROM minimum_trade_sizes`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sizes []models.MinimumTradeSize
	for rows.Next() {
		var s models.MinimumTradeSize
		if err := rows.Scan(&s.Exchange, &s.Market, &s.Coin, &s.Minimum); err != nil {
			return nil, err
		}
		sizes = append(sizes, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return sizes, nil
}

// LoadPauses возвращает все сохранённые паузы.
// Истёкшие записи тоже загружаются: они инертны и не мешают.
func (r *SettingsRepository) LoadPauses() ([]models.PauseEntry, error) {
	query := `
		SELECT exchange, market, coin, until, reason
		FROM pauses`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.PauseEntry
	for rows.Next() {
		var e models.PauseEntry
		if err := rows.Scan(&e.Exchange, &e.Market, &e.Coin, &e.Until, &e.Reason); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// SavePause сохраняет паузу; повторная пауза той же тройки перезаписывает
// предыдущую
func (r *SettingsRepository) SavePause(entry models.PauseEntry) error {
	query := `
		INSERT INTO pauses (exchange, market, coin, until, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (exchange, market, coin)
		DO UPDATE SET until = EXCLUDED.until, reason = EXCLUDED.reason`

	_, err := r.db.Exec(query, entry.Exchange, entry.Market, entry.Coin, entry.Until, entry.Reason)
	return err
}

// LoadPendingWithdrawals возвращает незавершённые выводы средств
func (r *SettingsRepository) LoadPendingWithdrawals() ([]models.PendingWithdrawal, error) {
	query := `
		SELECT exchange, coin, amount
		FROM pending_withdrawals
		WHERE amount > 0`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []models.PendingWithdrawal
	for rows.Next() {
		var w models.PendingWithdrawal
		if err := rows.Scan(&w.Exchange, &w.Coin, &w.Amount); err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, w)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return withdrawals, nil
}

// LoadTradingPairs возвращает включённые торговые пары
func (r *SettingsRepository) LoadTradingPairs() ([]models.TradingPairSpec, error) {
	query := `
		SELECT market, coin, enabled
		FROM trading_pairs
		WHERE enabled = TRUE
		ORDER BY market, coin`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []models.TradingPairSpec
	for rows.Next() {
		var p models.TradingPairSpec
		if err := rows.Scan(&p.Market, &p.Coin, &p.Enabled); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return pairs, nil
}

// LoadExchangeAccounts возвращает включённые учётные записи бирж.
// API ключи хранятся зашифрованными; расшифровка выполняется при
// инициализации клиентов бирж.
func (r *SettingsRepository) LoadExchangeAccounts() ([]*models.ExchangeAccount, error) {
	query := `
		SELECT id, name, api_key_encrypted, api_secret_encrypted, enabled, created_at
		FROM exchange_accounts
		WHERE enabled = TRUE
		ORDER BY name`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.ExchangeAccount
	for rows.Next() {
		acc := &models.ExchangeAccount{}
		err := rows.Scan(
			&acc.ID,
			&acc.Name,
			&acc.APIKeyEncrypted,
			&acc.APISecretEncrypted,
			&acc.Enabled,
			&acc.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}
