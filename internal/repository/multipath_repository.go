package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/teusbenschop/cryptobot-sub002/internal/models"
)

// Ошибки репозитория мультипутей
var (
	ErrMultipathNotFound = errors.New("multipath not found")
)

// MultipathRepository - работа с таблицей multipaths
//
// Ноги хранятся развёрнуто в колонках market1..rate4: план всегда
// состоит ровно из четырёх ног, и развёрнутая схема позволяет
// планировщику выбирать планы одним запросом без JOIN.
type MultipathRepository struct {
	db *sql.DB
}

// NewMultipathRepository создает новый экземпляр репозитория
func NewMultipathRepository(db *sql.DB) *MultipathRepository {
	return &MultipathRepository{db: db}
}

const multipathColumns = `
	id, exchange, status, gain_estimate, executing,
	market1, coin1, quantity1, rate1, order_id1,
	market2, coin2, quantity2, rate2, order_id2,
	market3, coin3, quantity3, rate3, order_id3,
	market4, coin4, quantity4, rate4, order_id4,
	created_at, updated_at`

func scanMultipath(scan func(dest ...interface{}) error) (*models.Multipath, error) {
	m := &models.Multipath{}
	dest := []interface{}{&m.ID, &m.Exchange, &m.Status, &m.GainEstimate, &m.Executing}
	for i := range m.Legs {
		leg := &m.Legs[i]
		dest = append(dest, &leg.Market, &leg.Coin, &leg.Quantity, &leg.Rate, &leg.OrderID)
	}
	dest = append(dest, &m.CreatedAt, &m.UpdatedAt)

	if err := scan(dest...); err != nil {
		return nil, err
	}
	return m, nil
}

// Create создает запись плана и возвращает присвоенный идентификатор
func (r *MultipathRepository) Create(ctx context.Context, m *models.Multipath) error {
	query := `
		INSERT INTO multipaths (
			exchange, status, gain_estimate, executing,
			market1, coin1, quantity1, rate1, order_id1,
			market2, coin2, quantity2, rate2, order_id2,
			market3, coin3, quantity3, rate3, order_id3,
			market4, coin4, quantity4, rate4, order_id4,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24,
			$25, $26)
		RETURNING id`

	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = models.MultipathBare
	}

	args := []interface{}{m.Exchange, m.Status, m.GainEstimate, m.Executing}
	for i := range m.Legs {
		leg := &m.Legs[i]
		args = append(args, leg.Market, leg.Coin, leg.Quantity, leg.Rate, leg.OrderID)
	}
	args = append(args, m.CreatedAt, m.UpdatedAt)

	return r.db.QueryRowContext(ctx, query, args...).Scan(&m.ID)
}

// LoadMultipaths возвращает нетерминальные планы, старые первыми.
// Порядок критичен: планировщик отдаёт приоритет старшим планам.
func (r *MultipathRepository) LoadMultipaths(ctx context.Context) ([]*models.Multipath, error) {
	query := `
		SELECT` + multipathColumns + `
		FROM multipaths
		WHERE status NOT IN ($1, $2, $3, $4)
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query,
		models.MultipathDone,
		models.MultipathError,
		models.MultipathUnrecoverable,
		models.MultipathUnprofitable,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*models.Multipath
	for rows.Next() {
		m, err := scanMultipath(rows.Scan)
		if err != nil {
			return nil, err
		}
		plans = append(plans, m)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return plans, nil
}

// GetByID возвращает план по ID
func (r *MultipathRepository) GetByID(ctx context.Context, id int64) (*models.Multipath, error) {
	query := `
		SELECT` + multipathColumns + `
		FROM multipaths
		WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	m, err := scanMultipath(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMultipathNotFound
		}
		return nil, err
	}
	return m, nil
}

// SaveMultipath сохраняет статус, ноги и флаг executing плана.
// Вызывается машиной состояний после каждого перехода.
func (r *MultipathRepository) SaveMultipath(ctx context.Context, m *models.Multipath) error {
	query := `
		UPDATE multipaths
		SET status = $1, gain_estimate = $2, executing = $3,
			quantity1 = $4, rate1 = $5, order_id1 = $6,
			quantity2 = $7, rate2 = $8, order_id2 = $9,
			quantity3 = $10, rate3 = $11, order_id3 = $12,
			quantity4 = $13, rate4 = $14, order_id4 = $15,
			updated_at = $16
		WHERE id = $17`

	args := []interface{}{m.Status, m.GainEstimate, m.Executing}
	for i := range m.Legs {
		leg := &m.Legs[i]
		args = append(args, leg.Quantity, leg.Rate, leg.OrderID)
	}
	args = append(args, m.UpdatedAt, m.ID)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrMultipathNotFound
	}

	return nil
}

// CountByStatus возвращает количество планов в каждом статусе
func (r *MultipathRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM multipaths GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// ClearExecuting снимает флаг executing со всех планов.
// Вызывается при старте процесса: после аварийного завершения флаги
// могли остаться взведёнными и навсегда исключить планы из выборки.
func (r *MultipathRepository) ClearExecuting(ctx context.Context) (int64, error) {
	query := `UPDATE multipaths SET executing = FALSE WHERE executing = TRUE`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
