package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mpetrova/library-system/internal/model"
)

const fineColumns = `fine_id, record_id, fine_amount, pay_status, pay_time`

func scanFine(row pgx.Row) (*model.Fine, error) {
	var f model.Fine
	var amountCents int64
	var payStatus string
	err := row.Scan(&f.ID, &f.RecordID, &amountCents, &payStatus, &f.PayTime)
	if err != nil {
		return nil, err
	}
	f.Amount = float64(amountCents) / 100
	f.PayStatus = model.FinePayStatus(payStatus)
	return &f, nil
}

// GetFine возвращает штраф по идентификатору.
func (r *PostgresRepository) GetFine(ctx context.Context, fineID int64) (*model.Fine, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+fineColumns+` FROM fines WHERE fine_id = $1`,
		fineID,
	)

	f, err := scanFine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFineNotFound
		}
		return nil, fmt.Errorf("get fine: %w", err)
	}
	return f, nil
}

// GetTotalUnpaidFine возвращает сумму неоплаченных штрафов читателя в копейках.
// Штрафы связаны с читателем через записи о выдаче.
func (r *PostgresRepository) GetTotalUnpaidFine(ctx context.Context, userID int64) (int64, error) {
	var totalCents int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(f.fine_amount), 0)
		 FROM fines f
		 JOIN borrow_records br ON f.record_id = br.id
		 WHERE br.user_id = $1 AND f.pay_status = 'unpaid'`,
		userID,
	).Scan(&totalCents)
	if err != nil {
		return 0, fmt.Errorf("sum unpaid fines: %w", err)
	}
	return totalCents, nil
}

// PayFines помечает штрафы оплаченными в одной транзакции.
// Если хотя бы один из них уже оплачен, вся операция отклоняется.
func (r *PostgresRepository) PayFines(ctx context.Context, fineIDs []int64, payTime time.Time) error {
	if len(fineIDs) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE fines SET pay_status = 'paid', pay_time = $2
		 WHERE fine_id = ANY($1) AND pay_status = 'unpaid'`,
		fineIDs, payTime,
	)
	if err != nil {
		return fmt.Errorf("pay fines: %w", err)
	}

	if cmdTag.RowsAffected() != int64(len(fineIDs)) {
		return ErrFinePaid
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SetFinePayStatus выставляет статус оплаты штрафа (административная операция).
func (r *PostgresRepository) SetFinePayStatus(ctx context.Context, fineID int64, status model.FinePayStatus, payTime time.Time) error {
	var cmd string
	var err error
	if status == model.FinePaid {
		cmd = `UPDATE fines SET pay_status = $2, pay_time = COALESCE(pay_time, $3) WHERE fine_id = $1`
		_, err = r.pool.Exec(ctx, cmd, fineID, string(status), payTime)
	} else {
		cmd = `UPDATE fines SET pay_status = $2, pay_time = NULL WHERE fine_id = $1`
		_, err = r.pool.Exec(ctx, cmd, fineID, string(status))
	}
	if err != nil {
		return fmt.Errorf("set fine status: %w", err)
	}
	return nil
}

// ListFinesByUser возвращает штрафы читателя через связанные записи о выдаче.
func (r *PostgresRepository) ListFinesByUser(ctx context.Context, userID int64) ([]model.Fine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT f.fine_id, f.record_id, f.fine_amount, f.pay_status, f.pay_time
		 FROM fines f
		 JOIN borrow_records br ON f.record_id = br.id
		 WHERE br.user_id = $1
		 ORDER BY f.fine_id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select fines: %w", err)
	}
	defer rows.Close()

	return collectFines(rows)
}

// ListFines возвращает штрафы с необязательной фильтрацией по филиалу и статусу оплаты.
func (r *PostgresRepository) ListFines(ctx context.Context, branchID *int64, payStatus *model.FinePayStatus) ([]model.Fine, error) {
	var statusStr *string
	if payStatus != nil {
		s := string(*payStatus)
		statusStr = &s
	}

	rows, err := r.pool.Query(ctx,
		`SELECT f.fine_id, f.record_id, f.fine_amount, f.pay_status, f.pay_time
		 FROM fines f
		 JOIN borrow_records br ON f.record_id = br.id
		 WHERE ($1::bigint IS NULL OR br.branch_id = $1)
		   AND ($2::text IS NULL OR f.pay_status = $2)
		 ORDER BY f.fine_id DESC`,
		branchID, statusStr,
	)
	if err != nil {
		return nil, fmt.Errorf("select fines: %w", err)
	}
	defer rows.Close()

	return collectFines(rows)
}

func collectFines(rows pgx.Rows) ([]model.Fine, error) {
	var res []model.Fine
	for rows.Next() {
		f, err := scanFine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fine: %w", err)
		}
		res = append(res, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
