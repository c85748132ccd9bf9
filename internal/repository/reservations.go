package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mpetrova/library-system/internal/model"
)

const reservationColumns = `id, user_id, book_id, branch_id, reserve_time, expiry_time, status`

// ReservationQueueEntry представляет позицию очереди брони с именем читателя.
type ReservationQueueEntry struct {
	model.Reservation
	RealName string
}

func scanReservation(row pgx.Row) (*model.Reservation, error) {
	var res model.Reservation
	var status string
	err := row.Scan(&res.ID, &res.UserID, &res.BookID, &res.BranchID, &res.ReserveTime, &res.ExpiryTime, &status)
	if err != nil {
		return nil, err
	}
	res.Status = model.ReservationStatus(status)
	return &res, nil
}

// CreateReservation создаёт бронь в одной транзакции: блокирует строку книги,
// проверяет филиал, отсутствие остатка и отсутствие активной выдачи у читателя.
// Дубликат активной брони отсекается частичным уникальным индексом.
func (r *PostgresRepository) CreateReservation(ctx context.Context, userID, bookID, branchID int64, reserveTime, expiryTime time.Time) (*model.Reservation, error) {
	var res *model.Reservation

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		book, err := lockBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if book.BranchID != branchID {
			return ErrWrongBranch
		}
		if book.AvailableNum > 0 {
			return ErrBookAvailable
		}

		var hasBorrowed bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (
			     SELECT 1 FROM borrow_records
			     WHERE user_id = $1 AND book_id = $2 AND status = $3
			 )`,
			userID, bookID, string(model.BorrowStatusBorrowed),
		).Scan(&hasBorrowed)
		if err != nil {
			return fmt.Errorf("check active borrow: %w", err)
		}
		if hasBorrowed {
			return ErrAlreadyBorrowed
		}

		row := tx.QueryRow(ctx,
			`INSERT INTO reservations (user_id, book_id, branch_id, reserve_time, expiry_time, status)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+reservationColumns,
			userID, bookID, branchID, reserveTime, expiryTime, string(model.ReservationStatusPending),
		)
		res, err = scanReservation(row)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateReservation
			}
			return fmt.Errorf("insert reservation: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// GetReservation возвращает бронь по идентификатору.
func (r *PostgresRepository) GetReservation(ctx context.Context, reservationID int64) (*model.Reservation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`,
		reservationID,
	)

	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// CancelReservation переводит бронь в CANCELLED из PENDING или READY.
func (r *PostgresRepository) CancelReservation(ctx context.Context, reservationID int64) (*model.Reservation, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE reservations SET status = $2
		 WHERE id = $1 AND status IN ($3, $4)
		 RETURNING `+reservationColumns,
		reservationID, string(model.ReservationStatusCancelled),
		string(model.ReservationStatusPending), string(model.ReservationStatusReady),
	)

	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetReservation(ctx, reservationID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrReservationClosed
		}
		return nil, fmt.Errorf("cancel reservation: %w", err)
	}
	return res, nil
}

// CompleteReservation продвигает бронь на следующий шаг жизненного цикла:
// PENDING переходит в READY, а READY в COMPLETED.
func (r *PostgresRepository) CompleteReservation(ctx context.Context, reservationID int64) (*model.Reservation, error) {
	var res *model.Reservation

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		row := tx.QueryRow(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`,
			reservationID,
		)
		current, err := scanReservation(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrReservationNotFound
			}
			return fmt.Errorf("lock reservation: %w", err)
		}

		var next model.ReservationStatus
		switch current.Status {
		case model.ReservationStatusPending:
			next = model.ReservationStatusReady
		case model.ReservationStatusReady:
			next = model.ReservationStatusCompleted
		default:
			return ErrReservationClosed
		}

		row = tx.QueryRow(ctx,
			`UPDATE reservations SET status = $2 WHERE id = $1 RETURNING `+reservationColumns,
			reservationID, string(next),
		)
		res, err = scanReservation(row)
		if err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// PromoteReservations продвигает самые ранние PENDING-брони книги в READY.
// Количество продвигаемых равно available_num, но не меньше одной: возврат,
// вызвавший продвижение, мог ещё не отразиться в счётчике. Блокировка строки
// книги сериализует конкурентные продвижения по одной книге.
func (r *PostgresRepository) PromoteReservations(ctx context.Context, bookID int64) ([]model.Reservation, error) {
	var promoted []model.Reservation

	err := r.withRetry(ctx, func() error {
		promoted = promoted[:0]

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		book, err := lockBook(ctx, tx, bookID)
		if err != nil {
			return err
		}

		limit := book.AvailableNum
		if limit < 1 {
			limit = 1
		}

		rows, err := tx.Query(ctx,
			`UPDATE reservations SET status = $3
			 WHERE id IN (
			     SELECT id FROM reservations
			     WHERE book_id = $1 AND status = $2
			     ORDER BY reserve_time
			     LIMIT $4
			     FOR UPDATE
			 )
			 RETURNING `+reservationColumns,
			bookID, string(model.ReservationStatusPending), string(model.ReservationStatusReady), limit,
		)
		if err != nil {
			return fmt.Errorf("promote reservations: %w", err)
		}

		for rows.Next() {
			res, err := scanReservation(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan reservation: %w", err)
			}
			promoted = append(promoted, *res)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return promoted, nil
}

// HasPendingReservations сообщает, есть ли у книги ожидающие брони.
func (r *PostgresRepository) HasPendingReservations(ctx context.Context, bookID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reservations WHERE book_id = $1 AND status = $2)`,
		bookID, string(model.ReservationStatusPending),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending reservations: %w", err)
	}
	return exists, nil
}

// ExpireReservations отменяет PENDING-брони с истёкшим сроком ожидания.
func (r *PostgresRepository) ExpireReservations(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE reservations SET status = $2
		 WHERE status = $3 AND expiry_time < $1
		 RETURNING `+reservationColumns,
		now, string(model.ReservationStatusCancelled), string(model.ReservationStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("expire reservations: %w", err)
	}
	defer rows.Close()

	var expired []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		expired = append(expired, *res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return expired, nil
}

// ListReservationsByUser возвращает брони читателя, новые первыми.
func (r *PostgresRepository) ListReservationsByUser(ctx context.Context, userID int64) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE user_id = $1
		 ORDER BY reserve_time DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListReservations возвращает брони с необязательной фильтрацией по филиалу и статусу.
func (r *PostgresRepository) ListReservations(ctx context.Context, branchID *int64, status *model.ReservationStatus) ([]model.Reservation, error) {
	var statusStr *string
	if status != nil {
		s := string(*status)
		statusStr = &s
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE ($1::bigint IS NULL OR branch_id = $1)
		   AND ($2::text IS NULL OR status = $2)
		 ORDER BY reserve_time DESC`,
		branchID, statusStr,
	)
	if err != nil {
		return nil, fmt.Errorf("select reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListBookQueue возвращает PENDING-очередь книги по времени брони с именами читателей.
func (r *PostgresRepository) ListBookQueue(ctx context.Context, bookID int64) ([]ReservationQueueEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT res.id, res.user_id, res.book_id, res.branch_id, res.reserve_time, res.expiry_time, res.status, u.real_name
		 FROM reservations res
		 JOIN users u ON u.id = res.user_id
		 WHERE res.book_id = $1 AND res.status = $2
		 ORDER BY res.reserve_time`,
		bookID, string(model.ReservationStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("select reservation queue: %w", err)
	}
	defer rows.Close()

	var res []ReservationQueueEntry
	for rows.Next() {
		var entry ReservationQueueEntry
		var status string
		err := rows.Scan(&entry.ID, &entry.UserID, &entry.BookID, &entry.BranchID,
			&entry.ReserveTime, &entry.ExpiryTime, &status, &entry.RealName)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entry.Status = model.ReservationStatus(status)
		res = append(res, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func collectReservations(rows pgx.Rows) ([]model.Reservation, error) {
	var res []model.Reservation
	for rows.Next() {
		rec, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		res = append(res, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
