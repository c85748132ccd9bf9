package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mpetrova/library-system/internal/model"
)

const borrowColumns = `id, user_id, book_id, branch_id, borrow_time, due_time, return_time, status, overdue_days, reminder_count`

func scanBorrow(row pgx.Row) (*model.BorrowRecord, error) {
	var rec model.BorrowRecord
	var status string
	err := row.Scan(&rec.ID, &rec.UserID, &rec.BookID, &rec.BranchID, &rec.BorrowTime, &rec.DueTime,
		&rec.ReturnTime, &status, &rec.OverdueDays, &rec.ReminderCount)
	if err != nil {
		return nil, err
	}
	rec.Status = model.BorrowStatus(status)
	return &rec, nil
}

// CreateBorrow выдаёт книгу читателю в одной транзакции: блокирует строку книги,
// проверяет филиал, остаток, неоплаченные штрафы и лимит выдач, затем создаёт
// запись и уменьшает available_num. loanLimit <= 0 означает отсутствие лимита.
func (r *PostgresRepository) CreateBorrow(ctx context.Context, userID, bookID, branchID int64, borrowTime, dueTime time.Time, loanLimit int) (*model.BorrowRecord, error) {
	var rec *model.BorrowRecord

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
		if book.AvailableNum <= 0 {
			return ErrNoStock
		}

		var unpaidCents int64
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(f.fine_amount), 0)
			 FROM fines f
			 JOIN borrow_records br ON f.record_id = br.id
			 WHERE br.user_id = $1 AND f.pay_status = 'unpaid'`,
			userID,
		).Scan(&unpaidCents)
		if err != nil {
			return fmt.Errorf("sum unpaid fines: %w", err)
		}
		if unpaidCents > 0 {
			return ErrUnpaidFines
		}

		if loanLimit > 0 {
			var active int
			err = tx.QueryRow(ctx,
				`SELECT COUNT(*) FROM borrow_records WHERE user_id = $1 AND status = $2`,
				userID, string(model.BorrowStatusBorrowed),
			).Scan(&active)
			if err != nil {
				return fmt.Errorf("count active borrows: %w", err)
			}
			if active >= loanLimit {
				return ErrLoanLimit
			}
		}

		row := tx.QueryRow(ctx,
			`INSERT INTO borrow_records (user_id, book_id, branch_id, borrow_time, due_time, status)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+borrowColumns,
			userID, bookID, branchID, borrowTime, dueTime, string(model.BorrowStatusBorrowed),
		)
		rec, err = scanBorrow(row)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyBorrowed
			}
			return fmt.Errorf("insert borrow record: %w", err)
		}

		if err := updateBookAvailability(ctx, tx, bookID, book.AvailableNum-1); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// GetBorrowRecord возвращает запись о выдаче по идентификатору.
func (r *PostgresRepository) GetBorrowRecord(ctx context.Context, borrowID int64) (*model.BorrowRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+borrowColumns+` FROM borrow_records WHERE id = $1`,
		borrowID,
	)

	rec, err := scanBorrow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBorrowNotFound
		}
		return nil, fmt.Errorf("get borrow record: %w", err)
	}
	return rec, nil
}

// GetActiveBorrow возвращает незакрытую выдачу книги читателю,
// в том числе уже помеченную просроченной.
func (r *PostgresRepository) GetActiveBorrow(ctx context.Context, userID, bookID int64) (*model.BorrowRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+borrowColumns+` FROM borrow_records
		 WHERE user_id = $1 AND book_id = $2 AND status IN ($3, $4)`,
		userID, bookID, string(model.BorrowStatusBorrowed), string(model.BorrowStatusOverdue),
	)

	rec, err := scanBorrow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBorrowNotFound
		}
		return nil, fmt.Errorf("get active borrow: %w", err)
	}
	return rec, nil
}

// CompleteReturn закрывает выдачу: фиксирует время возврата и просрочку,
// возвращает экземпляр на полку и при просрочке создаёт штраф в той же транзакции.
func (r *PostgresRepository) CompleteReturn(ctx context.Context, borrowID int64, returnTime time.Time, fineCentsPerDay int64) (*model.BorrowRecord, error) {
	var rec *model.BorrowRecord

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		row := tx.QueryRow(ctx,
			`SELECT `+borrowColumns+` FROM borrow_records WHERE id = $1 FOR UPDATE`,
			borrowID,
		)
		current, err := scanBorrow(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBorrowNotFound
			}
			return fmt.Errorf("lock borrow record: %w", err)
		}
		if current.Status == model.BorrowStatusReturned {
			return ErrAlreadyReturned
		}

		overdueDays := overdueDaysBetween(current.DueTime, returnTime)

		row = tx.QueryRow(ctx,
			`UPDATE borrow_records
			 SET return_time = $2, status = $3, overdue_days = $4
			 WHERE id = $1
			 RETURNING `+borrowColumns,
			borrowID, returnTime, string(model.BorrowStatusReturned), overdueDays,
		)
		rec, err = scanBorrow(row)
		if err != nil {
			return fmt.Errorf("update borrow record: %w", err)
		}

		book, err := lockBook(ctx, tx, current.BookID)
		if err != nil {
			return err
		}
		available := book.AvailableNum + 1
		if available > book.TotalNum {
			available = book.TotalNum
		}
		if err := updateBookAvailability(ctx, tx, book.ID, available); err != nil {
			return err
		}

		if overdueDays > 0 && fineCentsPerDay > 0 {
			_, err = tx.Exec(ctx,
				`INSERT INTO fines (record_id, fine_amount, pay_status) VALUES ($1, $2, 'unpaid')`,
				borrowID, fineAmountCents(overdueDays, fineCentsPerDay),
			)
			if err != nil {
				return fmt.Errorf("insert fine: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// UpdateDueTime продлевает срок возврата по записи о выдаче.
func (r *PostgresRepository) UpdateDueTime(ctx context.Context, borrowID int64, dueTime time.Time) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE borrow_records SET due_time = $2 WHERE id = $1 AND status = $3`,
		borrowID, dueTime, string(model.BorrowStatusBorrowed),
	)
	if err != nil {
		return fmt.Errorf("update due time: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrBorrowNotFound
	}
	return nil
}

// ListBorrowsByUser возвращает выдачи читателя в указанных статусах, новые первыми.
func (r *PostgresRepository) ListBorrowsByUser(ctx context.Context, userID int64, statuses []model.BorrowStatus) ([]model.BorrowRecord, error) {
	ss := make([]string, 0, len(statuses))
	for _, s := range statuses {
		ss = append(ss, string(s))
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+borrowColumns+` FROM borrow_records
		 WHERE user_id = $1 AND status = ANY($2)
		 ORDER BY borrow_time DESC`,
		userID, ss,
	)
	if err != nil {
		return nil, fmt.Errorf("select borrows: %w", err)
	}
	defer rows.Close()

	return collectBorrows(rows)
}

// ListBorrows возвращает выдачи с необязательной фильтрацией по филиалу и статусу.
func (r *PostgresRepository) ListBorrows(ctx context.Context, branchID *int64, status *model.BorrowStatus) ([]model.BorrowRecord, error) {
	var statusStr *string
	if status != nil {
		s := string(*status)
		statusStr = &s
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+borrowColumns+` FROM borrow_records
		 WHERE ($1::bigint IS NULL OR branch_id = $1)
		   AND ($2::text IS NULL OR status = $2)
		 ORDER BY borrow_time DESC`,
		branchID, statusStr,
	)
	if err != nil {
		return nil, fmt.Errorf("select borrows: %w", err)
	}
	defer rows.Close()

	return collectBorrows(rows)
}

// ListActiveBorrowsByBook возвращает всех текущих держателей книги.
func (r *PostgresRepository) ListActiveBorrowsByBook(ctx context.Context, bookID int64) ([]model.BorrowRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+borrowColumns+` FROM borrow_records
		 WHERE book_id = $1 AND status = $2
		 ORDER BY borrow_time`,
		bookID, string(model.BorrowStatusBorrowed),
	)
	if err != nil {
		return nil, fmt.Errorf("select active borrows: %w", err)
	}
	defer rows.Close()

	return collectBorrows(rows)
}

// MarkOverdue помечает просроченные выдачи и обновляет им число дней просрочки.
// Повторный запуск только освежает overdue_days.
func (r *PostgresRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE borrow_records
		 SET status = $2, overdue_days = FLOOR(EXTRACT(EPOCH FROM ($1::timestamptz - due_time)) / 86400)::int
		 WHERE return_time IS NULL AND due_time < $1 AND status IN ($3, $2)`,
		now, string(model.BorrowStatusOverdue), string(model.BorrowStatusBorrowed),
	)
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// ListOpenOverdue возвращает просроченные и не возвращённые выдачи.
func (r *PostgresRepository) ListOpenOverdue(ctx context.Context) ([]model.BorrowRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+borrowColumns+` FROM borrow_records
		 WHERE return_time IS NULL AND status = $1
		 ORDER BY due_time`,
		string(model.BorrowStatusOverdue),
	)
	if err != nil {
		return nil, fmt.Errorf("select overdue borrows: %w", err)
	}
	defer rows.Close()

	return collectBorrows(rows)
}

// SetReminderCount фиксирует порядковый номер последнего отправленного напоминания.
func (r *PostgresRepository) SetReminderCount(ctx context.Context, borrowID int64, count int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE borrow_records SET reminder_count = $2 WHERE id = $1`,
		borrowID, count,
	)
	if err != nil {
		return fmt.Errorf("set reminder count: %w", err)
	}
	return nil
}

// overdueDaysBetween считает число полных суток просрочки к моменту возврата.
// Неполные сутки не считаются просрочкой.
func overdueDaysBetween(dueTime, returnTime time.Time) int {
	if !returnTime.After(dueTime) {
		return 0
	}
	return int(returnTime.Sub(dueTime).Hours() / 24)
}

// fineAmountCents считает сумму штрафа в копейках за дни просрочки.
func fineAmountCents(overdueDays int, centsPerDay int64) int64 {
	return int64(overdueDays) * centsPerDay
}

func collectBorrows(rows pgx.Rows) ([]model.BorrowRecord, error) {
	var res []model.BorrowRecord
	for rows.Next() {
		rec, err := scanBorrow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan borrow: %w", err)
		}
		res = append(res, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
