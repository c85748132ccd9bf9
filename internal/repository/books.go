package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mpetrova/library-system/internal/model"
)

// GetBook возвращает книгу по идентификатору.
func (r *PostgresRepository) GetBook(ctx context.Context, bookID int64) (*model.Book, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, branch_id, book_name, author, isbn, total_num, available_num, status, created_at
		 FROM books WHERE id = $1`,
		bookID,
	)

	var b model.Book
	var status string
	err := row.Scan(&b.ID, &b.BranchID, &b.Name, &b.Author, &b.ISBN, &b.TotalNum, &b.AvailableNum, &status, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	b.Status = model.BookStatus(status)
	return &b, nil
}

// lockBook читает строку книги под блокировкой FOR UPDATE.
// Все check-then-act операции над available_num идут через эту блокировку.
func lockBook(ctx context.Context, tx pgx.Tx, bookID int64) (*model.Book, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, branch_id, book_name, author, isbn, total_num, available_num, status, created_at
		 FROM books WHERE id = $1 FOR UPDATE`,
		bookID,
	)

	var b model.Book
	var status string
	err := row.Scan(&b.ID, &b.BranchID, &b.Name, &b.Author, &b.ISBN, &b.TotalNum, &b.AvailableNum, &status, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("lock book: %w", err)
	}
	b.Status = model.BookStatus(status)
	return &b, nil
}

func updateBookAvailability(ctx context.Context, tx pgx.Tx, bookID int64, availableNum int) error {
	status := model.BookStatusNormal
	if availableNum == 0 {
		status = model.BookStatusOutOfStock
	}

	_, err := tx.Exec(ctx,
		`UPDATE books SET available_num = $2, status = $3 WHERE id = $1`,
		bookID, availableNum, string(status),
	)
	if err != nil {
		return fmt.Errorf("update book availability: %w", err)
	}
	return nil
}
