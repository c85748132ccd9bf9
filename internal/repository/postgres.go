// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrBookNotFound возвращается, если книга не найдена.
	ErrBookNotFound = errors.New("book not found")
	// ErrWrongBranch возвращается, если книга не принадлежит указанному филиалу.
	ErrWrongBranch = errors.New("book does not belong to the branch")
	// ErrNoStock возвращается при попытке выдать книгу без доступных экземпляров.
	ErrNoStock = errors.New("no available copies")
	// ErrUnpaidFines возвращается, если у читателя есть неоплаченные штрафы.
	ErrUnpaidFines = errors.New("user has unpaid fines")
	// ErrLoanLimit возвращается при превышении лимита одновременных выдач.
	ErrLoanLimit = errors.New("loan limit exceeded")
	// ErrAlreadyBorrowed возвращается, если у читателя уже есть активная выдача этой книги.
	ErrAlreadyBorrowed = errors.New("book already borrowed by user")
	// ErrBorrowNotFound возвращается, если запись о выдаче не найдена.
	ErrBorrowNotFound = errors.New("borrow record not found")
	// ErrAlreadyReturned возвращается при повторной попытке вернуть книгу.
	ErrAlreadyReturned = errors.New("book already returned")
	// ErrBookAvailable возвращается при попытке забронировать книгу, доступную для выдачи.
	ErrBookAvailable = errors.New("book is available for direct borrow")
	// ErrDuplicateReservation возвращается, если у читателя уже есть активная бронь этой книги.
	ErrDuplicateReservation = errors.New("active reservation already exists")
	// ErrReservationNotFound возвращается, если бронь не найдена.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrReservationClosed возвращается при переходе из терминального состояния брони.
	ErrReservationClosed = errors.New("reservation already cancelled or completed")
	// ErrFineNotFound возвращается, если штраф не найден.
	ErrFineNotFound = errors.New("fine not found")
	// ErrFinePaid возвращается при повторной оплате штрафа.
	ErrFinePaid = errors.New("fine already paid")
	// ErrNotificationNotFound возвращается, если уведомление не найдено у пользователя.
	ErrNotificationNotFound = errors.New("notification not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Блокировки строки книги конкурируют между Borrow/Return/Promote,
		// поэтому ретраим дедлоки и serialization failure.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
