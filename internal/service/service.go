// Package service реализует бизнес-логику библиотечной системы:
// выдачу и возврат книг, очередь броней и штрафы за просрочку.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mpetrova/library-system/internal/model"
	"github.com/mpetrova/library-system/internal/repository"
)

// Сроки и лимиты политики выдачи.
const (
	studentLoanDays  = 30
	teacherLoanDays  = 60
	studentLoanLimit = 16

	reservationHoldDays = 7

	// Штраф начисляется по рублю за день просрочки, хранится в копейках.
	fineCentsPerOverdueDay = 100

	// В письмах-напоминаниях первые 30 дней просрочки не входят в показываемую
	// сумму штрафа. Штраф при возврате считается без этого вычета.
	reminderGraceDays = 30
)

// ErrForbidden возвращается, когда у пользователя нет прав на операцию.
var (
	ErrForbidden = errors.New("operation not permitted for this user")
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrHasReservation возвращается при попытке продлить книгу с очередью броней.
	ErrHasReservation = errors.New("book has pending reservations")
	// ErrOverdue возвращается при попытке продлить просроченную выдачу.
	ErrOverdue = errors.New("borrow record is overdue")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	GetBook(ctx context.Context, bookID int64) (*model.Book, error)

	CreateBorrow(ctx context.Context, userID, bookID, branchID int64, borrowTime, dueTime time.Time, loanLimit int) (*model.BorrowRecord, error)
	GetBorrowRecord(ctx context.Context, borrowID int64) (*model.BorrowRecord, error)
	GetActiveBorrow(ctx context.Context, userID, bookID int64) (*model.BorrowRecord, error)
	CompleteReturn(ctx context.Context, borrowID int64, returnTime time.Time, fineCentsPerDay int64) (*model.BorrowRecord, error)
	UpdateDueTime(ctx context.Context, borrowID int64, dueTime time.Time) error
	ListBorrowsByUser(ctx context.Context, userID int64, statuses []model.BorrowStatus) ([]model.BorrowRecord, error)
	ListBorrows(ctx context.Context, branchID *int64, status *model.BorrowStatus) ([]model.BorrowRecord, error)
	ListActiveBorrowsByBook(ctx context.Context, bookID int64) ([]model.BorrowRecord, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	ListOpenOverdue(ctx context.Context) ([]model.BorrowRecord, error)
	SetReminderCount(ctx context.Context, borrowID int64, count int) error

	CreateReservation(ctx context.Context, userID, bookID, branchID int64, reserveTime, expiryTime time.Time) (*model.Reservation, error)
	GetReservation(ctx context.Context, reservationID int64) (*model.Reservation, error)
	CancelReservation(ctx context.Context, reservationID int64) (*model.Reservation, error)
	CompleteReservation(ctx context.Context, reservationID int64) (*model.Reservation, error)
	PromoteReservations(ctx context.Context, bookID int64) ([]model.Reservation, error)
	HasPendingReservations(ctx context.Context, bookID int64) (bool, error)
	ExpireReservations(ctx context.Context, now time.Time) ([]model.Reservation, error)
	ListReservationsByUser(ctx context.Context, userID int64) ([]model.Reservation, error)
	ListReservations(ctx context.Context, branchID *int64, status *model.ReservationStatus) ([]model.Reservation, error)
	ListBookQueue(ctx context.Context, bookID int64) ([]repository.ReservationQueueEntry, error)

	GetFine(ctx context.Context, fineID int64) (*model.Fine, error)
	GetTotalUnpaidFine(ctx context.Context, userID int64) (int64, error)
	PayFines(ctx context.Context, fineIDs []int64, payTime time.Time) error
	SetFinePayStatus(ctx context.Context, fineID int64, status model.FinePayStatus, payTime time.Time) error
	ListFinesByUser(ctx context.Context, userID int64) ([]model.Fine, error)
	ListFines(ctx context.Context, branchID *int64, payStatus *model.FinePayStatus) ([]model.Fine, error)

	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID int64) (int64, error)
	MarkNotificationRead(ctx context.Context, notificationID, userID int64) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) error

	EnqueueEmail(ctx context.Context, e *model.OutboxEmail) error
	ListPendingEmails(ctx context.Context, limit int) ([]model.OutboxEmail, error)
	MarkEmailSent(ctx context.Context, emailID int64, sentAt time.Time) error
	MarkEmailFailed(ctx context.Context, emailID int64, reason string) error
}

// Mailer описывает контракт отправки писем через почтовый шлюз.
type Mailer interface {
	Send(ctx context.Context, to, subject, content string) error
}

// Service содержит бизнес-логику библиотечной системы.
type Service struct {
	repo   Repository
	mailer Mailer
	logger *zap.Logger
	now    func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и почтовым шлюзом.
func NewService(repo Repository, mailer Mailer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password, realName, email string, userType model.UserType) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, &model.User{
		Login:        login,
		PasswordHash: hash,
		RealName:     realName,
		Email:        email,
		Type:         userType,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// loanDays возвращает срок выдачи в днях для категории пользователя.
func loanDays(t model.UserType) int {
	if t == model.UserTypeStudent {
		return studentLoanDays
	}
	return teacherLoanDays
}

// canAdminister сообщает, вправе ли пользователь распоряжаться записями филиала.
// Системный администратор распоряжается любым филиалом, администратор филиала только своим.
func canAdminister(u *model.User, branchID int64) bool {
	switch u.Type {
	case model.UserTypeAdmin:
		return true
	case model.UserTypeBranchAdmin:
		return u.BranchID != nil && *u.BranchID == branchID
	default:
		return false
	}
}
