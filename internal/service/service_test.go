package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mpetrova/library-system/internal/model"
	"github.com/mpetrova/library-system/internal/repository"
)

// stubRepo реализует Repository для тестов. Поля задают возвращаемые
// значения, слайсы с суффиксом -ed фиксируют переданные аргументы.
type stubRepo struct {
	users   map[int64]*model.User
	fines   map[int64]*model.Fine
	records map[int64]*model.BorrowRecord

	createUserID  int64
	createUserErr error
	createdUser   *model.User

	loginUser    *model.User
	loginUserErr error

	book       *model.Book
	getBookErr error

	createBorrowRec   *model.BorrowRecord
	createBorrowErr   error
	createBorrowDue   time.Time
	createBorrowLimit int

	activeBorrow    *model.BorrowRecord
	activeBorrowErr error

	completeReturnRec *model.BorrowRecord
	completeReturnErr error

	updatedDue    time.Time
	updateDueErr  error
	updatedDueIDs []int64

	activeBorrowsByBook []model.BorrowRecord

	markOverdueCount int64
	openOverdue      []model.BorrowRecord
	remindedIDs      []int64

	reservation          *model.Reservation
	createReservationRes *model.Reservation
	createReservationErr error
	createdExpiry        time.Time

	cancelledRes *model.Reservation
	cancelErr    error

	completedRes *model.Reservation
	completeErr  error

	promoted      []model.Reservation
	promoteErr    error
	promotedBooks []int64

	hasPending    bool
	hasPendingErr error

	expired []model.Reservation

	totalUnpaidCents int64
	payFinesErr      error
	paidFineIDs      []int64

	notifications []model.Notification
	enqueued      []model.OutboxEmail

	pendingEmails []model.OutboxEmail
	sentEmails    []int64
	failedEmails  []int64
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(_ context.Context, u *model.User) (int64, error) {
	s.createdUser = u
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByLogin(_ context.Context, _ string) (*model.User, error) {
	return s.loginUser, s.loginUserErr
}

func (s *stubRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubRepo) GetBook(_ context.Context, _ int64) (*model.Book, error) {
	if s.getBookErr != nil {
		return nil, s.getBookErr
	}
	return s.book, nil
}

func (s *stubRepo) CreateBorrow(_ context.Context, _, _, _ int64, _, dueTime time.Time, loanLimit int) (*model.BorrowRecord, error) {
	s.createBorrowDue = dueTime
	s.createBorrowLimit = loanLimit
	return s.createBorrowRec, s.createBorrowErr
}

func (s *stubRepo) GetBorrowRecord(_ context.Context, id int64) (*model.BorrowRecord, error) {
	if r, ok := s.records[id]; ok {
		return r, nil
	}
	return nil, repository.ErrBorrowNotFound
}

func (s *stubRepo) GetActiveBorrow(_ context.Context, _, _ int64) (*model.BorrowRecord, error) {
	return s.activeBorrow, s.activeBorrowErr
}

func (s *stubRepo) CompleteReturn(_ context.Context, _ int64, _ time.Time, _ int64) (*model.BorrowRecord, error) {
	return s.completeReturnRec, s.completeReturnErr
}

func (s *stubRepo) UpdateDueTime(_ context.Context, borrowID int64, dueTime time.Time) error {
	s.updatedDue = dueTime
	s.updatedDueIDs = append(s.updatedDueIDs, borrowID)
	return s.updateDueErr
}

func (s *stubRepo) ListBorrowsByUser(_ context.Context, _ int64, _ []model.BorrowStatus) ([]model.BorrowRecord, error) {
	return nil, nil
}

func (s *stubRepo) ListBorrows(_ context.Context, _ *int64, _ *model.BorrowStatus) ([]model.BorrowRecord, error) {
	return nil, nil
}

func (s *stubRepo) ListActiveBorrowsByBook(_ context.Context, _ int64) ([]model.BorrowRecord, error) {
	return s.activeBorrowsByBook, nil
}

func (s *stubRepo) MarkOverdue(_ context.Context, _ time.Time) (int64, error) {
	return s.markOverdueCount, nil
}

func (s *stubRepo) ListOpenOverdue(_ context.Context) ([]model.BorrowRecord, error) {
	return s.openOverdue, nil
}

func (s *stubRepo) SetReminderCount(_ context.Context, borrowID int64, count int) error {
	s.remindedIDs = append(s.remindedIDs, borrowID)
	for i := range s.openOverdue {
		if s.openOverdue[i].ID == borrowID {
			s.openOverdue[i].ReminderCount = count
		}
	}
	return nil
}

func (s *stubRepo) CreateReservation(_ context.Context, _, _, _ int64, _, expiryTime time.Time) (*model.Reservation, error) {
	s.createdExpiry = expiryTime
	return s.createReservationRes, s.createReservationErr
}

func (s *stubRepo) GetReservation(_ context.Context, _ int64) (*model.Reservation, error) {
	if s.reservation == nil {
		return nil, repository.ErrReservationNotFound
	}
	return s.reservation, nil
}

func (s *stubRepo) CancelReservation(_ context.Context, _ int64) (*model.Reservation, error) {
	return s.cancelledRes, s.cancelErr
}

func (s *stubRepo) CompleteReservation(_ context.Context, _ int64) (*model.Reservation, error) {
	return s.completedRes, s.completeErr
}

func (s *stubRepo) PromoteReservations(_ context.Context, bookID int64) ([]model.Reservation, error) {
	s.promotedBooks = append(s.promotedBooks, bookID)
	return s.promoted, s.promoteErr
}

func (s *stubRepo) HasPendingReservations(_ context.Context, _ int64) (bool, error) {
	return s.hasPending, s.hasPendingErr
}

func (s *stubRepo) ExpireReservations(_ context.Context, _ time.Time) ([]model.Reservation, error) {
	return s.expired, nil
}

func (s *stubRepo) ListReservationsByUser(_ context.Context, _ int64) ([]model.Reservation, error) {
	return nil, nil
}

func (s *stubRepo) ListReservations(_ context.Context, _ *int64, _ *model.ReservationStatus) ([]model.Reservation, error) {
	return nil, nil
}

func (s *stubRepo) ListBookQueue(_ context.Context, _ int64) ([]repository.ReservationQueueEntry, error) {
	return nil, nil
}

func (s *stubRepo) GetFine(_ context.Context, id int64) (*model.Fine, error) {
	if f, ok := s.fines[id]; ok {
		return f, nil
	}
	return nil, repository.ErrFineNotFound
}

func (s *stubRepo) GetTotalUnpaidFine(_ context.Context, _ int64) (int64, error) {
	return s.totalUnpaidCents, nil
}

func (s *stubRepo) PayFines(_ context.Context, fineIDs []int64, _ time.Time) error {
	s.paidFineIDs = append(s.paidFineIDs, fineIDs...)
	return s.payFinesErr
}

func (s *stubRepo) SetFinePayStatus(_ context.Context, _ int64, _ model.FinePayStatus, _ time.Time) error {
	return nil
}

func (s *stubRepo) ListFinesByUser(_ context.Context, _ int64) ([]model.Fine, error) {
	return nil, nil
}

func (s *stubRepo) ListFines(_ context.Context, _ *int64, _ *model.FinePayStatus) ([]model.Fine, error) {
	return nil, nil
}

func (s *stubRepo) CreateNotification(_ context.Context, n *model.Notification) error {
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *stubRepo) ListNotificationsByUser(_ context.Context, _ int64) ([]model.Notification, error) {
	return nil, nil
}

func (s *stubRepo) CountUnreadNotifications(_ context.Context, _ int64) (int64, error) {
	return 0, nil
}

func (s *stubRepo) MarkNotificationRead(_ context.Context, _, _ int64) error { return nil }

func (s *stubRepo) MarkAllNotificationsRead(_ context.Context, _ int64) error { return nil }

func (s *stubRepo) EnqueueEmail(_ context.Context, e *model.OutboxEmail) error {
	s.enqueued = append(s.enqueued, *e)
	return nil
}

func (s *stubRepo) ListPendingEmails(_ context.Context, _ int) ([]model.OutboxEmail, error) {
	return s.pendingEmails, nil
}

func (s *stubRepo) MarkEmailSent(_ context.Context, emailID int64, _ time.Time) error {
	s.sentEmails = append(s.sentEmails, emailID)
	return nil
}

func (s *stubRepo) MarkEmailFailed(_ context.Context, emailID int64, _ string) error {
	s.failedEmails = append(s.failedEmails, emailID)
	return nil
}

func newTestService(repo *stubRepo, at time.Time) *Service {
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return at }
	return svc
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRegisterUser_HashesPassword(t *testing.T) {
	repo := &stubRepo{createUserID: 7}
	svc := newTestService(repo, testNow)

	id, err := svc.RegisterUser(context.Background(), "reader", "secret", "Анна", "a@example.com", model.UserTypeStudent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}

	if repo.createdUser == nil {
		t.Fatalf("expected CreateUser to be called")
	}
	if err := bcrypt.CompareHashAndPassword(repo.createdUser.PasswordHash, []byte("secret")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if string(repo.createdUser.PasswordHash) == "secret" {
		t.Fatalf("password must not be stored in plain text")
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	repo := &stubRepo{
		loginUser: &model.User{ID: 1, Login: "reader", PasswordHash: hash},
	}
	svc := newTestService(repo, testNow)

	if _, err := svc.AuthenticateUser(context.Background(), "reader", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	repo.loginUser = nil
	repo.loginUserErr = repository.ErrUserNotFound
	if _, err := svc.AuthenticateUser(context.Background(), "ghost", "any"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown login must map to ErrInvalidCredentials, got %v", err)
	}
}

func TestBorrowBook_DueDateByUserType(t *testing.T) {
	tests := []struct {
		name      string
		userType  model.UserType
		wantDays  int
		wantLimit int
	}{
		{"student", model.UserTypeStudent, 30, 16},
		{"teacher", model.UserTypeTeacher, 60, 0},
		{"admin", model.UserTypeAdmin, 60, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{
				users:           map[int64]*model.User{1: {ID: 1, Type: tt.userType}},
				createBorrowRec: &model.BorrowRecord{ID: 10},
			}
			svc := newTestService(repo, testNow)

			if _, err := svc.BorrowBook(context.Background(), 1, 5, 2); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			wantDue := testNow.AddDate(0, 0, tt.wantDays)
			if !repo.createBorrowDue.Equal(wantDue) {
				t.Fatalf("expected due %v, got %v", wantDue, repo.createBorrowDue)
			}
			if repo.createBorrowLimit != tt.wantLimit {
				t.Fatalf("expected loan limit %d, got %d", tt.wantLimit, repo.createBorrowLimit)
			}
		})
	}
}

func TestBorrowBook_PropagatesPreconditionErrors(t *testing.T) {
	preconditions := []error{
		repository.ErrUnpaidFines,
		repository.ErrNoStock,
		repository.ErrLoanLimit,
		repository.ErrWrongBranch,
		repository.ErrAlreadyBorrowed,
		repository.ErrBookNotFound,
	}

	for _, want := range preconditions {
		repo := &stubRepo{
			users:           map[int64]*model.User{1: {ID: 1, Type: model.UserTypeStudent}},
			createBorrowErr: want,
		}
		svc := newTestService(repo, testNow)

		if _, err := svc.BorrowBook(context.Background(), 1, 5, 2); !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
	}
}

func TestReturnBook_ForbiddenForStranger(t *testing.T) {
	repo := &stubRepo{
		users:   map[int64]*model.User{2: {ID: 2, Type: model.UserTypeStudent}},
		records: map[int64]*model.BorrowRecord{10: {ID: 10, UserID: 1, BookID: 5, BranchID: 3}},
	}
	svc := newTestService(repo, testNow)

	if _, err := svc.ReturnBook(context.Background(), 2, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestReturnBook_BranchAdminScope(t *testing.T) {
	ownBranch := int64(3)
	otherBranch := int64(4)

	repo := &stubRepo{
		users: map[int64]*model.User{
			2: {ID: 2, Type: model.UserTypeBranchAdmin, BranchID: &ownBranch},
		},
		records:           map[int64]*model.BorrowRecord{10: {ID: 10, UserID: 1, BookID: 5, BranchID: ownBranch}},
		completeReturnRec: &model.BorrowRecord{ID: 10, Status: model.BorrowStatusReturned},
	}
	svc := newTestService(repo, testNow)

	if _, err := svc.ReturnBook(context.Background(), 2, 10); err != nil {
		t.Fatalf("branch admin must return books of own branch: %v", err)
	}

	repo.records[10].BranchID = otherBranch
	if _, err := svc.ReturnBook(context.Background(), 2, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for foreign branch, got %v", err)
	}
}

func TestReturnBook_PromotesQueue(t *testing.T) {
	repo := &stubRepo{
		users:             map[int64]*model.User{1: {ID: 1, Type: model.UserTypeStudent}},
		records:           map[int64]*model.BorrowRecord{10: {ID: 10, UserID: 1, BookID: 5, BranchID: 3}},
		completeReturnRec: &model.BorrowRecord{ID: 10, Status: model.BorrowStatusReturned},
	}
	svc := newTestService(repo, testNow)

	if _, err := svc.ReturnBook(context.Background(), 1, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.promotedBooks) != 1 || repo.promotedBooks[0] != 5 {
		t.Fatalf("expected queue promotion for book 5, got %v", repo.promotedBooks)
	}
}

func TestRenewBook_BlockedByPendingReservation(t *testing.T) {
	repo := &stubRepo{
		users:        map[int64]*model.User{1: {ID: 1, Type: model.UserTypeStudent}},
		activeBorrow: &model.BorrowRecord{ID: 10, UserID: 1, BookID: 5, DueTime: testNow.AddDate(0, 0, 10)},
		hasPending:   true,
	}
	svc := newTestService(repo, testNow)

	if _, err := svc.RenewBook(context.Background(), 1, 5); !errors.Is(err, ErrHasReservation) {
		t.Fatalf("expected ErrHasReservation, got %v", err)
	}
}

func TestRenewBook_BlockedWhenOverdue(t *testing.T) {
	repo := &stubRepo{
		users:        map[int64]*model.User{1: {ID: 1, Type: model.UserTypeStudent}},
		activeBorrow: &model.BorrowRecord{ID: 10, UserID: 1, BookID: 5, OverdueDays: 3},
	}
	svc := newTestService(repo, testNow)

	if _, err := svc.RenewBook(context.Background(), 1, 5); !errors.Is(err, ErrOverdue) {
		t.Fatalf("expected ErrOverdue, got %v", err)
	}
}

func TestRenewBook_BlockedWhenMarkedOverdue(t *testing.T) {
	repo := &stubRepo{
		users: map[int64]*model.User{1: {ID: 1, Type: model.UserTypeStudent}},
		activeBorrow: &model.BorrowRecord{
			ID: 10, UserID: 1, BookID: 5,
			Status:  model.BorrowStatusOverdue,
			DueTime: testNow.AddDate(0, 0, -1),
		},
	}
	svc := newTestService(repo, testNow)

	if _, err := svc.RenewBook(context.Background(), 1, 5); !errors.Is(err, ErrOverdue) {
		t.Fatalf("expected ErrOverdue, got %v", err)
	}
}

func TestRenewBook_ExtendsFromDueTime(t *testing.T) {
	due := testNow.AddDate(0, 0, 10)
	repo := &stubRepo{
		users:        map[int64]*model.User{1: {ID: 1, Type: model.UserTypeStudent}},
		activeBorrow: &model.BorrowRecord{ID: 10, UserID: 1, BookID: 5, DueTime: due},
	}
	svc := newTestService(repo, testNow)

	newDue, err := svc.RenewBook(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := due.AddDate(0, 0, 30)
	if !newDue.Equal(want) {
		t.Fatalf("expected new due %v, got %v", want, newDue)
	}
	if !repo.updatedDue.Equal(want) {
		t.Fatalf("expected UpdateDueTime with %v, got %v", want, repo.updatedDue)
	}
}

func TestReserveBook_SetsSevenDayExpiry(t *testing.T) {
	repo := &stubRepo{
		users:                map[int64]*model.User{1: {ID: 1, RealName: "Анна", Type: model.UserTypeStudent}},
		createReservationRes: &model.Reservation{ID: 20, UserID: 1, BookID: 5},
	}
	svc := newTestService(repo, testNow)

	if _, err := svc.ReserveBook(context.Background(), 1, 5, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := testNow.AddDate(0, 0, 7)
	if !repo.createdExpiry.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, repo.createdExpiry)
	}
}

func TestReserveBook_NotifiesCurrentHolders(t *testing.T) {
	repo := &stubRepo{
		users: map[int64]*model.User{
			1: {ID: 1, RealName: "Анна", Type: model.UserTypeStudent},
			9: {ID: 9, Email: "holder@example.com"},
		},
		createReservationRes: &model.Reservation{ID: 20, UserID: 1, BookID: 5},
		activeBorrowsByBook: []model.BorrowRecord{
			{ID: 11, UserID: 9, BookID: 5, DueTime: testNow.AddDate(0, 0, 5)},
		},
		book: &model.Book{ID: 5, Name: "Война и мир", Author: "Толстой", ISBN: "978-5-17-1"},
	}
	svc := newTestService(repo, testNow)

	if _, err := svc.ReserveBook(context.Background(), 1, 5, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(repo.notifications))
	}
	n := repo.notifications[0]
	if n.UserID != 9 || n.Type != model.NotificationReservationReminder {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if len(repo.enqueued) != 1 || repo.enqueued[0].Email != "holder@example.com" {
		t.Fatalf("expected outbox email for holder, got %+v", repo.enqueued)
	}
}

func TestReserveBook_PropagatesValidationErrors(t *testing.T) {
	for _, want := range []error{
		repository.ErrBookAvailable,
		repository.ErrDuplicateReservation,
		repository.ErrAlreadyBorrowed,
		repository.ErrWrongBranch,
	} {
		repo := &stubRepo{
			users:                map[int64]*model.User{1: {ID: 1, Type: model.UserTypeStudent}},
			createReservationErr: want,
		}
		svc := newTestService(repo, testNow)

		if _, err := svc.ReserveBook(context.Background(), 1, 5, 2); !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
	}
}

func TestCancelReservation_PromotesQueue(t *testing.T) {
	repo := &stubRepo{
		users:        map[int64]*model.User{1: {ID: 1, Type: model.UserTypeStudent}},
		reservation:  &model.Reservation{ID: 20, UserID: 1, BookID: 5, BranchID: 2, Status: model.ReservationStatusPending},
		cancelledRes: &model.Reservation{ID: 20, Status: model.ReservationStatusCancelled},
	}
	svc := newTestService(repo, testNow)

	if err := svc.CancelReservation(context.Background(), 1, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.promotedBooks) != 1 || repo.promotedBooks[0] != 5 {
		t.Fatalf("expected promotion for book 5, got %v", repo.promotedBooks)
	}
}

func TestCancelReservation_ForbiddenForStranger(t *testing.T) {
	repo := &stubRepo{
		users:       map[int64]*model.User{2: {ID: 2, Type: model.UserTypeStudent}},
		reservation: &model.Reservation{ID: 20, UserID: 1, BookID: 5, BranchID: 2, Status: model.ReservationStatusPending},
	}
	svc := newTestService(repo, testNow)

	if err := svc.CancelReservation(context.Background(), 2, 20); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCompleteReservation_PendingBecomesReadyAndNotifies(t *testing.T) {
	repo := &stubRepo{
		users: map[int64]*model.User{
			1: {ID: 1, Type: model.UserTypeStudent, Email: "reader@example.com"},
		},
		reservation: &model.Reservation{ID: 20, UserID: 1, BookID: 5, Status: model.ReservationStatusPending},
		completedRes: &model.Reservation{
			ID: 20, UserID: 1, BookID: 5,
			Status:     model.ReservationStatusReady,
			ExpiryTime: testNow.AddDate(0, 0, 7),
		},
		book: &model.Book{ID: 5, Name: "Мастер и Маргарита", Author: "Булгаков", ISBN: "978-5-17-2"},
	}
	svc := newTestService(repo, testNow)

	updated, err := svc.CompleteReservation(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.ReservationStatusReady {
		t.Fatalf("expected READY, got %s", updated.Status)
	}
	if len(repo.notifications) != 1 || repo.notifications[0].Type != model.NotificationReservationAvailable {
		t.Fatalf("expected availability notification, got %+v", repo.notifications)
	}
	if !strings.Contains(repo.notifications[0].Content, "заберите книгу в ближайшее время") {
		t.Fatalf("unexpected pickup notice: %q", repo.notifications[0].Content)
	}
}

func TestCompleteReservation_ReadyClosesWithoutNotification(t *testing.T) {
	repo := &stubRepo{
		users:        map[int64]*model.User{1: {ID: 1, Type: model.UserTypeStudent}},
		reservation:  &model.Reservation{ID: 20, UserID: 1, BookID: 5, Status: model.ReservationStatusReady},
		completedRes: &model.Reservation{ID: 20, UserID: 1, BookID: 5, Status: model.ReservationStatusCompleted},
	}
	svc := newTestService(repo, testNow)

	updated, err := svc.CompleteReservation(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.ReservationStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", updated.Status)
	}
	if len(repo.notifications) != 0 {
		t.Fatalf("no notification expected, got %+v", repo.notifications)
	}
}

func TestSweepExpiredReservations_NotifiesAndPromotes(t *testing.T) {
	repo := &stubRepo{
		users: map[int64]*model.User{
			1: {ID: 1, Email: "one@example.com"},
			2: {ID: 2, Email: "two@example.com"},
		},
		expired: []model.Reservation{
			{ID: 20, UserID: 1, BookID: 5, ExpiryTime: testNow.AddDate(0, 0, -1)},
			{ID: 21, UserID: 2, BookID: 5, ExpiryTime: testNow.AddDate(0, 0, -2)},
		},
		book: &model.Book{ID: 5, Name: "Анна Каренина", Author: "Толстой", ISBN: "978-5-17-3"},
	}
	svc := newTestService(repo, testNow)

	if err := svc.SweepExpiredReservations(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.notifications) != 2 {
		t.Fatalf("expected 2 expiry notifications, got %d", len(repo.notifications))
	}
	for _, n := range repo.notifications {
		if n.Type != model.NotificationReservationExpiry {
			t.Fatalf("unexpected notification type %s", n.Type)
		}
	}
	// обе брони на одну книгу, очередь продвигается один раз
	if len(repo.promotedBooks) != 1 || repo.promotedBooks[0] != 5 {
		t.Fatalf("expected single promotion for book 5, got %v", repo.promotedBooks)
	}
}

func TestSendOverdueReminders_DayMarks(t *testing.T) {
	tests := []struct {
		name          string
		elapsedDays   int
		reminderCount int
		wantSent      bool
		wantFine      string
	}{
		{"before first mark", 13, 0, false, ""},
		{"first mark", 14, 0, true, "Текущий штраф: 0.00 руб."},
		{"first mark already sent", 14, 1, false, ""},
		{"between marks", 30, 1, false, ""},
		{"second mark", 42, 1, true, "Текущий штраф: 12.00 руб."},
		{"third mark", 70, 2, true, "Текущий штраф: 40.00 руб."},
		{"past last mark", 71, 3, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{
				users: map[int64]*model.User{1: {ID: 1, Email: "reader@example.com"}},
				openOverdue: []model.BorrowRecord{
					{
						ID: 10, UserID: 1, BookID: 5,
						DueTime:       testNow.AddDate(0, 0, -tt.elapsedDays),
						Status:        model.BorrowStatusOverdue,
						ReminderCount: tt.reminderCount,
					},
				},
				book: &model.Book{ID: 5, Name: "Преступление и наказание", Author: "Достоевский", ISBN: "978-5-17-4"},
			}
			svc := newTestService(repo, testNow)

			if err := svc.SendOverdueReminders(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			sent := len(repo.remindedIDs) > 0
			if sent != tt.wantSent {
				t.Fatalf("wantSent=%v, reminded=%v", tt.wantSent, repo.remindedIDs)
			}
			if tt.wantSent {
				if len(repo.notifications) != 1 {
					t.Fatalf("expected 1 reminder notification, got %d", len(repo.notifications))
				}
				if !strings.Contains(repo.notifications[0].Content, tt.wantFine) {
					t.Fatalf("expected %q in content, got %q", tt.wantFine, repo.notifications[0].Content)
				}
			}
		})
	}
}

func TestSendOverdueReminders_MissedMarkSentOnce(t *testing.T) {
	// Счётчик остался нулевым, хотя отметка 14-го дня уже позади:
	// на 42-й день уходит одно напоминание, повторный запуск молчит.
	repo := &stubRepo{
		users: map[int64]*model.User{1: {ID: 1, Email: "reader@example.com"}},
		openOverdue: []model.BorrowRecord{
			{
				ID: 10, UserID: 1, BookID: 5,
				DueTime: testNow.AddDate(0, 0, -42),
				Status:  model.BorrowStatusOverdue,
			},
		},
		book: &model.Book{ID: 5, Name: "Идиот", Author: "Достоевский", ISBN: "978-5-17-5"},
	}
	svc := newTestService(repo, testNow)

	for i := 0; i < 2; i++ {
		if err := svc.SendOverdueReminders(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(repo.notifications) != 1 {
		t.Fatalf("expected 1 reminder notification, got %d", len(repo.notifications))
	}
	if got := repo.openOverdue[0].ReminderCount; got != 2 {
		t.Fatalf("expected reminder count 2, got %d", got)
	}
}

func TestFlushPendingNotifications(t *testing.T) {
	repo := &stubRepo{
		pendingEmails: []model.OutboxEmail{
			{ID: 1, Email: "ok@example.com", Subject: "s", Content: "c"},
			{ID: 2, Email: "fail@example.com", Subject: "s", Content: "c"},
		},
	}
	mail := &failingMailer{failFor: "fail@example.com"}

	svc := NewService(repo, mail, nil)
	svc.now = func() time.Time { return testNow }

	if err := svc.FlushPendingNotifications(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.sentEmails) != 1 || repo.sentEmails[0] != 1 {
		t.Fatalf("expected email 1 sent, got %v", repo.sentEmails)
	}
	if len(repo.failedEmails) != 1 || repo.failedEmails[0] != 2 {
		t.Fatalf("expected email 2 failed, got %v", repo.failedEmails)
	}
}

type failingMailer struct {
	failFor string
}

func (m *failingMailer) Send(_ context.Context, to, _, _ string) error {
	if to == m.failFor {
		return errors.New("gateway unavailable")
	}
	return nil
}

func TestPayFine_ForbiddenForStranger(t *testing.T) {
	repo := &stubRepo{
		users:   map[int64]*model.User{2: {ID: 2, Type: model.UserTypeStudent}},
		fines:   map[int64]*model.Fine{30: {ID: 30, RecordID: 10, Amount: 5, PayStatus: model.FineUnpaid}},
		records: map[int64]*model.BorrowRecord{10: {ID: 10, UserID: 1, BranchID: 3}},
	}
	svc := newTestService(repo, testNow)

	if err := svc.PayFine(context.Background(), 2, 30); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if len(repo.paidFineIDs) != 0 {
		t.Fatalf("PayFines must not be called, got %v", repo.paidFineIDs)
	}
}

func TestBatchPayFines_RejectsForeignFine(t *testing.T) {
	repo := &stubRepo{
		users: map[int64]*model.User{1: {ID: 1, Type: model.UserTypeStudent}},
		fines: map[int64]*model.Fine{
			30: {ID: 30, RecordID: 10, PayStatus: model.FineUnpaid},
			31: {ID: 31, RecordID: 11, PayStatus: model.FineUnpaid},
		},
		records: map[int64]*model.BorrowRecord{
			10: {ID: 10, UserID: 1, BranchID: 3},
			11: {ID: 11, UserID: 2, BranchID: 3},
		},
	}
	svc := newTestService(repo, testNow)

	if err := svc.BatchPayFines(context.Background(), 1, []int64{30, 31}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if len(repo.paidFineIDs) != 0 {
		t.Fatalf("PayFines must not be called, got %v", repo.paidFineIDs)
	}
}

func TestBatchPayFines_PaysAllOwned(t *testing.T) {
	repo := &stubRepo{
		users: map[int64]*model.User{1: {ID: 1, Type: model.UserTypeStudent}},
		fines: map[int64]*model.Fine{
			30: {ID: 30, RecordID: 10, PayStatus: model.FineUnpaid},
			31: {ID: 31, RecordID: 11, PayStatus: model.FineUnpaid},
		},
		records: map[int64]*model.BorrowRecord{
			10: {ID: 10, UserID: 1, BranchID: 3},
			11: {ID: 11, UserID: 1, BranchID: 3},
		},
	}
	svc := newTestService(repo, testNow)

	if err := svc.BatchPayFines(context.Background(), 1, []int64{30, 31}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.paidFineIDs) != 2 {
		t.Fatalf("expected 2 fines paid, got %v", repo.paidFineIDs)
	}
}

func TestSetFineStatus_AdminOnly(t *testing.T) {
	ownBranch := int64(3)
	repo := &stubRepo{
		users: map[int64]*model.User{
			1: {ID: 1, Type: model.UserTypeStudent},
			2: {ID: 2, Type: model.UserTypeBranchAdmin, BranchID: &ownBranch},
		},
		fines:   map[int64]*model.Fine{30: {ID: 30, RecordID: 10, PayStatus: model.FinePaid}},
		records: map[int64]*model.BorrowRecord{10: {ID: 10, UserID: 1, BranchID: ownBranch}},
	}
	svc := newTestService(repo, testNow)

	// должник не может менять статус собственного штрафа
	if err := svc.SetFineStatus(context.Background(), 1, 30, model.FineUnpaid); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for owner, got %v", err)
	}

	if err := svc.SetFineStatus(context.Background(), 2, 30, model.FineUnpaid); err != nil {
		t.Fatalf("branch admin must override fine status: %v", err)
	}
}

func TestTotalUnpaidFine_ConvertsToRubles(t *testing.T) {
	repo := &stubRepo{totalUnpaidCents: 12345}
	svc := newTestService(repo, testNow)

	total, err := svc.TotalUnpaidFine(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 123.45 {
		t.Fatalf("expected 123.45, got %v", total)
	}
}
