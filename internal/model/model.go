// Package model содержит доменные сущности библиотечной системы.
package model

import "time"

// UserType определяет категорию пользователя и его права.
type UserType string

const (
	UserTypeStudent     UserType = "STUDENT"
	UserTypeTeacher     UserType = "TEACHER"
	UserTypeAdmin       UserType = "ADMIN"
	UserTypeBranchAdmin UserType = "BRANCH_ADMIN"
)

// IsAdmin сообщает, обладает ли пользователь административными правами.
func (t UserType) IsAdmin() bool {
	return t == UserTypeAdmin || t == UserTypeBranchAdmin
}

// User представляет зарегистрированного читателя или сотрудника библиотеки.
type User struct {
	ID           int64     `json:"id"`
	Login        string    `json:"login"`
	PasswordHash []byte    `json:"-"`
	RealName     string    `json:"realName"`
	Email        string    `json:"email,omitempty"`
	Type         UserType  `json:"userType"`
	BranchID     *int64    `json:"branchId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BookStatus описывает доступность книги для выдачи.
type BookStatus string

const (
	BookStatusNormal     BookStatus = "normal"
	BookStatusOutOfStock BookStatus = "out_of_stock"
)

// Book описывает книгу в каталоге одного филиала.
type Book struct {
	ID           int64      `json:"id"`
	BranchID     int64      `json:"branchId"`
	Name         string     `json:"bookName"`
	Author       string     `json:"author"`
	ISBN         string     `json:"isbn"`
	TotalNum     int        `json:"totalNum"`
	AvailableNum int        `json:"availableNum"`
	Status       BookStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// BorrowStatus описывает состояние записи о выдаче.
type BorrowStatus string

const (
	BorrowStatusBorrowed BorrowStatus = "BORROWED"
	BorrowStatusReturned BorrowStatus = "RETURNED"
	BorrowStatusOverdue  BorrowStatus = "OVERDUE"
)

// BorrowRecord описывает выдачу книги читателю.
type BorrowRecord struct {
	ID            int64        `json:"id"`
	UserID        int64        `json:"userId"`
	BookID        int64        `json:"bookId"`
	BranchID      int64        `json:"branchId"`
	BorrowTime    time.Time    `json:"borrowTime"`
	DueTime       time.Time    `json:"dueTime"`
	ReturnTime    *time.Time   `json:"returnTime,omitempty"`
	Status        BorrowStatus `json:"status"`
	OverdueDays   int          `json:"overdueDays"`
	ReminderCount int          `json:"-"`
}

// ReservationStatus описывает состояние брони.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusReady     ReservationStatus = "READY"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusCompleted ReservationStatus = "COMPLETED"
)

// Reservation описывает место читателя в очереди на книгу.
type Reservation struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"userId"`
	BookID      int64             `json:"bookId"`
	BranchID    int64             `json:"branchId"`
	ReserveTime time.Time         `json:"reserveTime"`
	ExpiryTime  time.Time         `json:"expiryTime"`
	Status      ReservationStatus `json:"status"`
}

// FinePayStatus описывает состояние оплаты штрафа.
type FinePayStatus string

const (
	FineUnpaid FinePayStatus = "unpaid"
	FinePaid   FinePayStatus = "paid"
)

// Fine описывает штраф за просрочку, привязанный к записи о выдаче.
type Fine struct {
	ID        int64         `json:"id"`
	RecordID  int64         `json:"recordId"`
	Amount    float64       `json:"amount"`
	PayStatus FinePayStatus `json:"payStatus"`
	PayTime   *time.Time    `json:"payTime,omitempty"`
}

// NotificationType определяет тип уведомления.
type NotificationType string

const (
	NotificationReservationAvailable NotificationType = "RESERVATION_AVAILABLE"
	NotificationReservationReminder  NotificationType = "RESERVATION_REMINDER"
	NotificationOverdueReminder      NotificationType = "OVERDUE_REMINDER"
	NotificationReservationExpiry    NotificationType = "RESERVATION_EXPIRY"
)

// Notification описывает внутрисистемное уведомление пользователя.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"userId"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	Type      NotificationType `json:"type"`
	Important bool             `json:"important"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// OutboxStatus описывает состояние письма в очереди отправки.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "PENDING"
	OutboxSent    OutboxStatus = "SENT"
	OutboxFailed  OutboxStatus = "FAILED"
)

// OutboxEmail описывает письмо, ожидающее отправки через почтовый шлюз.
type OutboxEmail struct {
	ID        int64
	UserID    int64
	Email     string
	Subject   string
	Content   string
	Status    OutboxStatus
	CreatedAt time.Time
	SentAt    *time.Time
	LastError string
}
