// Package scheduler запускает периодические фоновые задачи библиотечного сервиса.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Engine определяет фоновые операции, выполняемые по расписанию.
type Engine interface {
	SweepOverdue(ctx context.Context) error
	SweepExpiredReservations(ctx context.Context) error
	SendOverdueReminders(ctx context.Context) error
	FlushPendingNotifications(ctx context.Context) error
}

// Scheduler периодически выполняет задачи обслуживания: пометку просрочек,
// снятие истёкших броней, напоминания и отправку писем.
type Scheduler struct {
	engine   Engine
	logger   *zap.Logger
	interval time.Duration
}

// NewScheduler создаёт планировщик с указанным интервалом между проходами.
func NewScheduler(engine Engine, logger *zap.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		engine:   engine,
		logger:   logger,
		interval: interval,
	}
}

// Run выполняет проходы обслуживания до отмены контекста.
// Первый проход выполняется сразу при запуске.
func (s *Scheduler) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce выполняет все задачи одного прохода. Ошибка одной задачи
// не мешает остальным: каждая задача идемпотентна и догонит на следующем проходе.
func (s *Scheduler) runOnce(ctx context.Context) {
	tasks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"sweep overdue", s.engine.SweepOverdue},
		{"sweep expired reservations", s.engine.SweepExpiredReservations},
		{"send overdue reminders", s.engine.SendOverdueReminders},
		{"flush pending notifications", s.engine.FlushPendingNotifications},
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		if err := task.fn(ctx); err != nil {
			s.logger.Error("maintenance task failed",
				zap.String("task", task.name), zap.Error(err))
		}
	}
}
