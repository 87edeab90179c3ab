package db

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ServiceLogHook mirrors WARN-and-above log events into the service_logs
// table so the dashboard can read them. Writes are fire-and-forget: a
// failing insert must never fail or slow the caller.
type ServiceLogHook struct {
	db      *DB
	service string
}

// NewServiceLogHook creates a hook writing rows tagged with the service name
func NewServiceLogHook(db *DB, service string) *ServiceLogHook {
	return &ServiceLogHook{db: db, service: service}
}

// Run implements zerolog.Hook
func (h *ServiceLogHook) Run(e *zerolog.Event, level zerolog.Level, message string) {
	if level < zerolog.WarnLevel || message == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_, _ = h.db.pool.Exec(ctx,
			"INSERT INTO service_logs (timestamp, level, message, service) VALUES (NOW(), $1, $2, $3)",
			level.String(), message, h.service,
		)
	}()
}
