package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Notification channel names. Payload is the textual row id.
const (
	ChannelSignificantNews = "new_significant_news"
	ChannelTradingSignals  = "new_trading_signals"
)

const (
	listenerInitialBackoff = time.Second
	listenerMaxBackoff     = time.Minute
)

// Listener holds a dedicated connection LISTENing on one channel. Delivery
// is at-least-once: on every (re)connect the sweep callback drains rows the
// consumer may have missed, then the handler runs per notification.
type Listener struct {
	url     string
	channel string
	log     zerolog.Logger

	// Handle processes one notified row id. Errors are logged, not fatal.
	Handle func(ctx context.Context, id int64) error
	// Sweep drains unprocessed rows after (re)connecting.
	Sweep func(ctx context.Context) error
}

// NewListener creates a listener for the given channel
func NewListener(url, channel string, logger zerolog.Logger) *Listener {
	return &Listener{
		url:     url,
		channel: channel,
		log:     logger.With().Str("channel", channel).Logger(),
	}
}

// Run listens until the context is cancelled, reconnecting with backoff on
// connection loss.
func (l *Listener) Run(ctx context.Context) error {
	backoff := listenerInitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.listenOnce(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return ctx.Err()
		}

		l.log.Warn().Err(err).Dur("backoff", backoff).Msg("Listener connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > listenerMaxBackoff {
			backoff = listenerMaxBackoff
		}
	}
}

// listenOnce connects, sweeps, then blocks on notifications until the
// connection or context dies.
func (l *Listener) listenOnce(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.url)
	if err != nil {
		return fmt.Errorf("failed to connect listener: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+l.channel); err != nil {
		return fmt.Errorf("failed to LISTEN on %s: %w", l.channel, err)
	}
	l.log.Info().Msg("Listening for notifications")

	// Notifications sent before LISTEN took effect are recovered here.
	if l.Sweep != nil {
		if err := l.Sweep(ctx); err != nil {
			l.log.Error().Err(err).Msg("Startup sweep failed")
		}
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		id, err := strconv.ParseInt(notification.Payload, 10, 64)
		if err != nil {
			l.log.Warn().Str("payload", notification.Payload).Msg("Ignoring malformed notification payload")
			continue
		}

		if l.Handle != nil {
			if err := l.Handle(ctx, id); err != nil {
				l.log.Error().Err(err).Int64("id", id).Msg("Notification handler failed")
			}
		}
	}
}
