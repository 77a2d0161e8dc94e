package billing

import (
	"log/slog"
	"time"

	"github.com/billstate/billstate/pkg/lock"
)

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithLogger sets the structured logger. Nil loggers are ignored.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLocker replaces the default in-process keyed mutex, e.g. with the
// Redis locker when several instances share one database.
func WithLocker(l lock.Locker) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithNotifier sets the post-commit status change notifier.
func WithNotifier(n StatusNotifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMetrics sets pre-registered collectors, typically shared with the
// sweeper.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithGatewayTimeout bounds every outbound payment gateway call.
func WithGatewayTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
