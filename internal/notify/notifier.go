// Package notify fans protection alerts out to operator channels. Every
// registered sender (Telegram, Discord) receives each alert; one channel
// failing does not block the others.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Najnomics/fheap/internal/domain"
)

// Sender is one delivery channel for operator alerts.
type Sender interface {
	// Send delivers an alert with the given subject and body.
	Send(ctx context.Context, subject, body string) error
	// Name returns the channel identifier (e.g. "telegram").
	Name() string
}

// Notifier implements domain.Notifier by dispatching to all registered
// senders. An optional subject allowlist filters which alerts go out; an
// empty allowlist passes everything.
type Notifier struct {
	senders  []Sender
	subjects map[string]bool
	logger   *slog.Logger
}

// New creates a Notifier delivering to the given senders. Only alerts whose
// subject appears in subjects are forwarded; an empty slice allows all.
func New(senders []Sender, subjects []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		allowed[strings.TrimSpace(s)] = true
	}
	return &Notifier{
		senders:  senders,
		subjects: allowed,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

var _ domain.Notifier = (*Notifier)(nil)

// Notify sends the alert to every sender, subject allowlist permitting.
func (n *Notifier) Notify(ctx context.Context, subject, body string) error {
	if len(n.subjects) > 0 && !n.subjects[subject] {
		n.logger.DebugContext(ctx, "alert filtered out",
			slog.String("subject", subject),
		)
		return nil
	}

	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, subject, body); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "alert sent",
				slog.String("sender", s.Name()),
				slog.String("subject", subject),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
