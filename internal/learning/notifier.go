package learning

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/foyer-ai/foyer/internal/config"
)

// notifyTimeout bounds the notification command; a hung notifier must never
// stall the pipeline.
const notifyTimeout = 5 * time.Second

// Notifier sends desktop notifications via an external command
// (notify-send by default). Failures are logged, never surfaced.
type Notifier struct {
	enabled bool
	command string
}

// NewNotifier constructs a Notifier from config.
func NewNotifier(cfg config.NotificationConfig) *Notifier {
	return &Notifier{enabled: cfg.Enabled, command: cfg.Command}
}

// Send delivers one notification with a title and message.
func (n *Notifier) Send(title, message string) {
	if !n.enabled {
		slog.Debug("notifications disabled")
		return
	}
	if _, err := exec.LookPath(n.command); err != nil {
		slog.Warn("notification command not available, skipping", "command", n.command)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := exec.CommandContext(ctx, n.command, title, message).Run(); err != nil {
		slog.Warn("failed to send notification", "err", err)
		return
	}
	slog.Info("notification sent", "title", title)
}

// NotifyReview announces corrections awaiting admin review.
func (n *Notifier) NotifyReview(count int) {
	plural := ""
	if count > 1 {
		plural = "s"
	}
	n.Send("Foyer — Learning Review",
		fmt.Sprintf("%d correction%s en attente d'approbation.", count, plural))
}
