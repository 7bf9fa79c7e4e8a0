package email

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/mail"
)

// DeliveryOutcome records the result of a send attempt. Failures are
// represented here, never as returned errors.
type DeliveryOutcome struct {
	Success   bool
	MessageID string
	Error     string
	SentAt    *time.Time
}

// Dispatcher performs rate-limited, single-attempt email delivery. Send
// never returns an error: duplicate follow-up emails are worse than
// missed ones, so a failed attempt is recorded and not retried.
type Dispatcher struct {
	transport mail.Transport
	limiter   *rate.Limiter
}

// NewDispatcher creates a Dispatcher over the given transport.
func NewDispatcher(transport mail.Transport, cfg config.MailConfig) *Dispatcher {
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Dispatcher{
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Send delivers the content to the recipient and reports the outcome.
func (d *Dispatcher) Send(ctx context.Context, to string, content *Content) DeliveryOutcome {
	if err := d.limiter.Wait(ctx); err != nil {
		return DeliveryOutcome{Success: false, Error: err.Error()}
	}

	id, err := d.transport.Deliver(ctx, mail.Message{
		To:      to,
		Subject: content.Subject,
		HTML:    content.Body,
	})
	if err != nil {
		zap.L().Warn("email delivery failed",
			zap.String("to", to),
			zap.Error(err),
		)
		return DeliveryOutcome{Success: false, Error: err.Error()}
	}

	now := time.Now().UTC()
	zap.L().Info("email sent",
		zap.String("to", to),
		zap.String("message_id", id),
	)
	return DeliveryOutcome{Success: true, MessageID: id, SentAt: &now}
}

// ShouldSend reports whether a follow-up email should go out at all:
// the form must have auto-response enabled and the submission must carry
// a recipient address.
func ShouldSend(sub *model.Submission, form *model.FormConfig) bool {
	return form.Email.AutoResponse && sub.Email != ""
}
