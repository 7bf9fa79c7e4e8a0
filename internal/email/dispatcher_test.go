package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/mail"
)

// stubTransport records deliveries and can be told to fail.
type stubTransport struct {
	err      error
	messages []mail.Message
}

func (s *stubTransport) Deliver(_ context.Context, msg mail.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.messages = append(s.messages, msg)
	return "msg-123", nil
}

func fastMailConfig() config.MailConfig {
	return config.MailConfig{RatePerSecond: 1000, RateBurst: 100}
}

func TestSend_Success(t *testing.T) {
	transport := &stubTransport{}
	d := NewDispatcher(transport, fastMailConfig())

	outcome := d.Send(context.Background(), "jane@example.com", &Content{
		Subject: "Hello",
		Body:    "<p>Hi</p>",
	})

	assert.True(t, outcome.Success)
	assert.Equal(t, "msg-123", outcome.MessageID)
	require.NotNil(t, outcome.SentAt)
	assert.Empty(t, outcome.Error)

	require.Len(t, transport.messages, 1)
	assert.Equal(t, "jane@example.com", transport.messages[0].To)
	assert.Equal(t, "Hello", transport.messages[0].Subject)
}

func TestSend_FailureIsAnOutcomeNotAnError(t *testing.T) {
	transport := &stubTransport{err: errors.New("smtp 554 rejected")}
	d := NewDispatcher(transport, fastMailConfig())

	outcome := d.Send(context.Background(), "jane@example.com", &Content{Subject: "s", Body: "b"})

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "smtp 554")
	assert.Nil(t, outcome.SentAt)
	assert.Empty(t, outcome.MessageID)
}

func TestSend_SingleAttempt(t *testing.T) {
	calls := 0
	transport := &countingTransport{onDeliver: func() error {
		calls++
		return errors.New("i/o timeout")
	}}
	d := NewDispatcher(transport, fastMailConfig())

	outcome := d.Send(context.Background(), "jane@example.com", &Content{Subject: "s", Body: "b"})

	assert.False(t, outcome.Success)
	assert.Equal(t, 1, calls)
}

func TestSend_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(&stubTransport{}, fastMailConfig())
	outcome := d.Send(ctx, "jane@example.com", &Content{Subject: "s", Body: "b"})

	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.Error)
}

type countingTransport struct {
	onDeliver func() error
}

func (c *countingTransport) Deliver(_ context.Context, _ mail.Message) (string, error) {
	if err := c.onDeliver(); err != nil {
		return "", err
	}
	return "id", nil
}

func TestShouldSend(t *testing.T) {
	cases := []struct {
		name         string
		autoResponse bool
		email        string
		want         bool
	}{
		{"enabled with address", true, "a@b.com", true},
		{"enabled without address", true, "", false},
		{"disabled with address", false, "a@b.com", false},
		{"disabled without address", false, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &model.Submission{Email: tc.email}
			form := &model.FormConfig{Email: model.EmailSettings{AutoResponse: tc.autoResponse}}
			assert.Equal(t, tc.want, ShouldSend(sub, form))
		})
	}
}
