// Package notify delivers the pipeline run summary by email.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"delivery-sla-lab/internal/domain"
)

// Default configuration values.
const (
	DefaultEndpoint    = "https://api.sendgrid.com/v3/mail/send"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrNotConfigured is returned when the API key, sender or recipients are missing.
var ErrNotConfigured = errors.New("notifier not configured")

// Notifier sends an HTML message.
type Notifier interface {
	Send(ctx context.Context, subject, htmlBody string) error
}

// Subject formats the run summary subject line.
func Subject(status domain.RunStatus, at time.Time) string {
	return fmt.Sprintf("[Pipeline] %s - %s", status, at.UTC().Format("2006-01-02"))
}

// SendGridClient implements Notifier with the SendGrid v3 mail API.
type SendGridClient struct {
	endpoint    string
	apiKey      string
	sender      string
	recipients  []string
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures SendGridClient.
type ClientOption func(*SendGridClient)

// WithEndpoint overrides the mail send URL.
func WithEndpoint(url string) ClientOption {
	return func(c *SendGridClient) {
		if url != "" {
			c.endpoint = url
		}
	}
}

// WithTimeout bounds each send attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *SendGridClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *SendGridClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *SendGridClient) {
		c.retryDelay = d
	}
}

// NewSendGridClient creates a client for one sender and recipient list.
func NewSendGridClient(apiKey, sender string, recipients []string, opts ...ClientOption) *SendGridClient {
	c := &SendGridClient{
		endpoint:    DefaultEndpoint,
		apiKey:      apiKey,
		sender:      sender,
		recipients:  recipients,
		timeout:     DefaultTimeout,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SendGridClient) buildMessage(subject, htmlBody string) *mail.SGMailV3 {
	p := mail.NewPersonalization()
	for _, r := range c.recipients {
		p.AddTos(mail.NewEmail("", r))
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail("", c.sender))
	m.Subject = subject
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/html", htmlBody))
	return m
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// Send posts the message, retrying on 429 and 5xx with exponential backoff.
// Other 4xx responses fail immediately.
func (c *SendGridClient) Send(ctx context.Context, subject, htmlBody string) error {
	if c.apiKey == "" || c.sender == "" || len(c.recipients) == 0 {
		return ErrNotConfigured
	}

	msg := c.buildMessage(subject, htmlBody)
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		resp, err := c.sendOnce(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, resp.Body)
			continue
		default:
			return fmt.Errorf("sendgrid rejected message (%d): %s", resp.StatusCode, describeErrors(resp.Body))
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// sendOnce makes one attempt. The SDK client carries the request body, so a
// fresh one is built per attempt.
func (c *SendGridClient) sendOnce(ctx context.Context, msg *mail.SGMailV3) (*rest.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	client := sendgrid.NewSendClient(c.apiKey)
	client.BaseURL = c.endpoint
	return client.SendWithContext(ctx, msg)
}

func describeErrors(body string) string {
	var er errorResponse
	if err := json.Unmarshal([]byte(body), &er); err != nil || len(er.Errors) == 0 {
		return body
	}
	msg := er.Errors[0].Message
	if er.Errors[0].Field != "" {
		msg = er.Errors[0].Field + ": " + msg
	}
	return msg
}

// LogNotifier logs messages instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the subject and body size.
func (n *LogNotifier) Send(_ context.Context, subject, htmlBody string) error {
	n.logger.Info("notification not configured, logging summary",
		zap.String("subject", subject),
		zap.Int("body_bytes", len(htmlBody)))
	return nil
}

var (
	_ Notifier = (*SendGridClient)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
