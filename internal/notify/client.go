package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"notary-signing-router/internal/domain"
)

const twilioDefaultHost = "api.twilio.com"

// ErrUndeliverable marks a send that Twilio rejected outright. Retrying it cannot succeed.
var ErrUndeliverable = errors.New("message undeliverable")

type Message struct {
	To      string
	Channel domain.Channel
	Body    string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// TwilioClient sends SMS and WhatsApp messages through the Twilio Messages API.
type TwilioClient struct {
	accountSID string
	authToken  string
	from       string
	maxRetry   int
	rest       *twilio.RestClient
}

// NewTwilioClient builds a client for accountSID. A baseURL other than the public API host
// redirects every request there, which is how local stacks point at a Twilio mock.
func NewTwilioClient(accountSID, authToken, from, baseURL string) *TwilioClient {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	if target, err := url.Parse(strings.TrimRight(baseURL, "/")); err == nil && target.Host != "" && target.Host != twilioDefaultHost {
		httpClient.Transport = hostRewriter{target: target, next: http.DefaultTransport}
	}

	base := &twclient.Client{
		Credentials: twclient.NewCredentials(accountSID, authToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(accountSID)

	return &TwilioClient{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		maxRetry:   3,
		rest:       twilio.NewRestClientWithParams(twilio.ClientParams{Client: base}),
	}
}

func (c *TwilioClient) Send(ctx context.Context, msg Message) error {
	if c.accountSID == "" || c.authToken == "" {
		return fmt.Errorf("twilio credentials are required")
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("notification recipient is required: %w", ErrUndeliverable)
	}

	params := &openapi.CreateMessageParams{}
	params.SetPathAccountSid(c.accountSID)
	params.SetTo(address(msg.Channel, msg.To))
	params.SetFrom(address(msg.Channel, c.from))
	params.SetBody(msg.Body)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := c.rest.Api.CreateMessage(params)
		if err == nil {
			return nil
		}
		lastErr = classify(err)
		if errors.Is(lastErr, ErrUndeliverable) || attempt == c.maxRetry {
			break
		}
		delay := time.Duration(200*(1<<(attempt-1))) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("twilio send failed: %w", lastErr)
}

// classify wraps 4xx rejections other than throttling in ErrUndeliverable. Transport failures
// and undecodable error bodies stay retryable.
func classify(err error) error {
	var restErr *twclient.TwilioRestError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Status >= 400 && restErr.Status < 500 && restErr.Status != http.StatusTooManyRequests {
		return fmt.Errorf("%w: twilio rejected message (%d): %s", ErrUndeliverable, restErr.Code, restErr.Message)
	}
	return fmt.Errorf("twilio request failed (%d): %s", restErr.Code, restErr.Message)
}

type hostRewriter struct {
	target *url.URL
	next   http.RoundTripper
}

func (h hostRewriter) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = h.target.Scheme
	out.URL.Host = h.target.Host
	out.Host = h.target.Host
	return h.next.RoundTrip(out)
}

func address(channel domain.Channel, number string) string {
	if channel == domain.ChannelWhatsApp && !strings.HasPrefix(number, "whatsapp:") {
		return "whatsapp:" + number
	}
	return number
}

// LogNotifier records messages instead of sending them.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Send(_ context.Context, msg Message) error {
	n.Log.Info("notification suppressed (no provider configured)",
		zap.String("to", msg.To),
		zap.String("channel", string(msg.Channel)),
		zap.Int("body_len", len(msg.Body)))
	return nil
}
