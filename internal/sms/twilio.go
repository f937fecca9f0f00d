package sms

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"github.com/hpungsan/nudge/internal/errors"
)

// TwilioOptions configures a Twilio gateway.
type TwilioOptions struct {
	AccountSID string
	AuthToken  string

	// From is the sending phone number in E.164 form
	From string

	// RatePerSecond throttles outbound messages; 0 disables throttling
	RatePerSecond float64

	// HTTPClient defaults to one with a 15s timeout
	HTTPClient *http.Client
}

// Twilio sends SMS through the Twilio Messages API.
type Twilio struct {
	opts    TwilioOptions
	rest    *twilio.RestClient
	limiter *rate.Limiter
}

// NewTwilio creates a Twilio gateway.
func NewTwilio(opts TwilioOptions) *Twilio {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	c := &client.Client{
		Credentials: client.NewCredentials(opts.AccountSID, opts.AuthToken),
		HTTPClient:  httpClient,
	}
	c.SetAccountSid(opts.AccountSID)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &Twilio{
		opts:    opts,
		rest:    twilio.NewRestClientWithParams(twilio.ClientParams{Client: c}),
		limiter: limiter,
	}
}

// Send posts one message. It waits for the rate limiter first.
func (t *Twilio) Send(ctx context.Context, to, body string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", errors.NewDeliveryFailed(to, err)
	}
	if err := ctx.Err(); err != nil {
		return "", errors.NewDeliveryFailed(to, err)
	}

	params := &api.CreateMessageParams{}
	params.SetPathAccountSid(t.opts.AccountSID)
	params.SetTo(to)
	params.SetFrom(t.opts.From)
	params.SetBody(body)

	msg, err := t.rest.Api.CreateMessage(params)
	if err != nil {
		var restErr *client.TwilioRestError
		if stderrors.As(err, &restErr) {
			return "", errors.NewDeliveryFailed(to,
				fmt.Errorf("twilio %d (code %d): %s", restErr.Status, restErr.Code, restErr.Message))
		}
		return "", errors.NewDeliveryFailed(to, err)
	}
	if msg.ErrorCode != nil {
		text := ""
		if msg.ErrorMessage != nil {
			text = *msg.ErrorMessage
		}
		return "", errors.NewDeliveryFailed(to, fmt.Errorf("twilio error %d: %s", *msg.ErrorCode, text))
	}
	if msg.Sid == nil {
		return "", errors.NewDeliveryFailed(to, fmt.Errorf("twilio response has no sid"))
	}
	return *msg.Sid, nil
}
