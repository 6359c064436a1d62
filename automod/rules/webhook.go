package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/castmod/castmod/automod/engine"
	"github.com/castmod/castmod/automod/helpers"
	"github.com/castmod/castmod/automod/registry"
)

var DefaultWebhookTimeout = 5 * time.Second

// largest webhook response body read
const maxWebhookBody = 64 * 1024

type webhookPayload struct {
	User    engine.Profile `json:"user"`
	Channel engine.Channel `json:"channel"`
	Cast    *engine.Cast   `json:"cast,omitempty"`
}

type webhookResponse struct {
	Message string `json:"message"`
}

func webhookRule(d *Deps) engine.Rule {
	return engine.Rule{
		Definition: registry.Definition{
			Name:          "webhook",
			FriendlyName:  "Webhook",
			Description:   "Ask an external service. A 200 response passes, a 400 response does not.",
			Category:      registry.ScopeAll,
			CheckType:     registry.ScopeAll,
			Invertable:    true,
			AllowMultiple: true,
			// the webhook's own timeout is enforced inside the check
			Timeout: d.webhookTimeout() + time.Second,
			Args: []registry.ArgSchema{
				{Name: "url", Type: registry.ArgString, FriendlyName: "URL", Required: true, Pattern: `^https?://\S+$`},
				failureModeArg(),
			},
		},
		Check: WebhookCheck(d),
	}
}

// Posts the user, channel (and cast, if any) to the configured URL. Never returns an error: failures of the endpoint are resolved here with the rule's failure mode.
func WebhookCheck(d *Deps) engine.CheckFunc {
	client := d.webhookClient()
	timeout := d.webhookTimeout()
	return func(c *engine.CheckContext) (engine.CheckResult, error) {
		url := c.StringArg("url")
		mode := registry.FailureMode(c.StringArg(registry.FailureModeArg))
		logger := c.Logger.With("url", url)

		ctx, cancel := context.WithTimeout(c.Ctx, timeout)
		defer cancel()

		body, err := json.Marshal(webhookPayload{User: c.User, Channel: c.Channel, Cast: c.Cast})
		if err != nil {
			return engine.CheckResult{}, err
		}
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			logger.Warn("invalid webhook request", "err", err)
			return engine.FailureResult("Webhook", mode, false), nil
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-webhook-secret", d.WebhookSecret)

		resp, err := client.Do(req)
		if err != nil {
			timedOut := isTimeout(ctx, err)
			logger.Warn("webhook request failed", "err", err, "timeout", timedOut)
			return engine.FailureResult("Webhook", mode, timedOut), nil
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookBody))
		if err != nil {
			timedOut := isTimeout(ctx, err)
			logger.Warn("reading webhook response", "err", err, "status", resp.StatusCode, "timeout", timedOut)
			return engine.FailureResult("Webhook", mode, timedOut), nil
		}

		var parsed webhookResponse
		// body is optional, and may not be JSON at all
		_ = json.Unmarshal(raw, &parsed)

		switch resp.StatusCode {
		case http.StatusOK:
			msg := "Webhook rule triggered"
			if parsed.Message != "" {
				msg = helpers.TruncateRunes(parsed.Message, engine.MaxMessageLength)
			}
			return engine.CheckResult{Result: true, Message: msg}, nil
		case http.StatusBadRequest:
			msg := "Webhook rule did not trigger"
			if parsed.Message != "" {
				msg = helpers.TruncateRunes(parsed.Message, engine.MaxMessageLength)
			}
			return engine.CheckResult{Result: false, Message: msg}, nil
		default:
			logger.Warn("unexpected webhook response", "status", resp.StatusCode, "body", helpers.TruncateRunes(string(raw), 500))
			return engine.FailureResult("Webhook", mode, false), nil
		}
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
