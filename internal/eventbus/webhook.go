package eventbus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/cenkalti/backoff/v4"
)

// WebhookTarget is the endpoint a webhook subscriber posts to: the
// override when set, otherwise the subscription's run value.
func (b *Bus) WebhookTarget(s Subscription) string {
	if b.webhookOverride != "" {
		return b.webhookOverride
	}
	return s.Run
}

func (b *Bus) deliverWebhook(ctx context.Context, s Subscription, ev Event, payload []byte) DeliveryResult {
	endpoint := b.WebhookTarget(s)
	res := DeliveryResult{Event: ev.Name, Subscriber: s.Name, Using: UsingWebhook, Target: endpoint}
	if endpoint == "" {
		res.Status = StatusSkipped
		res.Error = "no webhook endpoint configured"
		return res
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = b.cfg.WebhookTimeout
	}
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}

	attempts := 0
	op := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(actx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "arka-runner")
		req.Header.Set("X-Arka-Event", ev.Name)

		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.retryInterval
	bo.MaxElapsedTime = 0
	retries := b.cfg.WebhookRetries
	if retries < 0 {
		retries = 0
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx))

	switch {
	case err == nil:
		res.Status = StatusSuccess
	case isTimeout(err):
		res.Status = StatusTimeout
		res.Error = fmt.Sprintf("timed out after %s (%d attempts): %v", timeout, attempts, err)
	default:
		res.Status = StatusError
		res.Error = fmt.Sprintf("%v (%d attempts)", err, attempts)
	}
	return res
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
