// Package transport delivers payloads to push subscriptions over the Web
// Push protocol and classifies delivery failures.
package transport

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/takutakahashi/notify-relay/pkg/registry"
)

// Sender performs one delivery attempt per call.
type Sender interface {
	Send(ctx context.Context, sub registry.Subscription, payload []byte) error
}

// StatusError reports a push service rejection by HTTP status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push service rejected notification with status %d", e.Code)
}

// Permanent reports whether the failure means the subscription no longer
// exists and should be removed. The push service signals this with 404 or
// 410; everything else is treated as transient.
func (e *StatusError) Permanent() bool {
	return e.Code == http.StatusNotFound || e.Code == http.StatusGone
}

// VAPIDKeys is a signing key pair for authenticated push delivery.
type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
}

// GenerateVAPIDKeys creates a fresh signing key pair.
func GenerateVAPIDKeys() (VAPIDKeys, error) {
	private, public, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return VAPIDKeys{}, fmt.Errorf("failed to generate VAPID keys: %w", err)
	}
	return VAPIDKeys{PublicKey: public, PrivateKey: private}, nil
}

// WebPushSender sends notifications using VAPID-authenticated web push.
type WebPushSender struct {
	keys       VAPIDKeys
	subscriber string
	ttl        int
}

// NewWebPushSender creates a sender. subscriber is the contact address
// (mailto: or https:) reported to the push service.
func NewWebPushSender(keys VAPIDKeys, subscriber string) *WebPushSender {
	return &WebPushSender{
		keys:       keys,
		subscriber: subscriber,
		ttl:        60,
	}
}

// Send performs one delivery attempt. A 4xx/5xx response from the push
// service is returned as a *StatusError so callers can check Permanent().
func (s *WebPushSender) Send(ctx context.Context, sub registry.Subscription, payload []byte) error {
	webpushSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}

	options := &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.keys.PublicKey,
		VAPIDPrivateKey: s.keys.PrivateKey,
		TTL:             s.ttl,
		Urgency:         webpush.UrgencyNormal,
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, webpushSub, options)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer func() {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			log.Printf("Failed to drain push response body: %v", err)
		}
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close push response body: %v", err)
		}
	}()

	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode}
	}

	return nil
}
