package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-apiversions/core"
)

const (
	HeaderSignature  = "X-Webhook-Signature"
	HeaderDeliveryID = "X-Webhook-Delivery-Id"
	HeaderEventType  = "X-Webhook-Event"
	HeaderAPIVersion = core.DefaultVersionHeader

	SignaturePrefix = "sha256="
)

// Envelope is the JSON body posted to subscribers.
type Envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	APIVersion string      `json:"apiVersion"`
	Data       core.Params `json:"data"`
}

// HMACSigner signs request bodies with a shared subscription secret.
type HMACSigner struct {
	Prefix   string
	Encoding string // hex | base64
}

func (s HMACSigner) Sign(secret string, body []byte) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("webhooks: signature secret is required")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	sum := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(s.Encoding)) {
	case "base64":
		return s.Prefix + base64.StdEncoding.EncodeToString(sum), nil
	default:
		return s.Prefix + hex.EncodeToString(sum), nil
	}
}

// Verify checks a signature produced by Sign in constant time.
func (s HMACSigner) Verify(secret string, body []byte, signature string) error {
	expected, err := s.Sign(secret, body)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(strings.TrimSpace(signature)), []byte(expected)) {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

type HTTPSender struct {
	client *http.Client
	signer HMACSigner
}

type HTTPSenderOption func(*HTTPSender)

func WithHTTPClient(client *http.Client) HTTPSenderOption {
	return func(s *HTTPSender) {
		if client != nil {
			s.client = client
		}
	}
}

func WithSigner(signer HMACSigner) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.signer = signer
	}
}

func NewHTTPSender(opts ...HTTPSenderOption) *HTTPSender {
	sender := &HTTPSender{
		client: &http.Client{Timeout: 10 * time.Second},
		signer: HMACSigner{Prefix: SignaturePrefix},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sender)
		}
	}
	return sender
}

// Send posts the envelope to the subscription URL. Any response counts as
// sent; the caller classifies the status code.
func (s *HTTPSender) Send(ctx context.Context, delivery ShapedDelivery) (SendResult, error) {
	if s == nil || s.client == nil {
		return SendResult{}, fmt.Errorf("webhooks: http sender is not configured")
	}
	body, err := json.Marshal(Envelope{
		ID:         delivery.EventID,
		Type:       delivery.EventType,
		APIVersion: delivery.APIVersion,
		Data:       delivery.Payload,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("webhooks: encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("webhooks: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderDeliveryID, delivery.DeliveryID)
	req.Header.Set(HeaderEventType, delivery.EventType)
	req.Header.Set(HeaderAPIVersion, delivery.APIVersion)
	if strings.TrimSpace(delivery.Secret) != "" {
		signature, signErr := s.signer.Sign(delivery.Secret, body)
		if signErr != nil {
			return SendResult{}, signErr
		}
		req.Header.Set(HeaderSignature, signature)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("webhooks: post %s: %w", delivery.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return SendResult{
		StatusCode: resp.StatusCode,
		Metadata: map[string]any{
			"url": delivery.URL,
		},
	}, nil
}

var _ Sender = (*HTTPSender)(nil)
