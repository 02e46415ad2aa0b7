// ABOUTME: Verifies and decodes signed Wealthbox webhook deliveries
// ABOUTME: HMAC-SHA256 over the raw body, compared in constant time
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/crmsync/models"
)

// SignatureHeader carries the hex HMAC of the request body.
const SignatureHeader = "X-Wealthbox-Signature"

const signaturePrefix = "sha256="

var (
	ErrConfig           = errors.New("webhook: secret is required")
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrInvalidPayload   = errors.New("webhook: invalid payload")
)

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrConfig
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Sign returns the hex signature for payload.
func (v *Verifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches payload. An optional "sha256="
// prefix is accepted. An empty signature never verifies.
func (v *Verifier) Verify(payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, signaturePrefix)
	if signature == "" {
		return false
	}

	given, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hmac.Equal(given, mac.Sum(nil))
}

// DecodeEvent parses a verified webhook body.
func DecodeEvent(payload []byte) (models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return models.WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event.Type == "" {
		return models.WebhookEvent{}, fmt.Errorf("%w: missing event type", ErrInvalidPayload)
	}
	return event, nil
}
