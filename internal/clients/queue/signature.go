package queue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// SignatureHeader carries the delivery signature set by the queue service.
const SignatureHeader = "Upstash-Signature"

// Sign returns the hex HMAC-SHA256 of body under key.
func Sign(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Receiver verifies that a job delivery was signed by the queue service.
// Two keys are accepted so a key rollover does not drop in-flight messages:
// deliveries signed under either the current or the next signing key pass.
type Receiver struct {
	currentKey string
	nextKey    string
}

func NewReceiver(currentKey, nextKey string) (*Receiver, error) {
	if strings.TrimSpace(currentKey) == "" {
		return nil, fmt.Errorf("queue: missing current signing key")
	}
	return &Receiver{currentKey: currentKey, nextKey: nextKey}, nil
}

func NewReceiverFromEnv() (*Receiver, error) {
	return NewReceiver(
		strings.TrimSpace(os.Getenv("QUEUE_CURRENT_SIGNING_KEY")),
		strings.TrimSpace(os.Getenv("QUEUE_NEXT_SIGNING_KEY")),
	)
}

// Verify checks signature against the raw request body. It must run before
// any payload parsing; a failure is terminal for the request.
func (r *Receiver) Verify(body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("queue: missing signature")
	}
	if hmac.Equal([]byte(signature), []byte(Sign(r.currentKey, body))) {
		return nil
	}
	if r.nextKey != "" && hmac.Equal([]byte(signature), []byte(Sign(r.nextKey, body))) {
		return nil
	}
	return fmt.Errorf("queue: invalid signature")
}
