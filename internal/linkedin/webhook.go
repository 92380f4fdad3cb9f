package linkedin

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"ghostwriter/internal/models"

	"github.com/tidwall/gjson"
)

// SignatureHeader carries the webhook body signature.
const SignatureHeader = "X-LI-Signature"

// Notification is a parsed engagement webhook.
type Notification struct {
	// ID is notificationId, or the sha256 of the body when absent.
	ID        string
	EventType string
	PostURN   string
	Metrics   models.EngagementCounts
}

// VerifySignature checks header against the hex HMAC-SHA256 of body.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return ErrInvalidSignature
	}
	got := strings.TrimSpace(header)
	got = strings.TrimPrefix(got, "hmacsha256=")
	sig, err := hex.DecodeString(got)
	if err != nil || len(sig) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// ChallengeResponse answers LinkedIn's endpoint validation challenge.
func ChallengeResponse(secret, challengeCode string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(challengeCode))
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseNotification decodes a webhook body.
func ParseNotification(body []byte) (*Notification, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("webhook body is not valid JSON")
	}
	res := gjson.ParseBytes(body)
	n := &Notification{
		ID:        res.Get("notificationId").String(),
		EventType: res.Get("eventType").String(),
		PostURN:   res.Get("postUrn").String(),
		Metrics: models.EngagementCounts{
			Likes:       int(res.Get("metrics.likes").Int()),
			Comments:    int(res.Get("metrics.comments").Int()),
			Shares:      int(res.Get("metrics.shares").Int()),
			Impressions: int(res.Get("metrics.impressions").Int()),
			Clicks:      int(res.Get("metrics.clicks").Int()),
			Views:       int(res.Get("metrics.views").Int()),
		},
	}
	if n.ID == "" {
		sum := sha256.Sum256(body)
		n.ID = hex.EncodeToString(sum[:])
	}
	if n.EventType == "" {
		n.EventType = "unknown"
	}
	return n, nil
}
