package linkedin

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StateTTL bounds how long an authorization round trip may take.
const StateTTL = 15 * time.Minute

const stateClockSkew = time.Minute

// State is the payload carried through the OAuth redirect.
type State struct {
	UserID   uint   `json:"uid"`
	ClientID uint   `json:"cid"`
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"iat"`
}

// SignState encodes and signs a state value for the user and client.
func SignState(secret string, userID, clientID uint, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("oauth state secret not configured")
	}
	payload, err := json.Marshal(State{
		UserID:   userID,
		ClientID: clientID,
		Nonce:    uuid.NewString(),
		IssuedAt: now.Unix(),
	})
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + signState(secret, encoded), nil
}

// VerifyState checks the signature and age of raw and returns its payload.
func VerifyState(secret, raw string, now time.Time) (*State, error) {
	if secret == "" {
		return nil, ErrInvalidState
	}
	encoded, sig, ok := strings.Cut(raw, ".")
	if !ok || encoded == "" || sig == "" {
		return nil, ErrInvalidState
	}
	if !hmac.Equal([]byte(sig), []byte(signState(secret, encoded))) {
		return nil, ErrInvalidState
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidState
	}
	var st State
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, ErrInvalidState
	}
	if st.UserID == 0 || st.ClientID == 0 || st.Nonce == "" {
		return nil, ErrInvalidState
	}

	issued := time.Unix(st.IssuedAt, 0)
	if now.Sub(issued) > StateTTL || issued.Sub(now) > stateClockSkew {
		return nil, ErrInvalidState
	}
	return &st, nil
}

func signState(secret, encoded string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
