package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/util"
)

// Verification failure kinds. All are terminal: the gateway never
// retries a failed credential.
var (
	ErrMalformedCredential = errors.New("malformed credential")
	ErrSignatureMismatch   = errors.New("signature mismatch")
	ErrExpired             = errors.New("credential expired")
)

// secretSalt is fixed by the issuing platform's signing scheme.
const secretSalt = "WebAppData"

// DefaultMaxAge is the credential freshness window.
const DefaultMaxAge = 24 * time.Hour

// Verify validates signed Telegram Mini App initData against the bot
// token and returns the verified identity. The scheme must match the
// platform byte-for-byte: pop "hash", join the remaining fields sorted
// by key as "k=v" lines with "\n", key the HMAC-SHA256 of the check
// string with HMAC-SHA256("WebAppData", botToken), compare in constant
// time, then enforce auth_date freshness.
//
// Verify is pure and safe for concurrent use.
func Verify(initData, botToken string, maxAge time.Duration) (models.Identity, error) {
	if initData == "" {
		return models.Identity{}, fmt.Errorf("%w: empty initData", ErrMalformedCredential)
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return models.Identity{}, fmt.Errorf("%w: missing hash", ErrMalformedCredential)
	}
	values.Del("hash")

	if !hmac.Equal([]byte(computeHash(values, botToken)), []byte(receivedHash)) {
		return models.Identity{}, ErrSignatureMismatch
	}

	authDate, ok := util.ParseTime(values.Get("auth_date"))
	if !ok {
		return models.Identity{}, fmt.Errorf("%w: missing or invalid auth_date", ErrMalformedCredential)
	}
	if age := time.Since(authDate); age > maxAge {
		return models.Identity{}, fmt.Errorf("%w: %.0fs old, max %.0fs", ErrExpired, age.Seconds(), maxAge.Seconds())
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return models.Identity{}, fmt.Errorf("%w: missing user", ErrMalformedCredential)
	}
	var user models.TelegramUser
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return models.Identity{}, fmt.Errorf("%w: invalid user JSON: %v", ErrMalformedCredential, err)
	}
	if user.ID == 0 {
		return models.Identity{}, fmt.Errorf("%w: user id missing", ErrMalformedCredential)
	}

	return models.Identity{User: user, AuthDate: authDate.UTC()}, nil
}

// Kind returns a short stable name for a verification error, used in
// close reasons and audit logs.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrSignatureMismatch):
		return "signature_mismatch"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMalformedCredential):
		return "malformed_credential"
	default:
		return "verification_failed"
	}
}

func computeHash(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	checkString := strings.Join(lines, "\n")

	secret := hmac.New(sha256.New, []byte(secretSalt))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))
	return hex.EncodeToString(mac.Sum(nil))
}
