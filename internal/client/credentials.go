package client

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCredentialUnavailable is returned when the credential source keeps
// failing past the configured attempt budget.
var ErrCredentialUnavailable = errors.New("credential unavailable")

// CredentialSource produces a fresh Mini App credential for each
// connection attempt. Implementations typically bridge to the embedding
// webview, which can be slow to respond right after startup.
type CredentialSource interface {
	InitData(ctx context.Context) (string, error)
}

// StaticCredential is a CredentialSource returning a fixed string,
// useful in tests and scripted clients.
type StaticCredential string

func (s StaticCredential) InitData(context.Context) (string, error) {
	return string(s), nil
}

// acquire asks the source for a credential, retrying up to attempts
// times with a fixed delay between tries. Empty strings count as
// failures.
func acquire(ctx context.Context, src CredentialSource, attempts int, delay time.Duration) (string, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
		initData, err := src.InitData(ctx)
		if err == nil && initData != "" {
			return initData, nil
		}
		if err == nil {
			err = errors.New("empty credential")
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w after %d attempts: %v", ErrCredentialUnavailable, attempts, lastErr)
}
