package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/poiesic/docrag/core"
)

// IsThrottled reports whether err signals provider throttling.
func IsThrottled(err error) bool {
	return errors.Is(err, core.ErrProviderThrottled)
}

// IsUnavailable reports whether err signals an unreachable provider.
func IsUnavailable(err error) bool {
	return errors.Is(err, core.ErrProviderUnavailable)
}

// Throttled wraps err as core.ErrProviderThrottled.
func Throttled(err error) error {
	return fmt.Errorf("%w: %w", core.ErrProviderThrottled, err)
}

// Unavailable wraps err as core.ErrProviderUnavailable.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %w", core.ErrProviderUnavailable, err)
}

// ClassifyTransportError maps common HTTP client failures onto the provider
// error taxonomy. Errors it does not recognize are returned unchanged, as are
// context errors.
func ClassifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if IsThrottled(err) || IsUnavailable(err) {
		return err
	}

	var netErr net.Error
	var urlErr *url.Error
	var opErr *net.OpError
	switch {
	case errors.As(err, &opErr), errors.As(err, &urlErr):
		return Unavailable(err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return Unavailable(err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "throttl"):
		return Throttled(err)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "503"):
		return Unavailable(err)
	}
	return err
}
