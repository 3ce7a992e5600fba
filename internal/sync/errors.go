package sync

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"

	"github.com/todoee/todoee/internal/remote"
)

var (
	// ErrNotConfigured is returned by Dial when no remote URL is set.
	ErrNotConfigured = errors.New("sync is not configured")

	// ErrOffline wraps transport failures. Nothing was lost; the next
	// sync retries.
	ErrOffline = errors.New("offline")
)

// Dial opens the remote named by rawURL.
// An empty URL returns ErrNotConfigured; an unreachable remote ErrOffline.
func Dial(ctx context.Context, rawURL string) (*remote.SQLStore, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, ErrNotConfigured
	}
	store, err := remote.Open(ctx, rawURL)
	if err != nil {
		return nil, classify(err)
	}
	return store, nil
}

// classify wraps transport failures with ErrOffline and passes everything
// else through. A user abort stays context.Canceled.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrOffline) {
		return err
	}
	if isNetworkError(err) {
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}
	return err
}

func isNetworkError(err error) bool {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr):
		return true
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return true
	}

	// libsql reports HTTP transport failures as plain strings.
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "no such host", "i/o timeout", "network is unreachable", "tls handshake"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
