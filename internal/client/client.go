// Package client dials a child worker's unix socket, sends one request,
// and reads back its response — unary or streamed. Connection setup
// against a newly spawned child races the child's own startup, so callers
// that just spawned a child retry the first call against
// ECONNREFUSED/ENOENT, exactly as the original client's retry decorator
// did.
package client

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	apierrors "github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/logger"
	"github.com/hiagent/plugin-host/internal/wire"
)

// RetryPolicy bounds the bootstrap retry loop used against a freshly
// spawned child.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// isTransient reports whether err is a connection error worth retrying
// against a child that may still be starting up: the socket file doesn't
// exist yet (ENOENT) or nothing is listening on it yet (ECONNREFUSED).
func isTransient(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}

func dial(ctx context.Context, addr string) (*net.UnixConn, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", addr)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UnixConn), nil
}

// Request sends req to the child listening at addr and returns its
// unary response. If isNew is true, the call is retried against transient
// connection errors per policy.
func Request(ctx context.Context, addr string, req wire.Request, isNew bool, policy RetryPolicy) (any, error) {
	var lastErr error
	attempts := 1
	if isNew {
		attempts = policy.MaxRetries
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			logger.Client().Debug().Str("addr", addr).Int("attempt", attempt).Msg("retrying after bootstrap")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(policy.Delay):
			}
		}

		conn, err := dial(ctx, addr)
		if err != nil {
			lastErr = err
			if isNew && isTransient(err) {
				continue
			}
			return nil, err
		}

		resp, err := doUnary(conn, req)
		conn.Close()
		if err != nil {
			lastErr = err
			if isNew && isTransient(err) {
				continue
			}
			return nil, err
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Data, nil
	}
	return nil, wrapTransportError(lastErr)
}

func doUnary(conn *net.UnixConn, req wire.Request) (wire.Resp, error) {
	if err := wire.WriteRequest(conn, req); err != nil {
		return wire.Resp{}, err
	}
	return wire.ReadResponse(conn)
}

// ItemFunc is called once per item a streaming response produces.
type ItemFunc func(item any) error

// RequestStream sends req and streams back its response items via fn. For
// a freshly spawned child, the caller must already have confirmed the
// child bootstrapped (via a prior Ping) before calling this: a failed dial
// here is not retried, to keep the bootstrap retry budget a single pool
// per spec.
func RequestStream(ctx context.Context, addr string, req wire.Request, fn ItemFunc) error {
	conn, err := dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := wire.WriteRequest(conn, req); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	reader := wire.NewFrameReader(conn)
	for {
		resp, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if resp.Error != nil {
			return resp.Error
		}
		if err := fn(resp.Data); err != nil {
			return err
		}
	}
}

// Ping confirms a child has finished bootstrapping by issuing a run_ping
// call, retrying against transient connection errors per policy. A
// successful ping consumes part of the bootstrap retry budget rather than
// a separate one, per this host's resolution of that open question.
func Ping(ctx context.Context, addr, plugin string, policy RetryPolicy) error {
	_, err := Request(ctx, addr, wire.NewRunPingRequest(plugin), true, policy)
	return err
}

// wrapTransportError normalizes a raw dial/read error that escaped
// retries into the wire error shape, so HTTP callers always see
// {code, message, http_code} instead of a bare net.OpError.
func wrapTransportError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*apierrors.Error); ok {
		return err
	}
	return apierrors.Wrap(err)
}
