// Package childserver implements the child worker side of the protocol:
// one process per (package, version), listening on a unix socket, routing
// each connection's single request to the matching action exactly as the
// original SockHandler.dispatch did.
//
// Each accepted connection is handled on its own goroutine; one
// connection carries exactly one request/response exchange, so there is
// no interleaving to coordinate within a connection even though
// connections themselves run concurrently.
package childserver

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/logger"
	"github.com/hiagent/plugin-host/internal/pluginapi"
	"github.com/hiagent/plugin-host/internal/wire"
	"github.com/hiagent/plugin-host/internal/workerpool"
)

// Server listens on a single unix socket and dispatches requests against
// the compiled-in plugin registry.
type Server struct {
	addr string
	pool *workerpool.Pool

	// resolved caches plugin lookups, first-use wins: a plugin name never
	// maps to two different implementations within one process lifetime.
	resolved sync.Map

	listener *net.UnixListener
	wg       sync.WaitGroup
}

// New creates a child server bound to addr, offloading blocking tool
// calls to a pool of the given size.
func New(addr string, poolSize int) *Server {
	return &Server{
		addr: addr,
		pool: workerpool.New(poolSize, poolSize*4),
	}
}

// Run starts listening and serves connections until the context is
// canceled or a SIGINT/SIGTERM arrives, then drains in-flight connections
// and unlinks the socket file before returning.
func (s *Server) Run(ctx context.Context) error {
	if err := os.MkdirAll(dirOf(s.addr), 0o755); err != nil {
		return err
	}
	_ = os.Remove(s.addr)

	laddr, err := net.ResolveUnixAddr("unix", s.addr)
	if err != nil {
		return err
	}
	listener, err := net.ListenUnix("unix", laddr)
	if err != nil {
		return err
	}
	s.listener = listener
	logger.Child().Info().Str("addr", s.addr).Msg("child listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	acceptErrCh := make(chan error, 1)
	go func() {
		acceptErrCh <- s.acceptLoop()
	}()

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		logger.Child().Info().Str("signal", sig.String()).Msg("draining")
	case err := <-acceptErrCh:
		s.shutdown()
		return err
	}

	s.shutdown()
	s.wg.Wait()
	s.pool.Stop()
	return nil
}

func (s *Server) shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	_ = os.Remove(s.addr)
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) lookup(group, name string) (pluginapi.Plugin, error) {
	if cached, ok := s.resolved.Load(name); ok {
		return cached.(pluginapi.Plugin), nil
	}
	p, err := pluginapi.Lookup(group, name)
	if err != nil {
		return nil, err
	}
	actual, _ := s.resolved.LoadOrStore(name, p)
	return actual.(pluginapi.Plugin), nil
}

func (s *Server) handle(conn *net.UnixConn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			err := errors.FromPanic(r)
			logger.Child().Error().Str("code", err.Code).Msg("panic recovered in dispatch")
			_ = wire.WriteResponse(conn, wire.Resp{Error: err})
		}
	}()

	req, err := readRequest(conn)
	if err != nil {
		_ = wire.WriteResponse(conn, wire.Resp{Error: errors.InvalidRequest(err.Error())})
		return
	}

	ctx := context.Background()

	if req.Stream || req.Action == wire.ActionRunToolStream {
		s.dispatchStream(ctx, conn, req)
		return
	}

	data, err := s.dispatchUnary(ctx, req)
	if err != nil {
		_ = wire.WriteResponse(conn, wire.Resp{Error: errors.Wrap(err)})
		return
	}
	_ = wire.WriteResponse(conn, wire.Resp{Data: data})
}

func (s *Server) dispatchUnary(ctx context.Context, req wire.Request) (any, error) {
	switch req.Action {
	case wire.ActionRunTool:
		p, err := s.lookup(pluginapi.EntryGroup, req.Plugin)
		if err != nil {
			return nil, err
		}
		if b, ok := p.(pluginapi.Blocking); ok && b.Blocking() {
			return s.pool.Submit(func() (result any, err error) {
				// The pool goroutine is outside handle's recover.
				defer func() {
					if r := recover(); r != nil {
						err = errors.FromPanic(r)
					}
				}()
				return p.RunTool(ctx, req.Tool, req.Input, req.Config)
			})
		}
		return p.RunTool(ctx, req.Tool, req.Input, req.Config)

	case wire.ActionRunValidate:
		p, err := s.lookup(pluginapi.EntryGroup, req.Plugin)
		if err != nil {
			return nil, err
		}
		return nil, p.RunValidate(ctx, req.Config)

	case wire.ActionRunMetadata:
		p, err := s.lookup(pluginapi.EntryGroup, req.Plugin)
		if err != nil {
			return nil, err
		}
		return p.GetMetadata(), nil

	case wire.ActionRunPkgMeta:
		names := pluginapi.List()
		if len(names) == 0 {
			return nil, errors.PluginNotFound("")
		}
		metas := make([]wire.Metadata, 0, len(names))
		for _, name := range names {
			p, err := s.lookup(pluginapi.EntryGroup, name)
			if err != nil {
				return nil, err
			}
			metas = append(metas, p.GetMetadata())
		}
		return metas, nil

	case wire.ActionRunPing:
		p, err := s.lookup(pluginapi.EntryGroup, req.Plugin)
		if err != nil {
			return nil, err
		}
		return p.Ping(), nil

	case "":
		return nil, errors.InvalidRequest("action is required")

	default:
		return nil, errors.ActionNotFound(req.Action)
	}
}

func (s *Server) dispatchStream(ctx context.Context, conn *net.UnixConn, req wire.Request) {
	fw := wire.NewFrameWriter(conn)
	defer fw.Close()

	if req.Action != wire.ActionRunToolStream {
		_ = fw.WriteFrame(wire.Resp{Error: errors.ActionNotFound(req.Action)})
		return
	}

	p, err := s.lookup(pluginapi.EntryGroup, req.Plugin)
	if err != nil {
		_ = fw.WriteFrame(wire.Resp{Error: errors.Wrap(err)})
		return
	}

	err = p.RunToolStream(ctx, req.Tool, req.Input, req.Config, func(item any) error {
		return fw.WriteFrame(wire.Resp{Data: item})
	})
	if err != nil {
		_ = fw.WriteFrame(wire.Resp{Error: errors.Wrap(err)})
	}
}

func readRequest(conn *net.UnixConn) (wire.Request, error) {
	var req wire.Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		return wire.Request{}, err
	}
	return req, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
