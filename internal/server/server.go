// Package server wires the I/O-facing adapters around the broker: the
// TCP acceptor, one reader goroutine per connection, the slow-connect
// ticker, and the metrics listener. All adapters translate socket
// activity into broker events; none of them touch broker state directly.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/chat_poc/internal/broker"
	"github.com/adred-codev/chat_poc/internal/config"
	"github.com/adred-codev/chat_poc/internal/monitoring"
	"github.com/adred-codev/chat_poc/internal/token"
)

// readChunkSize is the per-read buffer size. The chunk size has no
// protocol meaning; each chunk is simply one candidate message.
const readChunkSize = 64

type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	listener net.Listener
	broker   *broker.Broker
	events   chan broker.Event
	nextID   atomic.Uint64
	tok      string

	metricsSrv *http.Server
	sysmon     *monitoring.SystemMonitor

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New generates the access token, writes the token file, and builds the
// broker. Token generation or file-write failure is startup-fatal and is
// returned to the caller.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	tok, err := token.Generate()
	if err != nil {
		return nil, err
	}
	if err := token.WriteFile(cfg.TokenFile, tok); err != nil {
		return nil, err
	}
	logger.Info().Str("token_file", cfg.TokenFile).Msg("Check the token file for the access token")

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:    cfg,
		logger: logger,
		tok:    tok,
		broker: broker.New(broker.Config{
			BanLimit:       cfg.BanLimit,
			MessageRate:    cfg.MessageRate,
			SlowlorisLimit: cfg.SlowlorisLimit,
			StrikeLimit:    cfg.StrikeLimit,
		}, tok, logger),
		events: make(chan broker.Event, 256),
		ctx:    ctx,
		cancel: cancel,
	}
	return s, nil
}

// Token returns the generated access token.
func (s *Server) Token() string { return s.tok }

// Addr returns the bound listener address. Valid after Start.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener

	s.logger.Info().
		Str("addr", monitoring.Sensitive(listener.Addr().String())).
		Msg("Server listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.broker.Run(s.ctx, s.events)
	}()

	s.wg.Add(1)
	go s.tickLoop()

	s.wg.Add(1)
	go s.acceptLoop()

	if s.cfg.MetricsAddr != "" {
		s.startMetrics()
	}

	return nil
}

// Shutdown stops accepting, cancels all goroutines, and waits for them.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Shutting down")

	if s.listener != nil {
		s.listener.Close()
	}
	s.cancel()
	s.wg.Wait()

	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.metricsSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
	}

	s.logger.Info().Msg("Shutdown complete")
	return nil
}

// acceptLoop assigns each accepted connection a fresh ID and hands it to
// the broker plus a dedicated reader. Accept errors other than listener
// closure are logged and do not stop the loop.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error().
				Str("error", monitoring.SensitiveErr(err)).
				Msg("Could not accept connection")
			continue
		}

		addr, ok := conn.RemoteAddr().(*net.TCPAddr)
		if !ok {
			conn.Close()
			continue
		}

		id := broker.ConnID(s.nextID.Add(1))
		if !s.post(broker.Event{Kind: broker.EventConnected, ID: id, Conn: conn, Addr: addr}) {
			conn.Close()
			return
		}

		s.wg.Add(1)
		go s.readLoop(id, conn)
	}
}

// readLoop forwards socket bytes verbatim; sanitization belongs to the
// broker. EOF becomes Disconnected, anything else a ReadError, and
// either one is the last event the broker sees for this connection.
func (s *Server) readLoop(id broker.ConnID, conn net.Conn) {
	defer s.wg.Done()
	buf := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !s.post(broker.Event{Kind: broker.EventRead, ID: id, Data: data}) {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.post(broker.Event{Kind: broker.EventDisconnected, ID: id})
			} else {
				s.post(broker.Event{Kind: broker.EventReadError, ID: id, Err: err})
			}
			return
		}
	}
}

func (s *Server) tickLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.post(broker.Event{Kind: broker.EventTick}) {
				return
			}
		}
	}
}

// post delivers an event to the broker, giving up when the server is
// shutting down so producer goroutines never leak on a dead consumer.
func (s *Server) post(ev broker.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Server) startMetrics() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", monitoring.HandleMetrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	s.metricsSrv = &http.Server{
		Addr:         s.cfg.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().
				Str("error", monitoring.SensitiveErr(err)).
				Msg("Metrics server error")
		}
	}()

	sysmon, err := monitoring.NewSystemMonitor(s.logger, s.cfg.MetricsInterval)
	if err != nil {
		s.logger.Warn().
			Str("error", monitoring.SensitiveErr(err)).
			Msg("System monitor unavailable")
		return
	}
	s.sysmon = sysmon
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sysmon.Run(s.ctx)
	}()
}
