package server

import (
	"bufio"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/chat_poc/internal/config"
)

// newTestServer starts a server on a loopback port with durations shrunk
// enough to keep the test fast but generous enough to not flake.
func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := &config.Config{
		Addr:            "127.0.0.1:0",
		TokenFile:       filepath.Join(t.TempDir(), "TOKEN"),
		BanLimit:        time.Minute,
		MessageRate:     20 * time.Millisecond,
		SlowlorisLimit:  2 * time.Second,
		StrikeLimit:     10,
		TickInterval:    10 * time.Millisecond,
		MetricsAddr:     "", // no metrics listener in tests
		MetricsInterval: time.Second,
		LogLevel:        "error",
		LogFormat:       "json",
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := srv.Shutdown(); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return srv
}

func dialChat(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn, bufio.NewReader(conn)
}

func authenticate(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, r := dialChat(t, srv)
	if _, err := conn.Write([]byte(srv.Token())); err != nil {
		t.Fatalf("write token: %v", err)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if line != "Welcome to the Club buddy!\n" {
		t.Fatalf("welcome = %q", line)
	}
	return conn, r
}

func TestAuthAndBroadcast(t *testing.T) {
	srv := newTestServer(t, nil)

	a, _ := authenticate(t, srv)
	_, br := authenticate(t, srv)

	// Clear the rate gate set by the token message.
	time.Sleep(50 * time.Millisecond)

	if _, err := a.Write([]byte("hello")); err != nil {
		t.Fatalf("write message: %v", err)
	}
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if line != "hello\n" {
		t.Errorf("broadcast = %q, want %q", line, "hello\n")
	}
}

func TestWrongTokenRejected(t *testing.T) {
	srv := newTestServer(t, nil)

	conn, r := dialChat(t, srv)
	if _, err := conn.Write([]byte("WRONG")); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if line != "Invalid token! Bruh!\n" {
		t.Errorf("reply = %q", line)
	}
	// The socket is shut down after the reply.
	if _, err := r.ReadString('\n'); err == nil {
		t.Error("expected closed connection after rejection")
	}
}

func TestBanNoticeOnReconnect(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.StrikeLimit = 1
	})

	// Two failed authentications: strike, then ban.
	for i := 0; i < 2; i++ {
		conn, r := dialChat(t, srv)
		if _, err := conn.Write([]byte("WRONG")); err != nil {
			t.Fatalf("attempt %d write: %v", i, err)
		}
		if _, err := r.ReadString('\n'); err != nil {
			t.Fatalf("attempt %d read: %v", i, err)
		}
		conn.Close()
	}

	_, r := dialChat(t, srv)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read ban notice: %v", err)
	}
	if !strings.HasPrefix(line, "You are banned MF: ") {
		t.Errorf("expected ban notice, got %q", line)
	}
}

func TestSlowConnectDropped(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.SlowlorisLimit = 100 * time.Millisecond
		c.TickInterval = 10 * time.Millisecond
	})

	conn, r := dialChat(t, srv)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	// Never authenticate; the sweep must close the socket.
	if _, err := r.ReadString('\n'); err == nil {
		t.Error("expected server to drop the silent connection")
	}
}

func TestTokenFileWritten(t *testing.T) {
	srv := newTestServer(t, nil)
	if len(srv.Token()) != 32 {
		t.Errorf("token length = %d, want 32", len(srv.Token()))
	}
}
