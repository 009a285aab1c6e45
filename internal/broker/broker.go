// Package broker owns all chat state: the client map, the per-IP sinner
// map, and the access token. It is driven by a single event stream and
// never blocks on a socket read; socket writes are best-effort.
package broker

import (
	"context"
	"fmt"
	"net"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/adred-codev/chat_poc/internal/monitoring"
)

// Config is the policy slice of the server configuration.
type Config struct {
	BanLimit       time.Duration
	MessageRate    time.Duration
	SlowlorisLimit time.Duration
	StrikeLimit    int
}

// client is one authenticated-or-pending connection. Exactly one exists
// per active socket.
type client struct {
	conn        Conn
	addr        *net.TCPAddr
	connectedAt time.Time
	lastMessage time.Time
	authed      bool
}

// Broker multiplexes all connections. Its methods are not reentrant:
// only the Run goroutine (or a single test goroutine) may call them.
type Broker struct {
	cfg     Config
	token   string
	logger  zerolog.Logger
	clients map[ConnID]*client
	sinners map[string]*sinner

	// now is the clock source; swapped out in tests.
	now func() time.Time
}

func New(cfg Config, token string, logger zerolog.Logger) *Broker {
	return &Broker{
		cfg:     cfg,
		token:   token,
		logger:  logger.With().Str("component", "broker").Logger(),
		clients: make(map[ConnID]*client),
		sinners: make(map[string]*sinner),
		now:     time.Now,
	}
}

// Run drains the event stream until the context is cancelled or the
// stream is closed, then closes every remaining client socket.
func (b *Broker) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case ev, ok := <-events:
			if !ok {
				b.closeAll()
				return
			}
			b.handle(ev)
		}
	}
}

func (b *Broker) handle(ev Event) {
	switch ev.Kind {
	case EventConnected:
		b.clientConnected(ev.Conn, ev.Addr, ev.ID)
	case EventRead:
		b.clientRead(ev.ID, ev.Data)
	case EventDisconnected:
		b.clientDisconnected(ev.ID)
	case EventReadError:
		b.clientReadError(ev.ID, ev.Err)
	case EventTick:
		b.sweepSlowConnects()
	}
}

// clientConnected registers a new pending client, unless its IP is
// serving an unexpired ban, in which case the socket gets the ban notice
// and is shut down without registration. An expired ban is forgiven
// lazily here; there is no background sweep.
func (b *Broker) clientConnected(conn Conn, addr *net.TCPAddr, id ConnID) {
	now := b.now()
	ip := addr.IP.String()

	if s, ok := b.sinners[ip]; ok && s.state == sinnerBanned {
		diff := b.sinceOrZero(now, s.bannedAt, "ban time check on client connection")
		if diff < b.cfg.BanLimit {
			secs := (b.cfg.BanLimit - diff).Seconds()
			// Debug level: banned peers tend to hammer reconnects and
			// would flood the log at info.
			b.logger.Debug().
				Str("addr", monitoring.Sensitive(addr.String())).
				Float64("secs_left", secs).
				Msg("Banned client tried to connect")
			if _, err := fmt.Fprintf(conn, "You are banned MF: %.1f secs left\n", secs); err != nil {
				b.logger.Error().
					Str("addr", monitoring.Sensitive(addr.String())).
					Str("error", monitoring.SensitiveErr(err)).
					Msg("Could not send ban notice")
			}
			b.shutdown(conn, addr)
			monitoring.IncrementBannedRejects()
			return
		}
		s.forgive()
	}

	b.clients[id] = &client{
		conn:        conn,
		addr:        addr,
		connectedAt: now,
		// Far enough in the past that the first message always clears
		// the rate check.
		lastMessage: now.Add(-2 * b.cfg.MessageRate),
	}
	b.logger.Info().
		Str("addr", monitoring.Sensitive(addr.String())).
		Uint64("id", uint64(id)).
		Msg("Client connected")
	monitoring.IncrementConnections()
	monitoring.SetActiveClients(len(b.clients))
}

// clientRead applies the full message policy to one chunk of bytes:
// sanitize, rate-check, validate, forgive, then authenticate or
// broadcast.
func (b *Broker) clientRead(id ConnID, data []byte) {
	c, ok := b.clients[id]
	if !ok {
		// Late event from an already-removed connection.
		return
	}
	monitoring.AddBytesReceived(len(data))

	// Strip every byte below ASCII space: CR, LF, and all other control
	// characters. The sanitized buffer is the message payload.
	payload := data[:0]
	for _, x := range data {
		if x >= 0x20 {
			payload = append(payload, x)
		}
	}

	now := b.now()
	diff := b.sinceOrZero(now, c.lastMessage, "message rate check on new message")
	if diff < b.cfg.MessageRate {
		// Flooding. The client's last_message is deliberately left
		// untouched so a sustained flood keeps striking.
		b.strikeIP(c.addr.IP, monitoring.StrikeReasonRate)
		return
	}

	if !utf8.Valid(payload) {
		// Sanitization leaves only printable byte values, but a split
		// multibyte sequence can still arrive here. Drop it quietly.
		return
	}
	text := string(payload)

	c.lastMessage = now

	// Forgiveness applies only to accepted messages. A failed
	// authentication keeps its strikes, so wrong tokens accumulate across
	// connections.
	if !c.authed {
		if text != b.token {
			b.logger.Info().
				Str("addr", monitoring.Sensitive(c.addr.String())).
				Msg("Client failed authorization")
			if _, err := fmt.Fprintf(c.conn, "Invalid token! Bruh!\n"); err != nil {
				b.logger.Error().
					Str("addr", monitoring.Sensitive(c.addr.String())).
					Str("error", monitoring.SensitiveErr(err)).
					Msg("Could not notify client about invalid token")
			}
			b.shutdown(c.conn, c.addr)
			delete(b.clients, id)
			monitoring.IncrementAuthFailures()
			monitoring.IncrementDisconnects(monitoring.DisconnectReasonAuthFailure)
			monitoring.SetActiveClients(len(b.clients))
			b.strikeIP(c.addr.IP, monitoring.StrikeReasonAuth)
			return
		}

		c.authed = true
		b.sinnerFor(c.addr.IP).forgive()
		b.logger.Info().
			Str("addr", monitoring.Sensitive(c.addr.String())).
			Msg("Client authorized")
		if _, err := fmt.Fprintf(c.conn, "Welcome to the Club buddy!\n"); err != nil {
			b.logger.Error().
				Str("addr", monitoring.Sensitive(c.addr.String())).
				Str("error", monitoring.SensitiveErr(err)).
				Msg("Could not send welcome message")
		}
		return
	}

	b.sinnerFor(c.addr.IP).forgive()
	b.logger.Info().
		Str("addr", monitoring.Sensitive(c.addr.String())).
		Int("len", len(text)).
		Msg("Client sent message")
	b.broadcast(id, text)
}

// broadcast fans text out to every other authenticated client. A
// per-recipient write failure is logged but neither removes the
// recipient nor aborts the fan-out; iteration order across recipients is
// not promised.
func (b *Broker) broadcast(from ConnID, text string) {
	monitoring.IncrementBroadcasts()
	delivered := 0
	line := text + "\n"
	for id, peer := range b.clients {
		if id == from || !peer.authed {
			continue
		}
		if n, err := peer.conn.Write([]byte(line)); err != nil {
			b.logger.Error().
				Str("addr", monitoring.Sensitive(peer.addr.String())).
				Str("error", monitoring.SensitiveErr(err)).
				Msg("Could not broadcast message to client")
			monitoring.IncrementBroadcastWriteErrors()
		} else {
			delivered++
			monitoring.AddBytesSent(n)
		}
	}
	monitoring.AddBroadcastRecipients(delivered)
}

func (b *Broker) clientDisconnected(id ConnID) {
	c, ok := b.clients[id]
	if !ok {
		return
	}
	b.logger.Info().
		Str("addr", monitoring.Sensitive(c.addr.String())).
		Msg("Client disconnected")
	delete(b.clients, id)
	monitoring.IncrementDisconnects(monitoring.DisconnectReasonClientClosed)
	monitoring.SetActiveClients(len(b.clients))
}

func (b *Broker) clientReadError(id ConnID, err error) {
	c, ok := b.clients[id]
	if !ok {
		return
	}
	b.logger.Error().
		Str("addr", monitoring.Sensitive(c.addr.String())).
		Str("error", monitoring.SensitiveErr(err)).
		Msg("Could not read from client")
	delete(b.clients, id)
	monitoring.IncrementDisconnects(monitoring.DisconnectReasonReadError)
	monitoring.SetActiveClients(len(b.clients))
}

// sweepSlowConnects drops every client that has sat unauthenticated past
// the slow-connect limit, striking its IP once.
func (b *Broker) sweepSlowConnects() {
	now := b.now()
	for id, c := range b.clients {
		if c.authed {
			continue
		}
		diff := b.sinceOrZero(now, c.connectedAt, "slow-connect limit check")
		if diff < b.cfg.SlowlorisLimit {
			continue
		}
		b.logger.Info().
			Str("addr", monitoring.Sensitive(c.addr.String())).
			Msg("Client refused to authenticate in time")
		b.strikeIP(c.addr.IP, monitoring.StrikeReasonSlowloris)
		// The strike may have banned the IP and already removed this
		// client; only shut down what is still registered.
		if _, still := b.clients[id]; still {
			b.shutdown(c.conn, c.addr)
			delete(b.clients, id)
			monitoring.IncrementDisconnects(monitoring.DisconnectReasonSlowloris)
		}
	}
	monitoring.SetActiveClients(len(b.clients))
}

// strikeIP records an infraction and, on the transition to banned,
// notifies and drops every connected client from that IP.
func (b *Broker) strikeIP(ip net.IP, reason string) {
	monitoring.IncrementStrikes(reason)
	key := ip.String()
	s := b.sinnerFor(ip)
	wasBanned := s.state == sinnerBanned
	if !s.strike(b.cfg.StrikeLimit, b.now()) {
		return
	}
	if !wasBanned {
		b.logger.Info().
			Str("ip", monitoring.Sensitive(key)).
			Str("reason", reason).
			Msg("IP got banned")
		monitoring.IncrementBans()
	}

	for id, c := range b.clients {
		if c.addr.IP.String() != key {
			continue
		}
		if _, err := fmt.Fprintf(c.conn, "You are banned Sinner!\n"); err != nil {
			b.logger.Error().
				Str("addr", monitoring.Sensitive(c.addr.String())).
				Str("error", monitoring.SensitiveErr(err)).
				Msg("Could not send ban notice")
		}
		b.shutdown(c.conn, c.addr)
		delete(b.clients, id)
		monitoring.IncrementDisconnects(monitoring.DisconnectReasonBanned)
	}
	monitoring.SetActiveClients(len(b.clients))
}

func (b *Broker) sinnerFor(ip net.IP) *sinner {
	key := ip.String()
	s, ok := b.sinners[key]
	if !ok {
		s = newSinner()
		b.sinners[key] = s
	}
	return s
}

// sinceOrZero is now.Sub(earlier) hardened against wall-clock jumps: a
// negative difference is clamped to zero and logged instead of
// propagating.
func (b *Broker) sinceOrZero(now, earlier time.Time, what string) time.Duration {
	d := now.Sub(earlier)
	if d < 0 {
		b.logger.Error().
			Str("check", what).
			Msg("The clock might have gone backwards")
		return 0
	}
	return d
}

func (b *Broker) shutdown(conn Conn, addr *net.TCPAddr) {
	if err := conn.Close(); err != nil {
		b.logger.Error().
			Str("addr", monitoring.Sensitive(addr.String())).
			Str("error", monitoring.SensitiveErr(err)).
			Msg("Could not shutdown socket")
	}
}

func (b *Broker) closeAll() {
	for id, c := range b.clients {
		b.shutdown(c.conn, c.addr)
		delete(b.clients, id)
		monitoring.IncrementDisconnects(monitoring.DisconnectReasonShutdown)
	}
	monitoring.SetActiveClients(0)
}
