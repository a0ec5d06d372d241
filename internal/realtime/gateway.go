package realtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tradegate/tradegate/internal/audit"
	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/logger"
	"github.com/tradegate/tradegate/internal/model"
	"github.com/tradegate/tradegate/internal/rbac"
)

// TokenValidator resolves a token and session id to an identity.
// Implemented by the auth service; connections authenticate with the same
// credentials as HTTP requests.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString, sessionID, ip, userAgent string) (*model.Identity, error)
}

// inbound is a client-to-server message.
type inbound struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

// envelope is a server-to-client message. Timestamp is stamped at send.
type envelope struct {
	Type      string                 `json:"type"`
	Channel   string                 `json:"channel,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Severity  string                 `json:"severity,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Gateway owns every websocket connection and fans events out to
// role-gated channels. Broadcasts are fire and forget: no acknowledgement,
// no replay, a slow consumer silently loses events.
type Gateway struct {
	cfg      config.RealtimeConfig
	validate TokenValidator
	sink     audit.Recorder
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool
	closed  bool
}

// NewGateway creates a new realtime Gateway.
func NewGateway(cfg config.RealtimeConfig, validate TokenValidator, sink audit.Recorder, log *logger.Logger) *Gateway {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}

	return &Gateway{
		cfg:      cfg,
		validate: validate,
		sink:     sink,
		log:      log.WithComponent("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		clients: make(map[*client]bool),
	}
}

// HandleWS upgrades the HTTP request and runs the connection until it
// closes. Connections start unauthenticated and must present a valid
// token within the grace period.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	ip := clientIP(r)
	c := newClient(conn, ip, r.UserAgent(), g.cfg.SendBuffer)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		conn.Close()
		return
	}
	g.clients[c] = true
	g.mu.Unlock()

	go g.writePump(c)
	go g.authDeadline(c)
	g.readPump(r.Context(), c)
}

// authDeadline closes the connection if it has not authenticated within
// the grace period.
func (g *Gateway) authDeadline(c *client) {
	timer := time.NewTimer(g.cfg.AuthGracePeriod)
	defer timer.Stop()
	<-timer.C

	if _, ok := c.authenticated(); !ok {
		c.enqueue(envelope{Type: "auth_error", Message: "Authentication timeout"})
		g.sink.Record(context.Background(), model.AuditRealtimeAuthFailed, "", c.ip, c.userAgent, map[string]interface{}{
			"reason": "timeout",
		})
		// Give the write pump a moment to flush the error frame.
		time.AfterFunc(time.Second, func() { g.disconnect(c) })
	}
}

func (g *Gateway) readPump(ctx context.Context, c *client) {
	defer g.disconnect(c)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.enqueue(envelope{Type: "error", Message: "Malformed message"})
			continue
		}

		switch msg.Type {
		case "authenticate":
			g.handleAuthenticate(ctx, c, msg)
		case "subscribe":
			g.handleSubscribe(c, msg.Channel)
		case "unsubscribe":
			c.unsubscribe(msg.Channel)
		case "ping":
			c.enqueue(envelope{Type: "pong"})
		default:
			c.enqueue(envelope{Type: "error", Message: "Unknown message type"})
		}
	}
}

func (g *Gateway) handleAuthenticate(ctx context.Context, c *client, msg inbound) {
	if _, ok := c.authenticated(); ok {
		c.enqueue(envelope{Type: "error", Message: "Already authenticated"})
		return
	}

	identity, err := g.validate.ValidateToken(ctx, msg.Token, msg.SessionID, c.ip, c.userAgent)
	if err != nil {
		g.log.Debug().Err(err).Str("ip", c.ip).Msg("realtime authentication failed")
		g.sink.Record(ctx, model.AuditRealtimeAuthFailed, "", c.ip, c.userAgent, map[string]interface{}{
			"reason": "invalid_credentials",
		})
		c.enqueue(envelope{Type: "auth_error", Message: "Authentication failed"})
		time.AfterFunc(time.Second, func() { g.disconnect(c) })
		return
	}

	c.setAuthenticated(identity)

	// Every identity gets its personal channel; admins join the shared
	// admin channel automatically.
	c.subscribe(personalChannel(identity.AccountID))
	if model.IsAdminRole(identity.Role) {
		c.subscribe(rbac.ChannelAdmin)
	}

	c.enqueue(envelope{
		Type: "authenticated",
		Data: map[string]interface{}{
			"accountId": identity.AccountID,
			"role":      string(identity.Role),
		},
	})
	g.log.Info().Str("account_id", identity.AccountID).Str("role", string(identity.Role)).Msg("realtime connection authenticated")
}

func (g *Gateway) handleSubscribe(c *client, channel string) {
	identity, ok := c.authenticated()
	if !ok {
		c.enqueue(envelope{Type: "error", Message: "Authentication required"})
		return
	}
	if channel == "" {
		c.enqueue(envelope{Type: "subscribe_error", Message: "Channel required"})
		return
	}
	if !rbac.CanJoinChannel(identity.Role, channel) {
		c.enqueue(envelope{Type: "subscribe_error", Channel: channel, Message: "Access denied"})
		return
	}

	c.subscribe(channel)
	c.enqueue(envelope{Type: "subscribed", Channel: channel})
}

func (g *Gateway) writePump(c *client) {
	for {
		select {
		case ev := <-c.send:
			ev.Timestamp = time.Now()
			c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				g.disconnect(c)
				return
			}
		case <-c.done:
			// Flush what was queued before the close, then send the
			// close frame.
			for {
				select {
				case ev := <-c.send:
					ev.Timestamp = time.Now()
					c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
					if c.conn.WriteJSON(ev) != nil {
						c.conn.Close()
						return
					}
				default:
					c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(time.Second))
					c.conn.Close()
					return
				}
			}
		}
	}
}

// disconnect removes the client from the registry and tears the
// connection down. Admin disconnects leave an audit trail.
func (g *Gateway) disconnect(c *client) {
	g.mu.Lock()
	if !g.clients[c] {
		g.mu.Unlock()
		return
	}
	delete(g.clients, c)
	g.mu.Unlock()

	identity, wasAuthenticated := c.authenticated()
	c.markClosed()

	if wasAuthenticated && model.IsAdminRole(identity.Role) {
		g.sink.Record(context.Background(), model.AuditRealtimeAdminClosed, identity.AccountID, c.ip, c.userAgent, map[string]interface{}{
			"connected_for": time.Since(c.connected).String(),
		})
	}
}

// broadcast fans an event out to every client subscribed to the channel.
func (g *Gateway) broadcast(channel string, ev envelope) {
	ev.Channel = channel

	g.mu.RLock()
	targets := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		if c.subscribedTo(channel) {
			targets = append(targets, c)
		}
	}
	g.mu.RUnlock()

	dropped := 0
	for _, c := range targets {
		if !c.enqueue(ev) {
			dropped++
		}
	}
	if dropped > 0 {
		g.log.Warn().Str("channel", channel).Str("event", ev.Type).Int("dropped", dropped).Msg("events dropped for slow consumers")
	}
}

// ConnectionCount returns the number of tracked connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Close disconnects every client and stops accepting new connections.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	clients := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		g.disconnect(c)
	}
}

func personalChannel(accountID string) string {
	return "account:" + accountID
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
