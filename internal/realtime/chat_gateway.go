package realtime

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"github.com/iplance/iplance-core/internal/config"
	"github.com/iplance/iplance-core/internal/model"
	"github.com/iplance/iplance-core/internal/queue"
	"github.com/iplance/iplance-core/internal/repository"
	"github.com/iplance/iplance-core/internal/service"
	"github.com/iplance/iplance-core/internal/utils"
)

const (
	wsMaxPingFailures = 3
	wsCloseGrace      = time.Second
	wsRejectTimeout   = 2 * time.Second
	offlineTimeout    = 5 * time.Second
)

// Resolver turns the handshake token into a principal.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (model.User, *utils.Claims, error)
}

// RevocationChecker is consulted periodically while a socket is open.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, raw string) (bool, error)
}

type ChatLookup interface {
	GetByID(ctx context.Context, id int64) (model.Conversation, error)
}

type MessageStore interface {
	Create(ctx context.Context, m model.Message) (model.Message, error)
}

type Sealer interface {
	Encrypt(plaintext string) (string, error)
}

// OfflineNotifier is told about messages whose recipient has no socket.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, ev queue.OfflineMessageEvent) error
}

// Observer receives gateway events for metrics.  All methods may be no-ops.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	MessageStored()
	OfflineNotified(err error)
}

// GatewayDeps wires a ChatGateway.  Offline and Observer are optional.
type GatewayDeps struct {
	Registry       *Registry
	Resolver       Resolver
	Revocations    RevocationChecker
	Chats          ChatLookup
	Messages       MessageStore
	Codec          Sealer
	Offline        OfflineNotifier
	Observer       Observer
	Config         config.RealtimeConfig
	OriginPatterns []string
}

// ChatGateway runs one chat websocket per call to Serve.
//
// A connection moves connecting -> validated -> open -> closed.  Handshake
// failures are reported to the rejected socket only and never reach the
// registry.
type ChatGateway struct {
	GatewayDeps
}

func NewChatGateway(deps GatewayDeps) *ChatGateway {
	deps.Config = deps.Config.WithDefaults()
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &ChatGateway{GatewayDeps: deps}
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()     {}
func (nopObserver) ConnectionClosed()     {}
func (nopObserver) MessageStored()        {}
func (nopObserver) OfflineNotified(error) {}

// handshakeError is a handshake failure with the notice sent to the client.
type handshakeError struct {
	notice string
	code   websocket.StatusCode
	err    error
}

func (e *handshakeError) Error() string { return e.notice }
func (e *handshakeError) Unwrap() error { return e.err }

// session is the state of one open connection.
type session struct {
	g      *ChatGateway
	conn   *websocket.Conn
	client *Client
	user   model.User
	claims *utils.Claims
	token  string
	chat   model.Conversation

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Serve upgrades the request and runs the chat loop for chatID until the
// socket closes.  The access token travels in the "token" query parameter.
func (g *ChatGateway) Serve(w http.ResponseWriter, r *http.Request, chatID int64) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.OriginPatterns,
	})
	if err != nil {
		log.Warnf("ws: accept failed: %v", err)
		return
	}
	conn.SetReadLimit(g.Config.MaxFrameBytes)

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	user, claims, chat, err := g.handshake(r.Context(), token, chatID)
	if err != nil {
		g.reject(r.Context(), conn, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	s := &session{
		g:      g,
		conn:   conn,
		client: NewClient(user.ID, g.Config.SendQueueSize),
		user:   user,
		claims: claims,
		token:  token,
		chat:   chat,
		ctx:    ctx,
		cancel: cancel,
	}
	s.run()
}

func (g *ChatGateway) handshake(ctx context.Context, token string, chatID int64) (model.User, *utils.Claims, model.Conversation, error) {
	var (
		none model.Conversation
		zero model.User
	)
	user, claims, err := g.Resolver.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			return zero, nil, none, &handshakeError{notice: err.Error(), code: websocket.StatusPolicyViolation, err: err}
		}
		return zero, nil, none, &handshakeError{notice: "internal error", code: websocket.StatusInternalError, err: err}
	}
	if !user.Can(model.CapChat) {
		return zero, nil, none, &handshakeError{notice: "chat is not available for this account", code: websocket.StatusPolicyViolation}
	}
	chat, err := g.Chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return zero, nil, none, &handshakeError{notice: "chat not found", code: websocket.StatusPolicyViolation, err: err}
		}
		return zero, nil, none, &handshakeError{notice: "internal error", code: websocket.StatusInternalError, err: err}
	}
	if !chat.HasParticipant(user.ID) {
		return zero, nil, none, &handshakeError{notice: "you are not a participant of this chat", code: websocket.StatusPolicyViolation}
	}
	return user, claims, chat, nil
}

// reject writes the failure notice to conn and closes it.  The notice goes to
// the rejected socket only, never to other connected users.
func (g *ChatGateway) reject(parent context.Context, conn *websocket.Conn, err error) {
	code := websocket.StatusPolicyViolation
	notice := err.Error()
	var he *handshakeError
	if errors.As(err, &he) {
		code = he.code
		if he.err != nil && code == websocket.StatusInternalError {
			log.Errorf("ws: handshake: %v", he.err)
		}
	}
	ctx, cancel := context.WithTimeout(parent, wsRejectTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, errorFrame(notice))
	_ = conn.Close(code, notice)
}

func (s *session) run() {
	g := s.g
	g.Registry.Connect(s.client, s.user.ID)
	g.Observer.ConnectionOpened()
	log.Infof("ws: %s joined chat %d (client %s)", s.user.Username, s.chat.ID, s.client.ID)
	s.announce(FrameJoin)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	bgDone := make(chan struct{})
	go func() {
		defer close(bgDone)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); s.heartbeat() }()
		go func() { defer wg.Done(); s.revalidate() }()
		wg.Wait()
	}()

	s.readLoop()

	s.shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
	select {
	case <-bgDone:
	case <-time.After(wsCloseGrace):
	}

	g.Observer.ConnectionClosed()
	log.Infof("ws: %s left chat %d (client %s)", s.user.Username, s.chat.ID, s.client.ID)
	s.announce(FrameLeave)
}

// shutdown deregisters and closes the connection.  It is idempotent and
// never closes client.Send.
func (s *session) shutdown(code websocket.StatusCode, reason string) {
	s.once.Do(func() {
		s.g.Registry.Disconnect(s.client, s.user.ID)
		s.client.Close()
		_ = s.conn.Close(code, reason)
		s.cancel()
	})
}

// fail sends text as an error frame and closes with code.
func (s *session) fail(code websocket.StatusCode, text string) {
	s.writeDirect(errorFrame(text))
	s.shutdown(code, text)
}

func (s *session) writeDirect(payload []byte) {
	ctx, cancel := context.WithTimeout(s.ctx, s.g.Config.WriteTimeout)
	defer cancel()
	_ = s.conn.Write(ctx, websocket.MessageText, payload)
}

func (s *session) announce(kind string) {
	frame := mustFrame(PresenceFrame{
		Type:     kind,
		ChatID:   s.chat.ID,
		UserID:   s.user.ID,
		Username: s.user.Username,
	})
	for _, id := range s.participants() {
		s.g.Registry.SendTo(id, frame)
	}
}

// participants lists each distinct participant once.
func (s *session) participants() []uuid.UUID {
	if s.chat.CustomerID == s.chat.PerformerID {
		return []uuid.UUID{s.chat.CustomerID}
	}
	return []uuid.UUID{s.chat.CustomerID, s.chat.PerformerID}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.client.Done():
			s.flush()
			s.shutdown(websocket.StatusGoingAway, "connection closed by server")
			return
		case payload := <-s.client.Send:
			ctx, cancel := context.WithTimeout(s.ctx, s.g.Config.WriteTimeout)
			err := s.conn.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				log.Debugf("ws: write to %s failed: %v", s.client.ID, err)
				s.shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

// flush writes whatever is still queued, so a notice sent right before the
// server closes the client still arrives.
func (s *session) flush() {
	for {
		select {
		case payload := <-s.client.Send:
			s.writeDirect(payload)
		default:
			return
		}
	}
}

func (s *session) heartbeat() {
	t := time.NewTicker(s.g.Config.HeartbeatInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(s.ctx, s.g.Config.HeartbeatTimeout)
			err := s.conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= wsMaxPingFailures {
				s.shutdown(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

// revalidate closes the socket once the handshake token is revoked or
// expires.
func (s *session) revalidate() {
	t := time.NewTicker(s.g.Config.RevalidateInterval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-t.C:
			if s.claims != nil && s.claims.ExpiresAt != nil && !now.Before(s.claims.ExpiresAt.Time) {
				s.fail(websocket.StatusPolicyViolation, service.ErrTokenExpired.Error())
				return
			}
			if s.g.Revocations == nil {
				continue
			}
			revoked, err := s.g.Revocations.IsRevoked(s.ctx, s.token)
			if err != nil {
				log.Warnf("ws: revalidate %s: %v", s.client.ID, err)
				continue
			}
			if revoked {
				s.fail(websocket.StatusPolicyViolation, service.ErrTokenRevoked.Error())
				return
			}
		}
	}
}

func (s *session) readLoop() {
	cfg := s.g.Config
	limiter := rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.MessageBurst)
	for {
		ctx, cancel := context.WithTimeout(s.ctx, cfg.ReadIdleTimeout)
		typ, data, err := s.conn.Read(ctx)
		cancel()
		if err != nil {
			s.closeOnReadError(err)
			return
		}
		if typ != websocket.MessageText {
			s.sendError("only text frames are accepted")
			continue
		}
		if !limiter.Allow() {
			s.fail(websocket.StatusPolicyViolation, "rate limited")
			return
		}

		in := parseInbound(data)
		if in.Text == "" && in.FileURL == nil {
			s.sendError("empty message")
			continue
		}
		if utf8.RuneCountInString(in.Text) > cfg.MaxMessageChars {
			s.sendError("message too long")
			continue
		}
		if err := s.post(in); err != nil {
			log.Errorf("ws: store message in chat %d: %v", s.chat.ID, err)
			s.sendError("could not store message")
		}
	}
}

func (s *session) closeOnReadError(err error) {
	switch {
	case websocket.CloseStatus(err) != -1:
		s.shutdown(websocket.StatusNormalClosure, "peer closed")
	case errors.Is(err, context.DeadlineExceeded) && s.ctx.Err() == nil:
		s.shutdown(websocket.StatusPolicyViolation, "idle timeout")
	case errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		s.shutdown(websocket.StatusNormalClosure, "closed")
	default:
		log.Debugf("ws: read from %s failed: %v", s.client.ID, err)
		s.shutdown(websocket.StatusAbnormalClosure, "read failed")
	}
}

func (s *session) sendError(text string) {
	if !s.client.deliver(errorFrame(text)) {
		log.Debugf("ws: error frame to %s dropped", s.client.ID)
	}
}

// post encrypts, stores and fans out one message.
func (s *session) post(in inbound) error {
	g := s.g
	sealed, err := g.Codec.Encrypt(in.Text)
	if err != nil {
		return err
	}
	stored, err := g.Messages.Create(s.ctx, model.Message{
		ChatID:   s.chat.ID,
		SenderID: s.user.ID,
		Content:  sealed,
		FileURL:  in.FileURL,
	})
	if err != nil {
		return err
	}
	g.Observer.MessageStored()

	frame := mustFrame(MessageFrame{
		Type:           FrameMessage,
		ChatID:         s.chat.ID,
		MessageID:      stored.ID,
		SenderID:       s.user.ID,
		SenderUsername: s.user.Username,
		Text:           in.Text,
		FileURL:        in.FileURL,
		CreatedAt:      stored.CreatedAt,
	})
	g.Registry.SendTo(s.user.ID, frame)

	recipient, ok := s.chat.Counterpart(s.user.ID)
	if !ok || recipient == s.user.ID {
		return nil
	}
	if g.Registry.SendTo(recipient, frame) == 0 && g.Offline != nil {
		ev := queue.OfflineMessageEvent{
			ChatID:         s.chat.ID,
			MessageID:      stored.ID,
			RecipientID:    recipient,
			SenderID:       s.user.ID,
			SenderUsername: s.user.Username,
			CreatedAt:      stored.CreatedAt,
		}
		go g.notifyOffline(ev)
	}
	return nil
}

func (g *ChatGateway) notifyOffline(ev queue.OfflineMessageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), offlineTimeout)
	defer cancel()
	err := g.Offline.NotifyOffline(ctx, ev)
	g.Observer.OfflineNotified(err)
	if err != nil {
		log.Warnf("ws: offline notify for message %d: %v", ev.MessageID, err)
	}
}
