package exchange

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
)

const (
	// pongWait is the time allowed between inbound frames before the
	// connection is considered dead.
	pongWait = 60 * time.Second

	// pingPeriod sends protocol-level pings at this interval. Must be
	// less than pongWait.
	pingPeriod = 25 * time.Second

	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// defaultBackoffBase is the first reconnect delay.
	defaultBackoffBase = time.Second

	// defaultBackoffMax caps the reconnect delay.
	defaultBackoffMax = 30 * time.Second

	// defaultJitterMax is the upper bound of the uniform jitter added to
	// every reconnect delay.
	defaultJitterMax = time.Second

	// defaultMaxAttempts is the consecutive-failure budget after which the
	// session enters a terminal error state.
	defaultMaxAttempts = 5
)

// Inbound is the result of parsing one websocket frame.
type Inbound struct {
	// Sample is non-nil when the frame carried a usable price.
	Sample *domain.PriceSample

	// Reply is non-nil when the venue expects an in-band response, e.g. a
	// pong answering an application-level ping.
	Reply []byte
}

// Parser turns one raw frame into an Inbound. Returning an error drops the
// frame with a warning; subscription acks and other control traffic should
// return an empty Inbound and no error.
type Parser func(messageType int, data []byte) (Inbound, error)

// Conn is the subset of *websocket.Conn the session needs. Tests substitute
// scripted implementations.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens websocket connections. The default implementation wraps
// gorilla/websocket; tests substitute stubs.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: DialTimeout}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SessionConfig describes one venue websocket session.
type SessionConfig struct {
	Ticker string
	Venue  string
	Market domain.MarketKind
	URL    string

	// SubscribeFrames are sent in order after every successful open. Nil
	// for venues that carry the whole subscription in the URL.
	SubscribeFrames [][]byte

	Parse Parser
	Emit  SampleSink

	// Dialer defaults to gorilla/websocket.
	Dialer Dialer
	Logger *slog.Logger

	// Backoff overrides; zero values select the defaults above. Tests use
	// these to keep reconnect sequences fast and deterministic.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	JitterMax   time.Duration
	MaxAttempts int
}

// Session is a self-healing websocket session for one (ticker, venue,
// market). It implements the Adapter connection surface; the venue packages'
// adapter constructors return a configured Session, and their REST listing
// probes live in separate Client types.
//
// State machine: initial -> connecting -> (connected | disconnected);
// connected -> disconnected on a dropped connection; disconnected ->
// connecting on the reconnect schedule. The error state is terminal and is
// entered only when the consecutive failure budget is spent; only Reconnect
// leaves it.
type Session struct {
	cfg    SessionConfig
	dialer Dialer
	logger *slog.Logger

	mu       sync.Mutex
	conn     Conn
	status   domain.SessionStatus
	attempts int
	manual   bool
	timer    *time.Timer
	statusFn StatusFunc
	ctx      context.Context
	cancel   context.CancelFunc
	pingStop chan struct{}
}

// NewSession creates a session in the initial (disconnected) state.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = gorillaDialer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if cfg.JitterMax < 0 {
		cfg.JitterMax = 0
	} else if cfg.JitterMax == 0 {
		cfg.JitterMax = defaultJitterMax
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Session{
		cfg:    cfg,
		dialer: cfg.Dialer,
		logger: cfg.Logger.With(
			slog.String("venue", cfg.Venue),
			slog.String("market", string(cfg.Market)),
			slog.String("ticker", cfg.Ticker),
		),
		status: domain.StatusDisconnected,
	}
}

// Venue implements Adapter.
func (s *Session) Venue() string { return s.cfg.Venue }

// Market implements Adapter.
func (s *Session) Market() domain.MarketKind { return s.cfg.Market }

// OnStatus implements Adapter.
func (s *Session) OnStatus(fn StatusFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusFn = fn
}

// IsConnected implements Adapter.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == domain.StatusConnected
}

// Connect implements Adapter. The dial itself happens on a session-owned
// goroutine; progress is reported through the status callback.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status == domain.StatusConnecting || s.status == domain.StatusConnected {
		s.mu.Unlock()
		return nil
	}
	s.manual = false
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.attempt()
	return nil
}

// Reconnect implements Adapter: it tears down any live connection, resets
// the attempt budget, and dials again. This is the escape hatch from the
// terminal error state.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	s.stopTimerLocked()
	s.closeConnLocked(websocket.CloseServiceRestart, "reconnect requested")
	if s.cancel != nil {
		s.cancel()
	}
	s.attempts = 0
	s.manual = false
	s.status = domain.StatusDisconnected
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.attempt()
	return nil
}

// Disconnect implements Adapter: a clean, client-initiated close. No
// reconnection is scheduled afterwards.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.manual = true
	s.stopTimerLocked()
	s.closeConnLocked(websocket.CloseNormalClosure, "manual disconnect")
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.setStatus(domain.StatusDisconnected, "")
}

// attempt performs one dial-and-subscribe cycle.
func (s *Session) attempt() {
	s.mu.Lock()
	if s.manual || s.ctx == nil || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.status = domain.StatusConnecting
	s.mu.Unlock()
	s.emitStatus(domain.StatusConnecting, "")

	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	conn, err := s.dialer.DialContext(dialCtx, s.cfg.URL)
	cancel()
	if err != nil {
		s.onAttemptFailure(err)
		return
	}

	for _, frame := range s.cfg.SubscribeFrames {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			_ = conn.Close()
			s.onAttemptFailure(err)
			return
		}
	}

	s.mu.Lock()
	if s.manual || ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.attempts = 0
	s.status = domain.StatusConnected
	pingStop := make(chan struct{})
	s.pingStop = pingStop
	s.mu.Unlock()

	s.emitStatus(domain.StatusConnected, "")
	go s.keepAlive(conn, pingStop)
	go s.readLoop(conn, pingStop)
}

// onAttemptFailure books a failed connection attempt and either schedules
// the next try or, once the budget is spent, parks the session in the
// terminal error state.
func (s *Session) onAttemptFailure(err error) {
	s.mu.Lock()
	if s.manual || s.ctx == nil || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.attempts++
	attempts := s.attempts
	terminal := attempts >= s.cfg.MaxAttempts
	if terminal {
		s.status = domain.StatusError
	} else {
		s.status = domain.StatusDisconnected
	}
	s.mu.Unlock()

	if terminal {
		s.logger.Error("reconnect budget exhausted",
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
		s.emitStatus(domain.StatusError, domain.ErrReconnectBudget.Error()+": "+err.Error())
		return
	}

	// Failures inside the budget are transient: the session reports them
	// as disconnected and keeps retrying. StatusError is reserved for the
	// terminal state above.
	s.logger.Warn("connection attempt failed",
		slog.Int("attempt", attempts),
		slog.String("error", err.Error()),
	)
	s.emitStatus(domain.StatusDisconnected, err.Error())
	s.scheduleReconnect(attempts)
}

// scheduleReconnect arms the backoff timer: full jitter on top of a doubling
// base delay, capped. Replacing the timer stops the previous one.
func (s *Session) scheduleReconnect(attempts int) {
	delay := s.backoffDelay(attempts)

	s.mu.Lock()
	s.stopTimerLocked()
	s.timer = time.AfterFunc(delay, s.attempt)
	s.mu.Unlock()

	s.logger.Debug("reconnect scheduled", slog.Duration("delay", delay))
}

func (s *Session) backoffDelay(attempts int) time.Duration {
	shift := attempts - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 10 {
		shift = 10
	}
	delay := s.cfg.BackoffBase << shift
	if s.cfg.JitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(s.cfg.JitterMax)))
	}
	if delay > s.cfg.BackoffMax {
		delay = s.cfg.BackoffMax
	}
	return delay
}

// readLoop consumes frames until the connection drops, dispatching each one
// through the venue parser.
func (s *Session) readLoop(conn Conn, pingStop chan struct{}) {
	defer close(pingStop)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			s.onConnectionLost(conn, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		s.dispatch(conn, messageType, data)
	}
}

func (s *Session) dispatch(conn Conn, messageType int, data []byte) {
	inbound, err := s.cfg.Parse(messageType, data)
	if err != nil {
		s.logger.Warn("dropped unparseable frame", slog.String("error", err.Error()))
		return
	}
	if inbound.Reply != nil {
		if err := conn.WriteMessage(websocket.TextMessage, inbound.Reply); err != nil {
			s.logger.Warn("pong write failed", slog.String("error", err.Error()))
		}
	}
	if inbound.Sample != nil {
		s.cfg.Emit(s.cfg.Ticker, *inbound.Sample)
	}
}

// onConnectionLost handles a read error: a manual close ends the session
// quietly, anything else emits a disconnected status and enters the
// reconnect schedule.
func (s *Session) onConnectionLost(conn Conn, err error) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	manual := s.manual || s.ctx == nil || s.ctx.Err() != nil
	attempts := s.attempts
	if !manual {
		s.status = domain.StatusDisconnected
	}
	s.mu.Unlock()
	_ = conn.Close()

	if manual {
		return
	}

	s.logger.Warn("connection lost", slog.String("error", err.Error()))
	s.emitStatus(domain.StatusDisconnected, err.Error())
	s.scheduleReconnect(attempts)
}

// keepAlive sends protocol-level pings until the read loop ends.
func (s *Session) keepAlive(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (s *Session) setStatus(status domain.SessionStatus, errMsg string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.emitStatus(status, errMsg)
}

func (s *Session) emitStatus(status domain.SessionStatus, errMsg string) {
	s.mu.Lock()
	fn := s.statusFn
	attempts := s.attempts
	s.mu.Unlock()
	if fn == nil {
		return
	}
	fn(domain.StatusUpdate{
		Ticker:   s.cfg.Ticker,
		Venue:    s.cfg.Venue,
		Market:   s.cfg.Market,
		Status:   status,
		Error:    errMsg,
		Attempts: attempts,
		Time:     time.Now(),
	})
}

// stopTimerLocked cancels a pending reconnect timer. Caller holds s.mu.
func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// closeConnLocked sends a close frame and closes the connection. Caller
// holds s.mu.
func (s *Session) closeConnLocked(code int, reason string) {
	if s.conn == nil {
		return
	}
	deadline := time.Now().Add(writeWait)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	_ = s.conn.Close()
	s.conn = nil
}
