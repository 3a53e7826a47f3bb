package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// reconnectBackoff is the fixed (non-exponential) delay between a dropped
// connection and the next dial attempt (§4.1).
const reconnectBackoff = 5 * time.Second

const (
	pingInterval = time.Minute
	readTimeout  = 5 * time.Minute
)

// Handler receives dispatched commits. Implementations must not block —
// the ingestor is the only reader of the WebSocket connection.
type Handler interface {
	HandleLike(ctx context.Context, ref string, op Operation, subjectURI string) error
	HandleRepost(ctx context.Context, ref string, op Operation, subjectURI string) error
	// OnConnected is invoked once per successful dial, before the first
	// message is read, so the caller can start timers and enqueue a
	// "connected" snapshot (§4.1).
	OnConnected(ctx context.Context)
}

// Ingestor owns the single WebSocket connection to the Jetstream
// endpoint.
type Ingestor struct {
	endpoint string
	handler  Handler
	log      *zap.Logger
	dialer   *websocket.Dialer

	shuttingDown bool
}

// New builds an Ingestor for endpoint (a wss:// Jetstream subscribe URL).
func New(endpoint string, handler Handler, log *zap.Logger) *Ingestor {
	return &Ingestor{
		endpoint: endpoint,
		handler:  handler,
		log:      log.Named("ingestor"),
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Shutdown marks the ingestor as shutting down so the next close does
// not trigger a reconnect (§4.11).
func (in *Ingestor) Shutdown() {
	in.shuttingDown = true
}

// Run dials the endpoint and reconnects on every drop until ctx is
// cancelled or Shutdown is called. It never returns an error to the
// caller — connection failures are logged and retried (§4.1, §7).
func (in *Ingestor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := in.connectOnce(ctx); err != nil {
			in.log.Warn("connection dropped", zap.Error(err))
		}
		if in.shuttingDown {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (in *Ingestor) connectOnce(ctx context.Context) error {
	conn, _, err := in.dialer.DialContext(ctx, in.endpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go in.keepAlive(pingCtx, conn)

	in.handler.OnConnected(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		in.dispatch(ctx, message)
	}
}

func (in *Ingestor) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.WriteMessage(websocket.PingMessage, nil)
		}
	}
}

// dispatch parses a frame and routes commits to the handler. Parse and
// handler errors are logged and swallowed (§4.1).
func (in *Ingestor) dispatch(ctx context.Context, message []byte) {
	var evt Event
	if err := json.Unmarshal(message, &evt); err != nil {
		in.log.Debug("malformed event", zap.Error(err))
		return
	}
	if evt.Kind != KindCommit || evt.Commit == nil {
		return
	}
	c := evt.Commit
	ref := RefKey(evt.Did, c.RKey)

	var err error
	switch c.Collection {
	case CollectionLike:
		err = in.handleRecord(ctx, c, ref, in.handler.HandleLike)
	case CollectionRepost:
		err = in.handleRecord(ctx, c, ref, in.handler.HandleRepost)
	default:
		return
	}
	if err != nil {
		in.log.Debug("handler error", zap.String("ref", ref), zap.Error(err))
	}
}

func (in *Ingestor) handleRecord(ctx context.Context, c *Commit, ref string, handle func(context.Context, string, Operation, string) error) error {
	switch c.Operation {
	case OpDelete:
		return handle(ctx, ref, OpDelete, "")
	case OpCreate:
		uri, ok := SubjectURI(c.Record)
		if !ok {
			return nil
		}
		return handle(ctx, ref, OpCreate, uri)
	case OpUpdate:
		return nil
	default:
		return nil
	}
}
