package lime2node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mdouchement/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

var (
	ErrRateLimited = errors.New("too many commands, retry later")
	ErrNotLaunched = errors.New("relay not launched")
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The irrigation web page is served by another host.
		return true
	},
}

// A Relay lets browsers trigger commands without waiting for the whole
// command/ACK cycle: each command is handed over to a backend process and
// the browser polls the operation log with GET_UPDATE.
type Relay struct {
	cfg      RelayConfig
	spawner  Spawner
	limiter  *rate.Limiter
	metrics  *RelayMetrics
	registry *prometheus.Registry
	clients  *xsync.MapOf[string, *wsClient]
	events   chan event
	done     chan struct{}
	launched atomic.Bool
	ctx      context.Context
	log      logger.Logger
}

func NewRelay(cfg RelayConfig, spawner Spawner, log logger.Logger) *Relay {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	if cfg.History <= 0 {
		cfg.History = 20
	}

	registry := NewRegistry()
	return &Relay{
		cfg:      cfg,
		spawner:  spawner,
		limiter:  rate.NewLimiter(limit, max(cfg.Burst, 1)),
		metrics:  NewRelayMetrics(registry),
		registry: registry,
		clients:  xsync.NewMapOf[string, *wsClient](),
		events:   make(chan event, 10),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		log:      log,
	}
}

// Launch starts the event loop; it stops when ctx is done.
// Nothing is dispatched nor reported before Launch.
func (r *Relay) Launch(ctx context.Context) {
	r.ctx = context.WithoutCancel(ctx)
	go r.eventLoop()
	r.launched.Store(true)

	go func() {
		<-ctx.Done()
		close(r.done)

		r.clients.Range(func(_ string, c *wsClient) bool {
			c.conn.Close()
			return true
		})
	}()
}

// ListenAndServe serves the relay until ctx is done.
func (r *Relay) ListenAndServe(ctx context.Context, l net.Listener) error {
	server := &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.log.Info("Starting relay on", l.Addr().String())
		errCh <- server.Serve(l)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdown)
	}
}

func (r *Relay) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/", r.serveWS) // Legacy browser clients connect to the root.
	router.GET("/ws", r.serveWS)
	router.GET("/monitor", r.monitor)
	router.GET("/operations", r.operations)
	router.GET("/metrics", gin.WrapH(MetricsHandler(r.registry)))

	return router
}

// Dispatch spawns a backend process for the command and returns immediately.
func (r *Relay) Dispatch(command string, param int) (Operation, error) {
	if !r.launched.Load() {
		return Operation{}, ErrNotLaunched
	}
	if !r.limiter.Allow() {
		r.metrics.RateLimited.Inc()
		return Operation{}, ErrRateLimited
	}

	op := Operation{
		ID:        uuid.NewString(),
		Command:   command,
		Parameter: param,
		State:     OperationPending,
		StartedAt: time.Now(),
	}
	r.metrics.Dispatched.WithLabelValues(command).Inc()
	r.emit(event{name: eventUpdateOperation, operation: op})

	go func(op Operation) {
		r.metrics.Running.Inc()
		defer r.metrics.Running.Dec()

		op.State = OperationRunning
		r.emit(event{name: eventUpdateOperation, operation: op})

		r.log.Infof("Operation %s: running %s command (param=%d)", op.ID, command, param)

		code, err := r.spawner.Spawn(r.ctx, command, param)
		if err != nil {
			r.log.WithError(err).Errorf("Operation %s: could not run backend", op.ID)
		}

		op.ExitCode = code
		op.State = OperationState(code)
		op.FinishedAt = time.Now()
		r.metrics.Outcomes.WithLabelValues(command, op.State).Inc()
		r.log.Infof("Operation %s: %s command completed: %s", op.ID, command, op.State)

		r.emit(event{name: eventUpdateOperation, operation: op})
		r.broadcastUpdate()
	}(op)

	return op, nil
}

// Operations returns the most recent operations, oldest first.
func (r *Relay) Operations() []Operation {
	reply := make(chan []Operation, 1)
	if !r.emit(event{name: eventSnapshot, snapshot: reply}) {
		return nil
	}

	select {
	case ops := <-reply:
		return ops
	case <-r.done:
		return nil
	}
}

func (r *Relay) emit(e event) bool {
	if !r.launched.Load() {
		return false
	}

	select {
	case r.events <- e:
		return true
	case <-r.done:
		return false
	}
}

func (r *Relay) eventLoop() {
	watchers := map[int64]chan<- []byte{}
	var history []Operation

	refresh := func() {
		payload, err := json.Marshal(history)
		if err != nil {
			r.log.WithError(err).Error("Could not serialize operations") // Should never happen
			return
		}

		for _, watcher := range watchers {
			select {
			case watcher <- payload:
			default:
				// Slow watcher, it will catch up with the next refresh.
			}
		}
	}

	for {
		var e event
		select {
		case e = <-r.events:
		case <-r.done:
			for id, watcher := range watchers {
				close(watcher)
				delete(watchers, id)
			}
			return
		}

		switch e.name {
		case eventUpdateOperation:
			i := slices.IndexFunc(history, func(o Operation) bool { return o.ID == e.operation.ID })
			if i < 0 {
				if e.operation.State != OperationPending {
					// Already evicted from the history.
					continue
				}
				history = append(history, e.operation)
			} else {
				history[i] = e.operation
			}
			if n := len(history) - r.cfg.History; n > 0 {
				history = slices.Delete(history, 0, n)
			}

			refresh()
		case eventWatch:
			watchers[e.monitorID] = e.monitor
			refresh()
		case eventUnwatch:
			if watcher, ok := watchers[e.monitorID]; ok {
				close(watcher)
				delete(watchers, e.monitorID)
			}
		case eventSnapshot:
			e.snapshot <- slices.Clone(history)
		}
	}
}

func (r *Relay) operations(c *gin.Context) {
	ops := r.Operations()
	if ops == nil {
		ops = []Operation{}
	}
	c.JSON(http.StatusOK, ops)
}

func (r *Relay) monitor(c *gin.Context) {
	r.log.Info("Monitor connected")

	// Set http headers required for SSE.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	disconnected := c.Request.Context().Done()

	id := genID()
	ch := make(chan []byte, 20)
	if !r.emit(event{name: eventWatch, monitorID: id, monitor: ch}) {
		return
	}

	for {
		select {
		case <-disconnected:
			r.log.Info("Monitor disconnected")
			r.emit(event{name: eventUnwatch, monitorID: id})
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}

			if err := WriteSSE(c.Writer, payload); err != nil {
				r.log.WithError(err).Error("Could not write monitor SSE payload")
				r.emit(event{name: eventUnwatch, monitorID: id})
				return
			}
			c.Writer.Flush()
		}
	}
}

//
// WebSocket
//

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func (c *wsClient) push(p []byte) {
	select {
	case c.send <- p:
	case <-c.done:
	default:
		// The browser polls anyway, dropping is harmless.
	}
}

func (r *Relay) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.log.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	r.clients.Store(client.id, client)
	r.metrics.Clients.Set(float64(r.clients.Size()))
	r.log.Infof("New connection %s from %s", client.id, conn.RemoteAddr())

	go r.writePump(client)
	r.readPump(client)
}

func (r *Relay) readPump(client *wsClient) {
	defer func() {
		r.clients.Delete(client.id)
		r.metrics.Clients.Set(float64(r.clients.Size()))
		close(client.done)
		client.conn.Close()
		r.log.Infof("Connection %s has disconnected", client.id)
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				r.log.WithError(err).Warnf("Connection %s read error", client.id)
			}
			return
		}

		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		r.handle(client, msg)
	}
}

func (r *Relay) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case <-client.done:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			client.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (r *Relay) handle(client *wsClient, msg []byte) {
	req := ParseRelayRequest(msg)
	r.log.Debugf("From connection %s received message %q", client.id, msg)

	switch req.Command {
	case RelayGetUpdate:
		client.push(r.operationLog())
	case RelayTurnOn, RelayTurnOff:
		group, err := req.Param(1)
		if err != nil || group < 1 || group > 2 {
			client.push(fmt.Appendf(nil, "Invalid channel group %s for %s", req.Parameter, req.Command))
			return
		}
		r.dispatch(client, req.Command, group)
	case RelayTurnOnWithTimer:
		minutes, err := req.Param(0)
		if err != nil || minutes < 1 || minutes > 99 {
			client.push(fmt.Appendf(nil, "Invalid timer %s for %s: only values in range [1-99] are accepted", req.Parameter, req.Command))
			return
		}
		r.dispatch(client, req.Command, minutes)
	default:
		r.log.Warnf("Unknown %q command", req.Command)
	}
}

func (r *Relay) dispatch(client *wsClient, command string, param int) {
	op, err := r.Dispatch(command, param)
	if err != nil {
		r.log.WithError(err).Warnf("Refused %s command from %s", command, client.id)
		client.push([]byte(err.Error()))
		return
	}

	r.log.Infof("Received %s command from %s; operation %s", command, client.id, op.ID)
}

func (r *Relay) operationLog() []byte {
	p, err := os.ReadFile(r.cfg.OperationLog)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.log.WithError(err).Error("Could not read operation log")
		}
		return []byte("No operation yet.")
	}
	return p
}

// broadcastUpdate pushes the operation log to every browser.
func (r *Relay) broadcastUpdate() {
	p := r.operationLog()
	r.clients.Range(func(_ string, c *wsClient) bool {
		c.push(p)
		return true
	})
}
