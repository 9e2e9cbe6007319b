package broadcast

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/iamvishnuk/poll-server/internal/domain"
	"github.com/iamvishnuk/poll-server/internal/metrics"
)

const (
	commandTimeout    = 5 * time.Second // Actor command timeout
	stopTimeout       = 10 * time.Second
	commandBufferSize = 256
)

// client is the registry's view of one live WebSocket connection. Only the
// registry's run goroutine touches it after registration.
type client struct {
	id          uuid.UUID
	connection  *websocket.Conn
	writer      *clientWriter
	pollID      uuid.UUID // uuid.Nil when unsubscribed
	lastSeq     int64     // sequence of the last poll state enqueued for pollID
	connectedAt time.Time
}

// registryCmd is the command interface for the Registry actor.
type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type registerCmd struct {
	baseRegistryCmd
	connectionID uuid.UUID
	connection   *websocket.Conn
	errorChannel chan error
}

type deregisterCmd struct {
	baseRegistryCmd
	connectionID uuid.UUID
}

type subscribeCmd struct {
	baseRegistryCmd
	connectionID uuid.UUID
	pollID       uuid.UUID
	snapshot     []byte // poll_state payload, nil when the poll has none
	sequence     int64
}

type unsubscribeCmd struct {
	baseRegistryCmd
	connectionID uuid.UUID
}

type sendCmd struct {
	baseRegistryCmd
	connectionID uuid.UUID
	payload      []byte
}

type broadcastStateCmd struct {
	baseRegistryCmd
	pollID   uuid.UUID
	sequence int64
	payload  []byte
}

type broadcastAllCmd struct {
	baseRegistryCmd
	payload []byte
}

type subscribersOfCmd struct {
	baseRegistryCmd
	pollID       uuid.UUID
	replyChannel chan []uuid.UUID
}

type countCmd struct {
	baseRegistryCmd
	replyChannel chan int
}

type countForPollCmd struct {
	baseRegistryCmd
	pollID       uuid.UUID
	replyChannel chan int
}

type stopCmd struct {
	baseRegistryCmd
}

// Registry tracks every live WebSocket connection and which poll each one
// watches. A single run goroutine owns all maps; public methods post
// commands on a buffered channel, so registration, subscription changes,
// and fan-out never race.
//
// Per-connection ordering: poll state payloads for one poll are enqueued to
// a connection's writer in sequence order, and payloads whose sequence is
// not newer than the last enqueued one are dropped. A subscription snapshot
// and its sequence floor are installed in one actor step, so the snapshot
// can never be followed by an older state.
type Registry struct {
	cmdCh          chan registryCmd
	clock          clockwork.Clock
	clients        map[uuid.UUID]*client
	subscribers    map[uuid.UUID]map[uuid.UUID]*client // pollID -> connectionID -> client
	maxConnections int
	done           chan struct{}
	stopTimeout    time.Duration
}

// NewRegistry creates a registry and starts its actor goroutine.
// maxConnections caps concurrent connections across all polls.
func NewRegistry(clock clockwork.Clock, maxConnections int) *Registry {
	r := &Registry{
		cmdCh:          make(chan registryCmd, commandBufferSize),
		clock:          clock,
		clients:        make(map[uuid.UUID]*client),
		subscribers:    make(map[uuid.UUID]map[uuid.UUID]*client),
		maxConnections: maxConnections,
		done:           make(chan struct{}),
		stopTimeout:    stopTimeout,
	}
	go r.run()
	return r
}

// Register adds a connection with no subscription and returns its registry
// id. The connection is closed and an error returned when the connection
// cap is reached.
func (r *Registry) Register(conn *websocket.Conn) (uuid.UUID, error) {
	id := uuid.New()
	errCh := make(chan error, 1)
	r.cmdCh <- registerCmd{connectionID: id, connection: conn, errorChannel: errCh}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			return uuid.Nil, err
		}
		return id, nil
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Subscribe points the connection at pollID, replacing any existing
// subscription. When snapshot is non-nil its poll_state payload is enqueued
// and the connection's sequence floor set to the snapshot's sequence in the
// same actor step; later broadcasts at or below that sequence are dropped.
func (r *Registry) Subscribe(connectionID, pollID uuid.UUID, snapshot *domain.Poll) {
	cmd := subscribeCmd{connectionID: connectionID, pollID: pollID}
	if snapshot != nil {
		payload, err := PollStateFromPoll(snapshot)
		if err != nil {
			slog.Error("Failed to marshal subscription snapshot", "poll_id", pollID.String(), "error", err)
		} else {
			cmd.snapshot = payload
			cmd.sequence = snapshot.Sequence
		}
	}
	r.cmdCh <- cmd
}

// Unsubscribe clears the connection's subscription, if any.
func (r *Registry) Unsubscribe(connectionID uuid.UUID) {
	r.cmdCh <- unsubscribeCmd{connectionID: connectionID}
}

// Deregister removes the connection and stops its writer. Safe to call from
// any path and any number of times; disconnects are detected from read
// errors, write errors, and explicit closes alike.
func (r *Registry) Deregister(connectionID uuid.UUID) {
	r.cmdCh <- deregisterCmd{connectionID: connectionID}
}

// Send enqueues a personal payload (pong, error) for one connection. Lossy:
// a full writer buffer drops the payload rather than blocking.
func (r *Registry) Send(connectionID uuid.UUID, payload []byte) {
	r.cmdCh <- sendCmd{connectionID: connectionID, payload: payload}
}

// BroadcastState fans a poll_state payload out to every subscriber of
// pollID. Connections that already hold a state at or past sequence are
// skipped; a connection with a full writer buffer is evicted and never
// blocks delivery to the rest.
func (r *Registry) BroadcastState(pollID uuid.UUID, sequence int64, payload []byte) {
	r.cmdCh <- broadcastStateCmd{pollID: pollID, sequence: sequence, payload: payload}
}

// BroadcastAll fans a payload out to every connection regardless of
// subscription (new_poll, poll_deleted).
func (r *Registry) BroadcastAll(payload []byte) {
	r.cmdCh <- broadcastAllCmd{payload: payload}
}

// SubscribersOf returns a consistent snapshot of the connection ids
// subscribed to pollID. Returns nil if the command times out.
func (r *Registry) SubscribersOf(pollID uuid.UUID) []uuid.UUID {
	replyCh := make(chan []uuid.UUID, 1)
	r.cmdCh <- subscribersOfCmd{pollID: pollID, replyChannel: replyCh}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case ids := <-replyCh:
		return ids
	case <-timer.Chan():
		slog.Warn("SubscribersOf timed out", "timeout", commandTimeout)
		return nil
	}
}

// Count returns the number of live connections, or -1 on timeout.
func (r *Registry) Count() int {
	replyCh := make(chan int, 1)
	r.cmdCh <- countCmd{replyChannel: replyCh}
	return r.awaitCount(replyCh, "Count")
}

// CountForPoll returns the number of connections subscribed to pollID, or
// -1 on timeout.
func (r *Registry) CountForPoll(pollID uuid.UUID) int {
	replyCh := make(chan int, 1)
	r.cmdCh <- countForPollCmd{pollID: pollID, replyChannel: replyCh}
	return r.awaitCount(replyCh, "CountForPoll")
}

func (r *Registry) awaitCount(replyCh chan int, op string) int {
	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("Registry count query timed out", "operation", op, "timeout", commandTimeout)
		return -1
	}
}

// Shutdown closes every connection with a close frame and stops the actor.
// Blocks until the actor goroutine has exited or the stop timeout passes.
func (r *Registry) Shutdown() {
	r.cmdCh <- stopCmd{}

	timeout := r.clock.NewTimer(r.stopTimeout)
	defer timeout.Stop()

	select {
	case <-r.done:
		slog.Info("Registry stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Registry stop timeout exceeded", "timeout", r.stopTimeout)
	}
}

func (r *Registry) run() {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Registry panic recovered", "panic", rec)
			metrics.RegistryPanicsTotal.Inc()
			r.closeAll("registry failure")
		}
	}()
	defer close(r.done)

	// Track command channel depth every second
	depthTicker := r.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(r.cmdCh)
			metrics.RegistryCommandChannelDepth.Set(float64(depth))
			if depth > commandBufferSize*4/5 {
				slog.Warn("Registry command channel near capacity", "depth", depth, "capacity", cap(r.cmdCh))
			}

		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				r.handleRegister(c)
			case deregisterCmd:
				r.handleDeregister(c.connectionID)
			case subscribeCmd:
				r.handleSubscribe(c)
			case unsubscribeCmd:
				r.handleUnsubscribe(c)
			case sendCmd:
				r.handleSend(c)
			case broadcastStateCmd:
				r.handleBroadcastState(c)
			case broadcastAllCmd:
				r.handleBroadcastAll(c)
			case subscribersOfCmd:
				c.replyChannel <- r.subscriberIDs(c.pollID)
			case countCmd:
				c.replyChannel <- len(r.clients)
			case countForPollCmd:
				c.replyChannel <- len(r.subscribers[c.pollID])
			case stopCmd:
				r.handleStop()
				return
			default:
				slog.Warn("Registry received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (r *Registry) handleRegister(c registerCmd) {
	if len(r.clients) >= r.maxConnections {
		slog.Warn("Rejecting connection: max connections reached", "max_connections", r.maxConnections)
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		_ = c.connection.Close()
		c.errorChannel <- fmt.Errorf("max connections (%d) reached", r.maxConnections)
		return
	}

	r.clients[c.connectionID] = &client{
		id:          c.connectionID,
		connection:  c.connection,
		writer:      newClientWriter(c.connection, r.clock),
		pollID:      uuid.Nil,
		connectedAt: r.clock.Now(),
	}

	metrics.WebSocketConnectionsCurrent.Set(float64(len(r.clients)))
	metrics.WebSocketConnectionsTotal.WithLabelValues("accepted").Inc()

	slog.Debug("Connection registered", "connection_id", c.connectionID.String(), "total_connections", len(r.clients))
	c.errorChannel <- nil
}

func (r *Registry) handleDeregister(connectionID uuid.UUID) {
	cl, ok := r.clients[connectionID]
	if !ok {
		return
	}

	previous := cl.pollID
	if previous != uuid.Nil {
		r.removeSubscription(cl)
	}

	cl.writer.stop()
	delete(r.clients, connectionID)

	metrics.WebSocketConnectionsCurrent.Set(float64(len(r.clients)))
	metrics.WebSocketConnectionDuration.Observe(r.clock.Since(cl.connectedAt).Seconds())

	if previous != uuid.Nil {
		r.notifyPollCount(previous)
	}

	slog.Debug("Connection deregistered", "connection_id", connectionID.String(), "remaining_connections", len(r.clients))
}

func (r *Registry) handleSubscribe(c subscribeCmd) {
	cl, ok := r.clients[c.connectionID]
	if !ok {
		return
	}

	previous := cl.pollID
	if previous != uuid.Nil {
		r.removeSubscription(cl)
	}

	cl.pollID = c.pollID
	cl.lastSeq = c.sequence
	subs, ok := r.subscribers[c.pollID]
	if !ok {
		subs = make(map[uuid.UUID]*client)
		r.subscribers[c.pollID] = subs
	}
	subs[cl.id] = cl
	metrics.RegistrySubscriptionsCurrent.Inc()

	if c.snapshot != nil {
		if !r.enqueue(cl, c.snapshot) {
			r.evict(cl.id, c.pollID)
			return
		}
	}

	if previous != uuid.Nil && previous != c.pollID {
		r.notifyPollCount(previous)
	}
	r.notifyPollCount(c.pollID)

	slog.Debug("Connection subscribed", "connection_id", c.connectionID.String(), "poll_id", c.pollID.String())
}

func (r *Registry) handleUnsubscribe(c unsubscribeCmd) {
	cl, ok := r.clients[c.connectionID]
	if !ok || cl.pollID == uuid.Nil {
		return
	}

	previous := cl.pollID
	r.removeSubscription(cl)
	r.notifyPollCount(previous)

	slog.Debug("Connection unsubscribed", "connection_id", c.connectionID.String(), "poll_id", previous.String())
}

func (r *Registry) handleSend(c sendCmd) {
	cl, ok := r.clients[c.connectionID]
	if !ok {
		return
	}
	// Personal messages are lossy; a full buffer drops rather than evicts.
	select {
	case cl.writer.sendChannel <- c.payload:
	default:
	}
}

func (r *Registry) handleBroadcastState(c broadcastStateCmd) {
	subs := r.subscribers[c.pollID]
	if len(subs) == 0 {
		return
	}
	metrics.BroadcastFanoutSize.Observe(float64(len(subs)))

	var slow []uuid.UUID
	for id, cl := range subs {
		if cl.lastSeq >= c.sequence {
			metrics.BroadcastStaleDropped.Inc()
			continue
		}
		select {
		case cl.writer.sendChannel <- c.payload:
			cl.lastSeq = c.sequence
		default:
			slow = append(slow, id)
		}
	}

	for _, id := range slow {
		r.evict(id, c.pollID)
	}
}

func (r *Registry) handleBroadcastAll(c broadcastAllCmd) {
	if len(r.clients) == 0 {
		return
	}
	metrics.BroadcastFanoutSize.Observe(float64(len(r.clients)))

	var slow []uuid.UUID
	for id, cl := range r.clients {
		select {
		case cl.writer.sendChannel <- c.payload:
		default:
			slow = append(slow, id)
		}
	}

	for _, id := range slow {
		r.evict(id, uuid.Nil)
	}
}

func (r *Registry) handleStop() {
	slog.Info("Registry shutting down", "connections", len(r.clients))
	r.closeAll("server shutting down")
	slog.Info("Registry shutdown complete")
}

// evict deregisters a connection whose writer buffer stayed full.
func (r *Registry) evict(connectionID, pollID uuid.UUID) {
	if pollID != uuid.Nil {
		slog.Warn("Evicting slow subscriber", "connection_id", connectionID.String(), "poll_id", pollID.String())
	} else {
		slog.Warn("Evicting slow connection", "connection_id", connectionID.String())
	}
	metrics.RegistrySlowClientsEvicted.Inc()
	r.handleDeregister(connectionID)
}

// enqueue hands a payload to the client's writer without blocking the actor.
func (r *Registry) enqueue(cl *client, payload []byte) bool {
	select {
	case cl.writer.sendChannel <- payload:
		return true
	default:
		return false
	}
}

// notifyPollCount pushes the current subscriber count to every subscriber of
// pollID. Lossy on full buffers; counts are advisory.
func (r *Registry) notifyPollCount(pollID uuid.UUID) {
	subs := r.subscribers[pollID]
	payload, err := ConnectionCountPayload(pollID, len(subs))
	if err != nil {
		slog.Error("Failed to marshal connection count", "poll_id", pollID.String(), "error", err)
		return
	}
	for _, cl := range subs {
		r.enqueue(cl, payload)
	}
}

// removeSubscription detaches the client from its current poll. The caller
// decides whether to notify the remaining subscribers.
func (r *Registry) removeSubscription(cl *client) {
	subs, ok := r.subscribers[cl.pollID]
	if ok {
		delete(subs, cl.id)
		if len(subs) == 0 {
			delete(r.subscribers, cl.pollID)
		}
		metrics.RegistrySubscriptionsCurrent.Dec()
	}
	cl.pollID = uuid.Nil
	cl.lastSeq = 0
}

func (r *Registry) subscriberIDs(pollID uuid.UUID) []uuid.UUID {
	subs := r.subscribers[pollID]
	ids := make([]uuid.UUID, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	return ids
}

// closeAll closes every connection with the given reason. Used during
// graceful shutdown and panic recovery.
func (r *Registry) closeAll(reason string) {
	for id, cl := range r.clients {
		cl.writer.stopGraceful(reason)
		metrics.WebSocketConnectionDuration.Observe(r.clock.Since(cl.connectedAt).Seconds())
		delete(r.clients, id)
	}
	for pollID := range r.subscribers {
		delete(r.subscribers, pollID)
	}
	metrics.WebSocketConnectionsCurrent.Set(0)
	metrics.RegistrySubscriptionsCurrent.Set(0)
}
