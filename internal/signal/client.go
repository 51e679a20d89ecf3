package signal

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Subprotocol is the WebSocket subprotocol spoken with the signaling server.
const Subprotocol = "webrtc-signaling"

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectBackoff     = 2 * time.Second
)

// State is the connection lifecycle of the client.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateCallback reports connection state changes.
type StateCallback func(connected bool, message string)

// MessageCallback delivers one parsed inbound frame. The raw JSON is passed
// through so callers can pull payload fields themselves.
type MessageCallback func(t Type, raw []byte)

type outbound struct {
	t  Type
	to string
	// payload fields; roomId/from/to are stamped at send time so a late
	// Register still applies to everything already queued.
	sdp       string
	sdpMid    string
	sdpMLine  *int
	candidate string
	clientID  string
}

// Client is a reconnecting WebSocket signaling client. Connect returns
// immediately; all I/O happens on a background loop and callbacks fire on
// that loop. Callers must not re-enter Close from within a callback.
type Client struct {
	serverURL string

	maxReconnectAttempts int
	reconnectBackoff     time.Duration

	queueMu sync.Mutex
	queue   []outbound
	kick    chan struct{}

	infoMu   sync.Mutex
	roomID   string
	clientID string

	cbMu      sync.Mutex
	onState   StateCallback
	onMessage MessageCallback

	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewClient creates an unconnected client.
func NewClient() *Client {
	return &Client{
		maxReconnectAttempts: defaultMaxReconnectAttempts,
		reconnectBackoff:     defaultReconnectBackoff,
		kick:                 make(chan struct{}, 1),
		done:                 make(chan struct{}),
	}
}

// OnState sets the connection state callback.
func (c *Client) OnState(cb StateCallback) {
	c.cbMu.Lock()
	c.onState = cb
	c.cbMu.Unlock()
}

// OnMessage sets the inbound message callback.
func (c *Client) OnMessage(cb MessageCallback) {
	c.cbMu.Lock()
	c.onMessage = cb
	c.cbMu.Unlock()
}

// Connect validates the server URL and starts the background I/O loop.
// The connection itself completes asynchronously; failures are reported
// through the state callback.
func (c *Client) Connect(rawURL string) error {
	normalized, err := parseServerURL(rawURL)
	if err != nil {
		return err
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return fmt.Errorf("signal: already connected or connecting")
	}
	c.serverURL = normalized

	c.wg.Add(1)
	go c.run()
	return nil
}

// parseServerURL accepts ws[s]://host[:port][/path] and fills in the default
// port and root path.
func parseServerURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("signal: parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("signal: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("signal: missing host in %q", rawURL)
	}
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "wss" {
			port = "443"
		}
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Register records the session identity. Before the socket is established
// this only caches; the REGISTER frame itself goes out once the connection
// reaches the established state. While connected it also enqueues a REGISTER.
func (c *Client) Register(roomID, clientID string) {
	c.infoMu.Lock()
	c.roomID = roomID
	if clientID != "" {
		c.clientID = clientID
	} else if c.clientID == "" {
		c.clientID = generateClientID()
	}
	id := c.clientID
	c.infoMu.Unlock()

	if c.State() == StateConnected {
		c.enqueue(outbound{t: TypeRegister, clientID: id})
	}
}

// SendOffer enqueues an OFFER targeted at a peer.
func (c *Client) SendOffer(sdp, to string) {
	c.enqueue(outbound{t: TypeOffer, sdp: sdp, to: to})
}

// SendAnswer enqueues an ANSWER targeted at a peer.
func (c *Client) SendAnswer(sdp, to string) {
	c.enqueue(outbound{t: TypeAnswer, sdp: sdp, to: to})
}

// SendCandidate enqueues a local ICE candidate targeted at a peer.
func (c *Client) SendCandidate(sdpMid string, sdpMLineIndex int, candidate, to string) {
	idx := sdpMLineIndex
	c.enqueue(outbound{t: TypeCandidate, sdpMid: sdpMid, sdpMLine: &idx, candidate: candidate, to: to})
}

// SendLeave enqueues a LEAVE for the current room.
func (c *Client) SendLeave() {
	c.enqueue(outbound{t: TypeLeave})
}

// Flush waits until the send queue has drained or the timeout elapses, so a
// final frame such as LEAVE has a chance to reach the wire before Close.
// Returns early when the socket is gone; the queue cannot drain then.
func (c *Client) Flush(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.queueMu.Lock()
		pending := len(c.queue)
		c.queueMu.Unlock()
		if pending == 0 {
			// One more tick lets an in-flight write finish.
			time.Sleep(5 * time.Millisecond)
			return
		}
		if !c.IsConnected() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close requests exit, joins the I/O loop and drops the send queue.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()
		c.wg.Wait()

		c.queueMu.Lock()
		c.queue = nil
		c.queueMu.Unlock()
		c.state.Store(int32(StateClosed))
	})
}

// IsConnected reports whether the socket is established.
func (c *Client) IsConnected() bool { return c.State() == StateConnected }

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// RoomID returns the registered room id.
func (c *Client) RoomID() string {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	return c.roomID
}

// ClientID returns the current client id. It may change once if the server
// replies with an authoritative id on register success.
func (c *Client) ClientID() string {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	return c.clientID
}

func (c *Client) enqueue(msg outbound) {
	c.queueMu.Lock()
	c.queue = append(c.queue, msg)
	c.queueMu.Unlock()
	c.kickWriter()
}

func (c *Client) enqueueFront(msg outbound) {
	c.queueMu.Lock()
	c.queue = append([]outbound{msg}, c.queue...)
	c.queueMu.Unlock()
	c.kickWriter()
}

func (c *Client) dequeue() (outbound, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if len(c.queue) == 0 {
		return outbound{}, false
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	return msg, true
}

func (c *Client) kickWriter() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Client) run() {
	defer c.wg.Done()

	dialer := &websocket.Dialer{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: 10 * time.Second,
	}

	attempts := 0
	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, _, err := dialer.Dial(c.serverURL, nil)
		if err != nil {
			attempts++
			log.Printf("[signal] connect failed (%d/%d): %v", attempts, c.maxReconnectAttempts, err)
			c.state.Store(int32(StateDisconnected))
			if attempts >= c.maxReconnectAttempts {
				log.Printf("[signal] max reconnect attempts reached")
				c.notifyState(false, "max reconnect attempts reached")
				return
			}
			c.notifyState(false, fmt.Sprintf("connection error: %v", err))
			select {
			case <-time.After(c.reconnectBackoff):
			case <-c.done:
				return
			}
			c.state.Store(int32(StateConnecting))
			continue
		}

		attempts = 0
		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
		c.state.Store(int32(StateConnected))
		c.notifyState(true, "connected to signaling server")

		// Auto-register ahead of anything already queued.
		c.infoMu.Lock()
		roomID, clientID := c.roomID, c.clientID
		c.infoMu.Unlock()
		if roomID != "" {
			c.enqueueFront(outbound{t: TypeRegister, clientID: clientID})
		}

		stop := make(chan struct{})
		writerDone := make(chan struct{})
		go c.writeLoop(conn, stop, writerDone)
		c.kickWriter()

		c.readLoop(conn)

		close(stop)
		conn.Close()
		<-writerDone
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()

		select {
		case <-c.done:
			return
		default:
		}

		c.state.Store(int32(StateDisconnected))
		c.notifyState(false, "connection closed")
		select {
		case <-time.After(c.reconnectBackoff):
		case <-c.done:
			return
		}
		c.state.Store(int32(StateConnecting))
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("[signal] read error: %v", err)
			}
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			log.Printf("[signal] dropping malformed frame: %v", err)
			continue
		}
		if env.Type == "" {
			log.Printf("[signal] dropping frame without type")
			continue
		}

		t := ParseType(env.Type)

		// The server may assign an authoritative client id on register.
		if env.Type == "register_success" && env.ClientID != "" {
			c.infoMu.Lock()
			if env.ClientID != c.clientID {
				log.Printf("[signal] server assigned client id %s", env.ClientID)
				c.clientID = env.ClientID
			}
			c.infoMu.Unlock()
		}

		if t == TypeError {
			msg := env.Message
			if msg == "" {
				msg = "unknown error"
			}
			log.Printf("[signal] server error: %s", msg)
		}

		c.cbMu.Lock()
		cb := c.onMessage
		c.cbMu.Unlock()
		if cb != nil {
			cb(t, data)
		}
	}
}

func (c *Client) writeLoop(conn *websocket.Conn, stop, writerDone chan struct{}) {
	defer close(writerDone)
	for {
		select {
		case <-stop:
			return
		case <-c.kick:
		}

		for {
			msg, ok := c.dequeue()
			if !ok {
				break
			}
			data, err := json.Marshal(c.stamp(msg))
			if err != nil {
				log.Printf("[signal] marshal error: %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[signal] write error, re-queueing: %v", err)
				c.enqueueFront(msg)
				conn.Close()
				return
			}
		}
	}
}

// stamp builds the wire envelope at send time so the envelope always carries
// the identity as of transmission.
func (c *Client) stamp(msg outbound) Envelope {
	c.infoMu.Lock()
	roomID, from := c.roomID, c.clientID
	c.infoMu.Unlock()
	return Envelope{
		Type:          msg.t.String(),
		RoomID:        roomID,
		From:          from,
		To:            msg.to,
		SDP:           msg.sdp,
		SDPMid:        msg.sdpMid,
		SDPMLineIndex: msg.sdpMLine,
		Candidate:     msg.candidate,
		ClientID:      msg.clientID,
	}
}

func (c *Client) notifyState(connected bool, message string) {
	c.cbMu.Lock()
	cb := c.onState
	c.cbMu.Unlock()
	if cb != nil {
		cb(connected, message)
	}
}

// generateClientID returns an 8-char random alphanumeric id.
func generateClientID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
