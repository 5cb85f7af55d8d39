package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PulseChat/logger"
	"PulseChat/tools/errs"
	"PulseChat/tools/ids"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 25 * time.Second
)

// Client is one WebSocket session. The transport layer owns the socket;
// everything else holds the *Client by reference and talks to it through
// the send queue, which a single writer goroutine drains.
type Client struct {
	ConnID string
	WS     *websocket.Conn
	Send   chan []byte
	Remote string

	mu       sync.RWMutex
	userID   string
	username string

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(ws *websocket.Conn, sendQueueSize int) *Client {
	c := &Client{
		ConnID: ids.GenerateString(),
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
	if ws != nil {
		if ra := ws.RemoteAddr(); ra != nil {
			c.Remote = ra.String()
		}
	}
	return c
}

// BindIdentity attaches the authenticated identity. At most one identity
// per connection; a second bind overwrites the first.
func (c *Client) BindIdentity(userID, username string) {
	c.mu.Lock()
	c.userID = userID
	c.username = username
	c.mu.Unlock()
}

func (c *Client) Identity() (userID, username string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.username, c.userID != ""
}

func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// Enqueue hands a frame to the writer goroutine. It never blocks: a full
// queue means a slow client and the frame is dropped with an error the
// caller can count or log.
func (c *Client) Enqueue(data []byte) error {
	select {
	case <-c.done:
		return errs.New("connection closed")
	default:
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return errs.New("send queue full")
	}
}

// CloseSend stops the writer goroutine. Safe to call more than once.
func (c *Client) CloseSend() {
	c.closeOnce.Do(func() { close(c.done) })
}

// WritePump drains the send queue onto the socket. One goroutine per
// connection; gorilla/websocket forbids concurrent writers.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if c.WS != nil {
			_ = c.WS.Close()
		}
	}()

	for {
		select {
		case <-c.done:
			if c.WS != nil {
				_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.WS.WriteMessage(websocket.CloseMessage, []byte{})
			}
			return
		case data := <-c.Send:
			if c.WS == nil {
				continue
			}
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Infof("[WS] write failed conn=%s err=%v", c.ConnID, err)
				return
			}
		case <-ticker.C:
			if c.WS == nil {
				continue
			}
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
