package sink

import (
	"context"
	"encoding/binary"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/breeze-rmm/scrap/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	clientBuffer   = 2

	// FrameHeaderSize prefixes every binary frame message.
	FrameHeaderSize = 24
)

// Hello is the text message sent to a client right after it connects.
type Hello struct {
	Type    string              `json:"type"`
	Display session.DisplayInfo `json:"display"`
}

// Broadcaster fans frames out to WebSocket clients. Each binary message is
// a little-endian header (width, rows, stride, rotation as uint32, then seq
// as uint64) followed by the BGRA pixels. Slow clients drop frames rather
// than stall capture.
type Broadcaster struct {
	upgrader websocket.Upgrader
	display  func() session.DisplayInfo

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool

	dropped atomic.Uint64
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) stop() {
	c.once.Do(func() { close(c.send) })
}

// NewBroadcaster returns a Broadcaster; display supplies the Hello payload.
func NewBroadcaster(display func() session.DisplayInfo) *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
		display: display,
		clients: make(map[*wsClient]struct{}),
	}
}

func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Hello{Type: "hello", Display: b.display()}); err != nil {
		conn.Close()
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	log.Info("viewer connected", "remote", r.RemoteAddr)

	go b.writePump(c)
	b.readPump(c)
}

// readPump discards client input and detects disconnects.
func (b *Broadcaster) readPump(c *wsClient) {
	defer b.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("viewer read error", "error", err)
			}
			return
		}
	}
}

func (b *Broadcaster) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				log.Debug("viewer write failed", "error", err)
				b.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				b.remove(c)
				return
			}
		}
	}
}

func (b *Broadcaster) remove(c *wsClient) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.stop()
		log.Info("viewer disconnected")
	}
	b.mu.Unlock()
}

// Consume encodes f once and queues it to every client.
func (b *Broadcaster) Consume(_ context.Context, f *session.Frame) error {
	msg := EncodeFrame(f)
	f.Release()

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Clients is the number of connected viewers.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Dropped counts frames skipped for slow viewers.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

// Close disconnects all viewers and refuses new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for c := range b.clients {
		delete(b.clients, c)
		c.stop()
	}
}

// EncodeFrame builds the binary message for f.
func EncodeFrame(f *session.Frame) []byte {
	w, _ := nativeSize(f)
	msg := make([]byte, FrameHeaderSize+len(f.Pix))
	binary.LittleEndian.PutUint32(msg[0:], uint32(w))
	binary.LittleEndian.PutUint32(msg[4:], uint32(f.Rows))
	binary.LittleEndian.PutUint32(msg[8:], uint32(f.Stride))
	binary.LittleEndian.PutUint32(msg[12:], uint32(f.Display.Rotation))
	binary.LittleEndian.PutUint64(msg[16:], f.Seq)
	copy(msg[FrameHeaderSize:], f.Pix)
	return msg
}

// FrameHeader is the decoded prefix of a binary frame message.
type FrameHeader struct {
	Width, Rows, Stride, Rotation uint32
	Seq                           uint64
}

// DecodeFrameHeader parses the prefix written by EncodeFrame.
func DecodeFrameHeader(msg []byte) (FrameHeader, []byte, bool) {
	if len(msg) < FrameHeaderSize {
		return FrameHeader{}, nil, false
	}
	return FrameHeader{
		Width:    binary.LittleEndian.Uint32(msg[0:]),
		Rows:     binary.LittleEndian.Uint32(msg[4:]),
		Stride:   binary.LittleEndian.Uint32(msg[8:]),
		Rotation: binary.LittleEndian.Uint32(msg[12:]),
		Seq:      binary.LittleEndian.Uint64(msg[16:]),
	}, msg[FrameHeaderSize:], true
}
