package gateway

import (
	"encoding/json"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/shok8899/hq11/cmd/relay/internal/hub"
	"github.com/shok8899/hq11/cmd/relay/internal/outbox"
	"github.com/shok8899/hq11/cmd/relay/internal/protocol"
	"github.com/shok8899/hq11/pkg/models"
)

const (
	maxMessageSize = 512 * 1024
	controlBuffer  = 16
)

// Attacher connects subscribers to the price stream.
type Attacher interface {
	Attach(sub hub.Subscriber) bool
	Detach(sub hub.Subscriber)
}

// Querier answers client commands.
type Querier interface {
	ListSymbols() []string
	GetPrices(symbols []string) []models.PriceRecord
}

// Client is one push-socket connection. Price records queue in its outbox and
// command replies in a small control channel; writePump is the only writer.
type Client struct {
	conn    net.Conn
	id      string
	box     *outbox.Outbox
	control chan []byte
	relay   Attacher
	query   Querier
	logger  *zap.Logger

	done     chan struct{}
	doneOnce sync.Once

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(conn net.Conn, box *outbox.Outbox, relay Attacher, query Querier, logger *zap.Logger) *Client {
	return &Client{
		conn:       conn,
		id:         conn.RemoteAddr().String(),
		box:        box,
		control:    make(chan []byte, controlBuffer),
		relay:      relay,
		query:      query,
		logger:     logger,
		done:       make(chan struct{}),
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

// Start attaches the client to the stream and runs its pumps.
func (c *Client) Start() {
	c.relay.Attach(c)
	go c.writePump()
	go c.readPump()
}

func (c *Client) ID() string                          { return c.id }
func (c *Client) Push(rec models.PriceRecord) error   { return c.box.Push(rec) }
func (c *Client) Prime(snapshot []models.PriceRecord) { c.box.Prime(snapshot) }
func (c *Client) Close()                              { c.box.Close() }

// Done is closed once the connection has been torn down.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) sendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.control <- b:
	default:
		c.logger.Warn("Dropping command reply, control buffer full", zap.String("id", c.id))
	}
}

func (c *Client) readPump() {
	defer func() {
		c.relay.Detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			break
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.String("id", c.id), zap.Int64("size", header.Length))
			break
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)", zap.String("id", c.id))
			break
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			break
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPong:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		case ws.OpText:
			c.handleCommand(payload)
		}
	}
}

func (c *Client) handleCommand(payload []byte) {
	var req protocol.WSRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendJSON(protocol.WSResponse{Type: protocol.TypeError, Message: "Invalid JSON"})
		return
	}

	switch req.Action {
	case protocol.ActionSymbols:
		c.sendJSON(protocol.WSResponse{Type: protocol.TypeSymbols, ID: req.ID, Data: c.query.ListSymbols()})

	case protocol.ActionPrice:
		syms := make([]string, 0, len(req.Payload.Symbols))
		for _, s := range req.Payload.Symbols {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				syms = append(syms, s)
			}
		}
		if len(syms) == 0 {
			c.sendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: req.ID, Message: "No symbols requested"})
			return
		}
		c.sendJSON(protocol.WSResponse{Type: protocol.TypePrice, ID: req.ID, Data: c.query.GetPrices(syms)})

	default:
		c.sendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: req.ID, Message: "Unknown action"})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.relay.Detach(c)
		c.conn.Close()
		c.finish()
	}()

	for {
		select {
		case <-c.box.Ready():
			if c.box.Closed() {
				c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
				c.conn.Write(ws.CompiledClose)
				return
			}
			if err := c.flush(); err != nil {
				c.logger.Debug("Write failed", zap.String("id", c.id), zap.Error(err))
				return
			}

		case msg := <-c.control:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

// flush writes every queued record, one text frame each.
func (c *Client) flush() error {
	for {
		rec, ok := c.box.Pop()
		if !ok {
			return nil
		}
		b, err := json.Marshal(rec)
		if err != nil {
			c.logger.Error("Failed to marshal record", zap.String("symbol", rec.Symbol), zap.Error(err))
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		if err := wsutil.WriteServerText(c.conn, b); err != nil {
			return err
		}
	}
}
