package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type HandlerFunc func(data []byte) error

func Json[T any](j func(x T) error) HandlerFunc {
	return func(data []byte) error {
		var t T
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		return j(t)
	}
}

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	Protocols   []string
	OnText      func(data []byte) error
	OnBinary    func(data []byte) error
	// OnClose runs once when the read loop ends, whether by remote close
	// or read failure.
	OnClose func(err error)
	Logger  *slog.Logger
}

type Client struct {
	conn     net.Conn
	out      chan wsutil.Message
	done     chan struct{}
	doneOnce sync.Once
	logger   *slog.Logger
}

func (c *Client) setDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed when the connection has fully shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) WriteText(data []byte) {
	c.write(ws.OpText, data)
}

func (c *Client) WriteBinary(data []byte) {
	c.write(ws.OpBinary, data)
}

func (c *Client) Ping(data []byte) {
	c.write(ws.OpPing, data)
}

func (c *Client) SendClose(code ws.StatusCode, reason string) {
	c.write(ws.OpClose, ws.NewCloseFrameBody(code, reason))
}

// Close sends a close frame and waits for the read side to drain, or for
// ctx to expire, in which case the connection is torn down hard.
func (c *Client) Close(ctx context.Context) error {
	c.SendClose(ws.StatusNormalClosure, "closing")
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.setDone()
		_ = c.conn.Close()
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

func (c *Client) write(opcode ws.OpCode, data []byte) {
	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
	case <-c.done:
	}
}

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.String("url", config.URL))

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	if len(config.Protocols) > 0 {
		d.Protocols = config.Protocols
	}
	conn, buf, hs, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	if buf != nil {
		defer ws.PutReader(buf)
	}
	logger.Debug("websocket handshake complete", slog.Any("handshake", hs))

	var (
		input  = make(chan wsutil.Message, 1000)
		output = make(chan wsutil.Message, 1000)
	)

	client := &Client{
		conn:   conn,
		out:    output,
		done:   make(chan struct{}),
		logger: logger,
	}

	onTextFunc := config.OnText
	if onTextFunc == nil {
		onTextFunc = func([]byte) error { return nil }
	}
	onBinaryFunc := config.OnBinary
	if onBinaryFunc == nil {
		onBinaryFunc = func([]byte) error { return nil }
	}

	var closeOnce sync.Once
	notifyClose := func(err error) {
		closeOnce.Do(func() {
			if config.OnClose != nil {
				config.OnClose(err)
			}
		})
	}

	// wire -> input channel
	go func() {
		defer client.setDone()
		for {
			messages, err := wsutil.ReadServerMessage(conn, nil)
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
					logger.Error("ws read failed", slog.Any("err", err))
					notifyClose(err)
					return
				}
				notifyClose(nil)
				return
			}
			for _, msg := range messages {
				input <- msg
			}
		}
	}()

	// output channel -> wire
	go func() {
		for {
			select {
			case <-client.done:
				return
			case msg := <-output:
				if err := wsutil.WriteClientMessage(conn, msg.OpCode, msg.Payload); err != nil {
					logger.Error("ws write failed", slog.Any("err", err))
					client.setDone()
					return
				}
			}
		}
	}()

	// input channel processing
	go func() {
		defer conn.Close()
		for {
			select {
			case <-client.done:
				return
			case msg := <-input:
				if ws.OpCode.IsControl(msg.OpCode) {
					if err := wsutil.HandleServerControlMessage(conn, msg); err != nil {
						logger.Error("control message handling failed", slog.Any("err", err))
					}
					if msg.OpCode == ws.OpClose {
						logger.Debug("rcv: close", slog.String("reason", string(msg.Payload)))
						notifyClose(nil)
						client.setDone()
					}
					continue
				}

				switch msg.OpCode {
				case ws.OpText:
					if err := onTextFunc(msg.Payload); err != nil {
						logger.Error("text handler failed", slog.Any("err", err))
					}
				case ws.OpBinary:
					if err := onBinaryFunc(msg.Payload); err != nil {
						logger.Error("binary handler failed", slog.Any("err", err))
					}
				}
			}
		}
	}()

	return client, nil
}
