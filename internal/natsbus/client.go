package natsbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/nats-io/nats.go"
)

const encodingHeader = "Swarm-Encoding"

type Client struct {
	conn *nats.Conn

	// compressAbove is the payload size in bytes beyond which publishes are
	// zstd-compressed. Zero disables compression.
	compressAbove int
	encoder       *zstd.Encoder
	decoder       *zstd.Decoder
}

func NewClient(bus *Bus) (*Client, error) {
	return NewClientFromURL(bus.ClientURL(), bus.cfg.CompressAbove)
}

func NewClientFromURL(url string, compressAbove int) (*Client, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &Client{
		conn:          conn,
		compressAbove: compressAbove,
		encoder:       enc,
		decoder:       dec,
	}, nil
}

func (c *Client) Publish(subject string, data []byte) error {
	msg := nats.NewMsg(subject)
	if c.compressAbove > 0 && len(data) > c.compressAbove {
		msg.Data = c.encoder.EncodeAll(data, nil)
		msg.Header.Set(encodingHeader, "zstd")
	} else {
		msg.Data = data
	}
	return c.conn.PublishMsg(msg)
}

func (c *Client) PublishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.Publish(subject, data)
}

// Subscribe delivers decoded payloads; compressed messages are transparently
// decompressed before the handler runs.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) (*nats.Subscription, error) {
	return c.conn.Subscribe(subject, func(msg *nats.Msg) {
		data := msg.Data
		if msg.Header.Get(encodingHeader) == "zstd" {
			decoded, err := c.decoder.DecodeAll(data, nil)
			if err != nil {
				return
			}
			data = decoded
		}
		handler(msg.Subject, data)
	})
}

// SubscribeReply registers a responder. The handler's return value is sent
// back on the request's reply subject; fire-and-forget publishes to the same
// subject are ignored.
func (c *Client) SubscribeReply(subject string, handler func(data []byte) []byte) (*nats.Subscription, error) {
	return c.conn.Subscribe(subject, func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		_ = msg.Respond(handler(msg.Data))
	})
}

func (c *Client) Request(subject string, data []byte, timeout time.Duration) (*nats.Msg, error) {
	return c.conn.Request(subject, data, timeout)
}

func (c *Client) Flush() error {
	return c.conn.Flush()
}

func (c *Client) Close() {
	c.conn.Close()
}
