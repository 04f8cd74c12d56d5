package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nats-io/nats.go"
)

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("threadfold"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "nats connect", goerr.V("url", url))
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return goerr.Wrap(err, "marshal payload", goerr.V("subject", subject))
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return goerr.Wrap(err, "nats publish", goerr.V("subject", subject))
	}
	return nil
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return goerr.Wrap(err, "nats subscribe", goerr.V("subject", subject))
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Flush waits until the server has seen every published message.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// Close drains the connection: subscriptions stop taking messages and Close
// returns once the handlers already running have finished.
func (c *Client) Close() {
	closed := make(chan struct{})
	c.conn.SetClosedHandler(func(_ *nats.Conn) { close(closed) })
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return
	}
	<-closed
}
