package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/contentmigrator/internal/config"
)

// NATSClient is a Sink backed by a JetStream stream and key-value bucket.
type NATSClient struct {
	conn *nats.Conn
	js   jetstream.JetStream
	kv   jetstream.KeyValue
}

// Connect dials NATS and prepares the stream and status bucket.
func Connect(cfg *config.NotificationConfig) (*NATSClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notification config is required")
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Name("contentmigrator"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName(cfg.Subject),
		Subjects: []string{cfg.Subject + ".>"},
		MaxAge:   7 * 24 * time.Hour,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	kv, err := js.KeyValue(ctx, cfg.KVBucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      cfg.KVBucket,
			Description: "Latest migration action status per content type",
			History:     5,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create KV bucket: %w", err)
		}
	}

	slog.Info("NATS notifications enabled",
		slog.String("url", cfg.NATSURL),
		slog.String("subject", cfg.Subject),
		slog.String("kv_bucket", cfg.KVBucket))

	return &NATSClient{conn: conn, js: js, kv: kv}, nil
}

// Publish implements Sink.
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(ctx, subject, data)
	return err
}

// PutStatus implements Sink.
func (c *NATSClient) PutStatus(ctx context.Context, key string, data []byte) error {
	_, err := c.kv.Put(ctx, key, data)
	return err
}

// Close drains pending messages and closes the connection.
func (c *NATSClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Drain()
}

func streamName(subject string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "*", "", ">", "").Replace(subject))
}
