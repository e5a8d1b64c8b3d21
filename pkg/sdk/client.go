// Package sdk provides the client-side library for interacting with the Celerix telemetry store.
// It supports remote connections via TCP/TLS; the embedded engine implements the same interfaces.
package sdk

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
)

// Client is a remote client for the store daemon.
// It implements the DocumentStore interface.
type Client struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex // Protects concurrent access to the connection
}

// Connect establishes a TLS-encrypted connection to a remote store daemon.
// If CELERIX_DISABLE_TLS is set to "true", it falls back to plain TCP.
func Connect(addr string) (*Client, error) {
	c := &Client{addr: addr}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	var conn net.Conn
	var err error

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	if os.Getenv("CELERIX_DISABLE_TLS") == "true" {
		conn, err = dialer.Dial("tcp", c.addr)
	} else {
		config := &tls.Config{
			InsecureSkipVerify: true, // self-signed certs for internal traffic
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	}

	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// sendAndReceive writes one command line and returns the payload of the OK reply.
func (c *Client) sendAndReceive(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	var resp string

	// Try up to 3 times with exponential backoff
	for i := 0; i < 3; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				time.Sleep(time.Duration(i*100) * time.Millisecond)
				continue
			}
		}

		deadline := time.Now().Add(30 * time.Second)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		c.conn.SetDeadline(deadline)

		_, err = fmt.Fprint(c.conn, cmd+"\n")
		if err == nil {
			resp, err = c.reader.ReadString('\n')
			if err == nil {
				resp = strings.TrimSpace(resp)
				if strings.HasPrefix(resp, "ERR") {
					return "", remoteError(strings.TrimSpace(strings.TrimPrefix(resp, "ERR")))
				}
				if resp == "OK" || resp == "PONG" {
					return "", nil
				}
				return strings.TrimPrefix(resp, "OK "), nil
			}
		}

		fmt.Fprintf(os.Stderr, "[Celerix SDK] Attempt %d failed: %v. Reconnecting...\n", i+1, err)

		if closeErr := c.reconnect(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "[Celerix SDK] Reconnect attempt failed: %v\n", closeErr)
		}

		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return "", fmt.Errorf("failed after 3 attempts. last error: %v", err)
}

// remoteError restores the sentinel errors the daemon reports as text.
func remoteError(msg string) error {
	for _, sentinel := range []error{ErrDocumentNotFound, ErrInvalidPath, ErrBatchTooLarge} {
		if strings.Contains(msg, sentinel.Error()) {
			return fmt.Errorf("%w (remote: %s)", sentinel, msg)
		}
	}
	return errors.New(msg)
}

func (c *Client) Add(ctx context.Context, collectionPath string, data map[string]any) (string, error) {
	jsonData, err := schema.MarshalDocument(data)
	if err != nil {
		return "", err
	}
	return c.sendAndReceive(ctx, fmt.Sprintf("ADD %s %s", collectionPath, jsonData))
}

func (c *Client) Get(ctx context.Context, docPath string) (map[string]any, error) {
	resp, err := c.sendAndReceive(ctx, fmt.Sprintf("GET %s", docPath))
	if err != nil {
		return nil, err
	}
	return schema.UnmarshalDocument([]byte(resp))
}

func (c *Client) Merge(ctx context.Context, docPath string, fields map[string]any) error {
	jsonData, err := schema.MarshalDocument(fields)
	if err != nil {
		return err
	}
	_, err = c.sendAndReceive(ctx, fmt.Sprintf("MERGE %s %s", docPath, jsonData))
	return err
}

func (c *Client) List(ctx context.Context, collectionPath string) ([]Document, error) {
	resp, err := c.sendAndReceive(ctx, fmt.Sprintf("LIST %s", collectionPath))
	if err != nil {
		return nil, err
	}
	var docs []Document
	if err := json.Unmarshal([]byte(resp), &docs); err != nil {
		return nil, err
	}
	for i := range docs {
		decoded, _ := schema.DecodeValue(docs[i].Data).(map[string]any)
		docs[i].Data = decoded
	}
	return docs, nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.sendAndReceive(ctx, "PING")
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	return c.conn.Close()
}

// BatchUpdate is one staged update as sent over the wire.
type BatchUpdate struct {
	Path   string         `json:"path"`
	Fields map[string]any `json:"fields"`
}

// Batch returns a remote batch. Updates are buffered locally and sent as one
// BATCH command on Commit, so the daemon applies them atomically.
func (c *Client) Batch() WriteBatch {
	return &RemoteBatch{client: c}
}

// RemoteBatch is the client side of an atomic batch.
type RemoteBatch struct {
	client    *Client
	updates   []BatchUpdate
	committed bool
}

func (b *RemoteBatch) Update(docPath string, fields map[string]any) {
	b.updates = append(b.updates, BatchUpdate{Path: docPath, Fields: fields})
}

func (b *RemoteBatch) Len() int { return len(b.updates) }

func (b *RemoteBatch) Commit(ctx context.Context) error {
	if b.committed {
		return ErrBatchCommitted
	}
	if len(b.updates) == 0 {
		b.committed = true
		return nil
	}
	if len(b.updates) > MaxBatchWrites {
		return fmt.Errorf("%w: %d updates", ErrBatchTooLarge, len(b.updates))
	}

	wire := make([]BatchUpdate, len(b.updates))
	for i, u := range b.updates {
		encoded, _ := schema.EncodeValue(u.Fields).(map[string]any)
		wire[i] = BatchUpdate{Path: u.Path, Fields: encoded}
	}
	jsonData, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	resp, err := b.client.sendAndReceive(ctx, "BATCH "+string(jsonData))
	if err != nil {
		return err
	}
	if n, convErr := strconv.Atoi(resp); convErr == nil && n != len(wire) {
		return fmt.Errorf("batch applied %d of %d updates", n, len(wire))
	}
	b.committed = true
	return nil
}
