// Package sdk provides the client-side library for the drinklog document store.
// It supports both remote connections via TCP/TLS and local embedded mode.
package sdk

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/drinklog/pkg/schema"
)

const (
	dialTimeout    = 10 * time.Second
	keepAlive      = 60 * time.Second
	commandTimeout = 30 * time.Second
	maxAttempts    = 3
)

// ServerError is an ERR reply from the store.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// Client is a remote client for the document store daemon.
// It implements the Store interface.
type Client struct {
	addr   string
	tls    bool
	logger *slog.Logger

	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex // Protects concurrent access to the connection
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTLS toggles TLS on the transport. It is on by default.
func WithTLS(enabled bool) ClientOption {
	return func(c *Client) { c.tls = enabled }
}

// WithClientLogger sets the logger used for transport retries.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l.With("component", "sdk_client") }
}

// Connect establishes a connection to a remote store daemon.
func Connect(addr string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		addr:   addr,
		tls:    true,
		logger: slog.Default().With("component", "sdk_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dial() (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: keepAlive,
	}
	if !c.tls {
		return dialer.Dial("tcp", c.addr)
	}
	config := &tls.Config{
		InsecureSkipVerify: true, // The daemon uses a self-signed certificate
	}
	return tls.DialWithDialer(dialer, "tcp", c.addr, config)
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// roundTrip sends one command line and reads one reply line.
//
// Idempotent commands are retried up to maxAttempts with exponential backoff,
// reconnecting in between. Other commands are sent at most once: a reply lost after
// the request left cannot be told apart from a request that never arrived.
func (c *Client) roundTrip(ctx context.Context, cmd string, idempotent bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	attempts := maxAttempts
	if !idempotent {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		// Ensure we have a connection
		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				if waitErr := backoff(ctx, i); waitErr != nil {
					return "", waitErr
				}
				continue
			}
		}

		c.conn.SetDeadline(deadline(ctx))

		var resp string
		_, err = fmt.Fprint(c.conn, cmd+"\n")
		if err == nil {
			resp, err = c.reader.ReadString('\n')
			if err == nil {
				resp = strings.TrimSpace(resp)
				if strings.HasPrefix(resp, "ERR") {
					return "", &ServerError{Message: strings.TrimSpace(strings.TrimPrefix(resp, "ERR"))}
				}
				return resp, nil
			}
		}

		c.logger.Warn("store request failed", "attempt", i+1, "error", err)

		// The stream is out of sync after a failed exchange.
		c.conn.Close()
		c.conn = nil

		if i+1 < attempts {
			if waitErr := backoff(ctx, i); waitErr != nil {
				return "", waitErr
			}
		}
	}

	if attempts == 1 {
		return "", err
	}
	return "", fmt.Errorf("failed after %d attempts: %w", attempts, err)
}

func deadline(ctx context.Context) time.Time {
	d := time.Now().Add(commandTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration((attempt+1)*200) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Insert stores a document and returns the id the store assigned.
func (c *Client) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	jsonData, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	resp, err := c.roundTrip(ctx, fmt.Sprintf("INSERT %s %s", collection, jsonData), false)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(strings.TrimPrefix(resp, "OK"))
	if id == "" {
		return "", fmt.Errorf("unexpected insert reply %q", resp)
	}
	return id, nil
}

// DeleteByID removes a document. Deleting twice is harmless, so it is retried.
func (c *Client) DeleteByID(ctx context.Context, collection, id string) error {
	_, err := c.roundTrip(ctx, fmt.Sprintf("DEL %s %s", collection, id), true)
	return err
}

// Snapshot fetches the current ordered result set of q.
func (c *Client) Snapshot(ctx context.Context, q schema.Query) ([]schema.Document, error) {
	resp, err := c.roundTrip(ctx, "SNAPSHOT "+queryArgs(q), true)
	if err != nil {
		return nil, err
	}
	var docs []schema.Document
	err = json.Unmarshal([]byte(strings.TrimPrefix(resp, "OK ")), &docs)
	return docs, err
}

// Collections lists the non-empty collections.
func (c *Client) Collections(ctx context.Context) ([]string, error) {
	resp, err := c.roundTrip(ctx, "LIST_COLLECTIONS", true)
	if err != nil {
		return nil, err
	}
	var list []string
	err = json.Unmarshal([]byte(strings.TrimPrefix(resp, "OK ")), &list)
	return list, err
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, "PING", true)
	if err != nil {
		return err
	}
	if resp != "PONG" {
		return fmt.Errorf("unexpected ping reply %q", resp)
	}
	return nil
}

// Subscribe opens a dedicated connection that streams snapshots of q.
func (c *Client) Subscribe(ctx context.Context, q schema.Query) (Feed, error) {
	if q.Collection == "" {
		return nil, errors.New("collection is required")
	}
	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	reader := bufio.NewReader(conn)

	conn.SetDeadline(deadline(ctx))
	if _, err := fmt.Fprintf(conn, "SUBSCRIBE %s\n", queryArgs(q)); err != nil {
		conn.Close()
		return nil, err
	}
	resp, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp = strings.TrimSpace(resp)
	if strings.HasPrefix(resp, "ERR") {
		conn.Close()
		return nil, &ServerError{Message: strings.TrimSpace(strings.TrimPrefix(resp, "ERR"))}
	}
	if resp != "OK" {
		conn.Close()
		return nil, fmt.Errorf("unexpected subscribe reply %q", resp)
	}
	conn.SetDeadline(time.Time{})

	f := &remoteFeed{
		conn:   conn,
		reader: reader,
		ch:     make(chan []schema.Document, 1),
		exited: make(chan struct{}),
		logger: c.logger,
	}
	go f.pump()
	return f, nil
}

// Close terminates the command connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	err := c.conn.Close()
	c.conn = nil
	return err
}

func queryArgs(q schema.Query) string {
	if q.OrderBy == "" {
		return q.Collection
	}
	dir := q.Direction
	if dir == "" {
		dir = schema.Asc
	}
	return fmt.Sprintf("%s %s %s", q.Collection, q.OrderBy, dir)
}

// remoteFeed reads SNAPSHOT lines from a subscribed connection.
type remoteFeed struct {
	conn   net.Conn
	reader *bufio.Reader
	logger *slog.Logger

	mu        sync.Mutex
	ch        chan []schema.Document
	err       error
	cancelled bool
	closed    bool

	once   sync.Once
	exited chan struct{}
}

func (f *remoteFeed) Snapshots() <-chan []schema.Document { return f.ch }

func (f *remoteFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *remoteFeed) Cancel() {
	f.once.Do(func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()

		fmt.Fprintln(f.conn, "QUIT")
		f.conn.Close()
		<-f.exited

		f.mu.Lock()
		f.err = nil
		if !f.closed {
			select {
			case <-f.ch:
			default:
			}
			close(f.ch)
			f.closed = true
		}
		f.mu.Unlock()
	})
}

func (f *remoteFeed) pump() {
	defer close(f.exited)
	defer f.conn.Close()

	for {
		line, err := f.reader.ReadString('\n')
		if err != nil {
			f.finish(fmt.Errorf("%w: %v", ErrFeedClosed, err))
			return
		}
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "SNAPSHOT "):
			var docs []schema.Document
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "SNAPSHOT ")), &docs); err != nil {
				f.finish(fmt.Errorf("decode snapshot: %w", err))
				return
			}
			if docs == nil {
				docs = []schema.Document{}
			}
			if !f.deliver(docs) {
				return
			}
		case strings.HasPrefix(line, "ERR"):
			f.finish(&ServerError{Message: strings.TrimSpace(strings.TrimPrefix(line, "ERR"))})
			return
		default:
			f.logger.Debug("ignoring unexpected feed line", "line", line)
		}
	}
}

// deliver replaces any pending snapshot with docs. It reports false once the feed
// was cancelled.
func (f *remoteFeed) deliver(docs []schema.Document) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled {
		return false
	}
	select {
	case <-f.ch:
	default:
	}
	f.ch <- docs
	return true
}

// finish records the terminal cause unless the feed was cancelled.
func (f *remoteFeed) finish(cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled || f.closed {
		return
	}
	f.err = cause
	f.closed = true
	close(f.ch)
}
