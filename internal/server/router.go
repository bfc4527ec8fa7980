package server

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/drinklog/internal/engine"
	"github.com/celerix-dev/drinklog/pkg/schema"
)

const (
	maxConnections = 100
	commandTimeout = 30 * time.Second
	pushTimeout    = 10 * time.Second
	maxLineBytes   = 1 << 20
)

// Store is the part of the engine exposed over TCP.
type Store interface {
	Insert(collection string, fields map[string]any) (string, error)
	DeleteByID(collection, id string) error
	Snapshot(q schema.Query) ([]schema.Document, error)
	Subscribe(q schema.Query) (*engine.Subscription, error)
	Collections() []string
}

// Router serves the line protocol:
//
//	INSERT <collection> <json>                 -> OK <id>
//	DEL <collection> <id>                      -> OK
//	SNAPSHOT <collection> <field> <asc|desc>   -> OK <json>
//	SUBSCRIBE <collection> <field> <asc|desc>  -> OK, then SNAPSHOT <json> per change
//	LIST_COLLECTIONS                           -> OK <json>
//	PING                                       -> PONG
//	QUIT
type Router struct {
	store  Store
	cert   *tls.Certificate
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopped  bool
}

func NewRouter(s Store, logger *slog.Logger) *Router {
	return &Router{
		store:  s,
		logger: logger.With("component", "tcp_router"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the listening address, or nil before Listen has bound.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen starts the TCP server. It returns nil after Stop.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		listener.Close()
		return nil
	}
	r.listener = listener
	r.mu.Unlock()
	defer listener.Close()

	r.logger.Info("tcp router listening", "addr", listener.Addr().String(), "tls", r.cert != nil)

	semaphore := make(chan struct{}, maxConnections)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if r.isStopped() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			continue
		}

		go func(c net.Conn) {
			semaphore <- struct{}{}
			if !r.track(c) {
				<-semaphore
				c.Close()
				return
			}
			defer func() {
				r.untrack(c)
				<-semaphore
				c.Close()
			}()
			r.handleConnection(c)
		}(conn)
	}
}

// Stop closes the listener and every open connection.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.listener != nil {
		r.listener.Close()
	}
	for c := range r.conns {
		c.Close()
	}
}

func (r *Router) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Router) track(c net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.conns[c] = struct{}{}
	return true
}

func (r *Router) untrack(c net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
}

func (r *Router) handleConnection(conn net.Conn) {
	reader := bufio.NewReaderSize(conn, 64*1024)

	for {
		// Set a deadline for the next command
		conn.SetReadDeadline(time.Now().Add(commandTimeout))

		line, err := readLine(reader)
		if err != nil {
			return // Connection closed or timeout
		}

		parts := strings.Fields(line)
		if len(parts) < 1 {
			continue
		}

		command := strings.ToUpper(parts[0])

		switch command {
		case "INSERT":
			if len(parts) < 3 {
				fmt.Fprintln(conn, "ERR usage: INSERT <collection> <json>")
				continue
			}
			// The document is everything after the collection name
			raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line[len(parts[0]):]), parts[1]))
			var fields map[string]any
			if err := json.Unmarshal([]byte(raw), &fields); err != nil {
				fmt.Fprintln(conn, "ERR invalid json document")
				continue
			}
			id, err := r.store.Insert(parts[1], fields)
			if err != nil {
				fmt.Fprintln(conn, "ERR", err)
			} else {
				fmt.Fprintln(conn, "OK", id)
			}

		case "DEL":
			if len(parts) < 3 {
				fmt.Fprintln(conn, "ERR usage: DEL <collection> <id>")
				continue
			}
			if err := r.store.DeleteByID(parts[1], parts[2]); err != nil {
				fmt.Fprintln(conn, "ERR", err)
			} else {
				fmt.Fprintln(conn, "OK")
			}

		case "SNAPSHOT":
			q, err := parseQuery(parts[1:])
			if err != nil {
				fmt.Fprintln(conn, "ERR", err)
				continue
			}
			docs, err := r.store.Snapshot(q)
			if err != nil {
				fmt.Fprintln(conn, "ERR", err)
				continue
			}
			writeJSON(conn, "OK", docs)

		case "LIST_COLLECTIONS":
			writeJSON(conn, "OK", r.store.Collections())

		case "SUBSCRIBE":
			q, err := parseQuery(parts[1:])
			if err != nil {
				fmt.Fprintln(conn, "ERR", err)
				continue
			}
			sub, err := r.store.Subscribe(q)
			if err != nil {
				fmt.Fprintln(conn, "ERR", err)
				continue
			}
			fmt.Fprintln(conn, "OK")
			r.push(conn, reader, sub)
			return

		case "PING":
			fmt.Fprintln(conn, "PONG")

		case "QUIT":
			return

		default:
			fmt.Fprintln(conn, "ERR unknown command", command)
		}
	}
}

// push streams snapshots to a subscribed connection until the client hangs up, sends
// QUIT, a write fails, or the store closes the feed.
func (r *Router) push(conn net.Conn, reader *bufio.Reader, sub *engine.Subscription) {
	defer sub.Cancel()
	conn.SetReadDeadline(time.Time{})

	go func() {
		for {
			line, err := readLine(reader)
			if err != nil || strings.EqualFold(line, "QUIT") {
				sub.Cancel()
				return
			}
		}
	}()

	r.logger.Debug("subscriber attached", "query", sub.Query().String(), "remote", conn.RemoteAddr().String())
	for snap := range sub.C() {
		conn.SetWriteDeadline(time.Now().Add(pushTimeout))
		if err := writeJSON(conn, "SNAPSHOT", snap); err != nil {
			r.logger.Debug("subscriber write failed", "error", err)
			return
		}
	}
	r.logger.Debug("subscriber detached", "query", sub.Query().String())
}

func parseQuery(args []string) (schema.Query, error) {
	if len(args) < 1 {
		return schema.Query{}, errors.New("usage: <collection> [field] [asc|desc]")
	}
	q := schema.Query{Collection: args[0]}
	if len(args) > 1 {
		q.OrderBy = args[1]
	}
	if len(args) > 2 {
		dir, err := schema.ParseDirection(args[2])
		if err != nil {
			return q, err
		}
		q.Direction = dir
	}
	return q, nil
}

func writeJSON(w io.Writer, prefix string, v any) error {
	res, err := json.Marshal(v)
	if err != nil {
		_, werr := fmt.Fprintln(w, "ERR internal error")
		if werr != nil {
			return werr
		}
		return err
	}
	_, err = fmt.Fprintln(w, prefix, string(res))
	return err
}

func readLine(reader *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			return "", err
		}
		sb.Write(chunk)
		if sb.Len() > maxLineBytes {
			return "", errors.New("line too long")
		}
		if !isPrefix {
			return strings.TrimSpace(sb.String()), nil
		}
	}
}
