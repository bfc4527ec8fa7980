package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/celerix-dev/drinklog/internal/engine"
	"github.com/celerix-dev/drinklog/pkg/schema"
)

func startRouter(t *testing.T, store *engine.MemStore) string {
	t.Helper()
	router := NewRouter(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Let Listen pick a random port
	go router.Listen("0")

	var port string
	for i := 0; i < 40; i++ {
		time.Sleep(25 * time.Millisecond)
		if addr := router.Addr(); addr != nil {
			port = fmt.Sprintf("%d", addr.(*net.TCPAddr).Port)
			break
		}
	}
	if port == "" {
		t.Fatalf("Server did not start in time")
	}
	t.Cleanup(router.Stop)
	return "127.0.0.1:" + port
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn, bufio.NewReader(conn)
}

func roundTrip(t *testing.T, conn net.Conn, reader *bufio.Reader, cmd string) string {
	t.Helper()
	fmt.Fprintf(conn, "%s\n", cmd)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read after %q failed: %v", cmd, err)
	}
	return strings.TrimSpace(line)
}

func TestRouter_TCP_Commands(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	addr := startRouter(t, store)
	conn, reader := dial(t, addr)

	if line := roundTrip(t, conn, reader, "PING"); line != "PONG" {
		t.Errorf("Expected PONG, got %q", line)
	}

	line := roundTrip(t, conn, reader, `INSERT drinks {"name": "IPA", "timestamp": "2026-01-01T10:00:00.000Z"}`)
	if !strings.HasPrefix(line, "OK ") {
		t.Fatalf("Expected OK <id>, got %q", line)
	}
	id := strings.TrimPrefix(line, "OK ")

	line = roundTrip(t, conn, reader, "SNAPSHOT drinks timestamp desc")
	var docs []schema.Document
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "OK ")), &docs); err != nil {
		t.Fatalf("Invalid snapshot payload %q: %v", line, err)
	}
	if len(docs) != 1 || docs[0].ID != id || docs[0].Fields["name"] != "IPA" {
		t.Errorf("Unexpected snapshot %v", docs)
	}

	if line := roundTrip(t, conn, reader, "LIST_COLLECTIONS"); line != `OK ["drinks"]` {
		t.Errorf("Unexpected collections %q", line)
	}

	if line := roundTrip(t, conn, reader, "DEL drinks "+id); line != "OK" {
		t.Errorf("Expected OK, got %q", line)
	}

	if line := roundTrip(t, conn, reader, "INSERT drinks not-json"); !strings.HasPrefix(line, "ERR") {
		t.Errorf("Expected ERR for invalid json, got %q", line)
	}
	if line := roundTrip(t, conn, reader, "SNAPSHOT drinks timestamp sideways"); !strings.HasPrefix(line, "ERR") {
		t.Errorf("Expected ERR for invalid direction, got %q", line)
	}
	if line := roundTrip(t, conn, reader, "BOGUS"); !strings.HasPrefix(line, "ERR") {
		t.Errorf("Expected ERR for unknown command, got %q", line)
	}
}

func TestRouter_Subscribe_PushesEveryChange(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	addr := startRouter(t, store)
	conn, reader := dial(t, addr)

	if line := roundTrip(t, conn, reader, "SUBSCRIBE drinks timestamp desc"); line != "OK" {
		t.Fatalf("Expected OK, got %q", line)
	}

	readSnapshot := func() []schema.Document {
		t.Helper()
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read snapshot failed: %v", err)
		}
		if !strings.HasPrefix(line, "SNAPSHOT ") {
			t.Fatalf("Expected SNAPSHOT line, got %q", line)
		}
		var docs []schema.Document
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "SNAPSHOT ")), &docs); err != nil {
			t.Fatalf("Invalid snapshot: %v", err)
		}
		return docs
	}

	if docs := readSnapshot(); len(docs) != 0 {
		t.Errorf("Expected empty initial snapshot, got %d documents", len(docs))
	}

	id, _ := store.Insert("drinks", map[string]any{"timestamp": "2026-01-01T10:00:00.000Z"})
	if docs := readSnapshot(); len(docs) != 1 || docs[0].ID != id {
		t.Errorf("Unexpected snapshot after insert: %v", docs)
	}

	store.DeleteByID("drinks", id)
	if docs := readSnapshot(); len(docs) != 0 {
		t.Errorf("Unexpected snapshot after delete: %v", docs)
	}
}
