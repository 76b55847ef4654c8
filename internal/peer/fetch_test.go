package peer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/p2p-ci/internal/logger"
	"github.com/rudransh-shrivastava/p2p-ci/internal/protocol"
	"github.com/rudransh-shrivastava/p2p-ci/internal/store"
)

// fakeUpload answers one connection by writing parts with a pause between them.
func fakeUpload(t *testing.T, pause time.Duration, closeAfter bool, parts ...string) protocol.Record {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		_, _ = protocol.ReadRequest(bufio.NewReader(conn))
		for _, p := range parts {
			_, _ = conn.Write([]byte(p))
			time.Sleep(pause)
		}
		if !closeAfter {
			time.Sleep(time.Second)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return protocol.Record{ID: "RFC 1", Title: "Hello", Host: "127.0.0.1", Port: addr.Port}
}

func testNode() *Node {
	return &Node{
		config: Config{IdleTimeout: 250 * time.Millisecond, DialTimeout: time.Second},
		logger: logger.Discard(),
	}
}

func documentHead(length int) string {
	return "P2P-CI/1.0 200 OK\n" +
		"Last-Modified: " + protocol.FormatTime(time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)) + "\n" +
		"Content-Length: " + strconv.Itoa(length) + "\n" +
		"Content-Type: text/plain\n\n"
}

func TestFetchSegmentedReply(t *testing.T) {
	body := "segmented body"
	rec := fakeUpload(t, 50*time.Millisecond, true, documentHead(len(body)), body[:5], body[5:])

	var progress bytes.Buffer
	res, err := testNode().fetch(context.Background(), rec.ID, rec, fetchOptions{progress: &progress})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if string(res.Body) != body {
		t.Errorf("Expected %q, got %q", body, res.Body)
	}
	if progress.Len() != len(documentHead(len(body)))+len(body) {
		t.Errorf("Progress saw %d bytes", progress.Len())
	}
}

func TestFetchIdleTimeoutEndsDrain(t *testing.T) {
	body := "never closed"
	rec := fakeUpload(t, 0, false, documentHead(len(body))+body)

	start := time.Now()
	res, err := testNode().fetch(context.Background(), rec.ID, rec, fetchOptions{})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Errorf("Drain waited for close instead of idle timeout")
	}
	if string(res.Body) != body {
		t.Errorf("Expected %q, got %q", body, res.Body)
	}
}

func TestFetchNotFound(t *testing.T) {
	rec := fakeUpload(t, 0, true, "P2P-CI/1.0 404 Not Found\n\n")

	_, err := testNode().fetch(context.Background(), rec.ID, rec, fetchOptions{})
	var se *StatusError
	if !errors.As(err, &se) || se.Status != protocol.StatusNotFound {
		t.Errorf("Expected 404 StatusError, got %v", err)
	}
}

func TestDocumentFromLengthMismatch(t *testing.T) {
	res := protocol.NewDocumentResponse(protocol.StatusOK)
	res.Headers.Set(protocol.HeaderContentLength, "50")
	res.Headers.Set(protocol.HeaderLastModified, protocol.FormatTime(time.Now()))
	res.Body = []byte("short")

	_, err := documentFrom("RFC 1", protocol.Record{ID: "RFC 1"}, res)
	if !errors.Is(err, store.ErrLengthMismatch) {
		t.Errorf("Expected ErrLengthMismatch, got %v", err)
	}
}

func TestRecordTitleOneWordID(t *testing.T) {
	tests := []struct {
		rec  protocol.Record
		id   string
		want string
	}{
		{protocol.Record{ID: "RFC 1", Title: "Hello"}, "RFC 1", "Hello"},
		{protocol.Record{ID: "42 Foo"}, "42", "Foo"},
		{protocol.Record{ID: "42 Foo", Title: "Bar Baz"}, "42", "Foo Bar Baz"},
	}

	for _, tt := range tests {
		if !recordHasID(tt.rec, tt.id) {
			t.Errorf("%v: expected to match id %q", tt.rec, tt.id)
		}
		if got := recordTitle(tt.rec, tt.id); got != tt.want {
			t.Errorf("%v: expected title %q, got %q", tt.rec, tt.want, got)
		}
	}

	if recordHasID(protocol.Record{ID: "420 Foo"}, "42") {
		t.Error("Expected 420 not to match 42")
	}
}
