package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestCodecRequestRoundTrip(t *testing.T) {
	req := NewRequest(CmdAdd, "RFC 123")
	req.Headers.Set(HeaderHost, "peer-a.local")
	req.Headers.Set(HeaderPort, "5678")
	req.Headers.Set(HeaderTitle, "A Proferred Official ICP")

	decoded, err := ParseRequest(req.Bytes())
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}

	if !reflect.DeepEqual(decoded, req) {
		t.Errorf("Round trip mismatch:\n got  %#v\n want %#v", decoded, req)
	}
}

func TestCodecRequestArgumentSpaces(t *testing.T) {
	decoded, err := ParseRequest([]byte("LOOKUP RFC  9 draft P2P-CI/1.0\n\n"))
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}

	if decoded.Command != CmdLookup {
		t.Errorf("Expected LOOKUP, got %q", decoded.Command)
	}
	if decoded.Argument != "RFC  9 draft" {
		t.Errorf("Expected argument 'RFC  9 draft', got %q", decoded.Argument)
	}
	if decoded.Version != Version {
		t.Errorf("Expected version %q, got %q", Version, decoded.Version)
	}
}

func TestCodecRequestCRLF(t *testing.T) {
	decoded, err := ParseRequest([]byte("GET RFC 1 P2P-CI/1.0\r\nHost: a\r\nOS: linux\r\n\r\n"))
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}

	if decoded.Headers.Get("host") != "a" {
		t.Errorf("Expected Host 'a', got %q", decoded.Headers.Get("host"))
	}
	if decoded.Headers.Get(HeaderOS) != "linux" {
		t.Errorf("Expected OS 'linux', got %q", decoded.Headers.Get(HeaderOS))
	}
}

func TestCodecRequestMalformed(t *testing.T) {
	cases := []string{
		"BADCOMMAND\n\n",
		"ADD P2P-CI/1.0\n\n",
		" ADD RFC 1 P2P-CI/1.0\n\n",
		"ADD RFC 1 \n\n",
		"ADD RFC 1 P2P-CI/1.0\nHost peer\n\n",
		"ADD RFC 1 P2P-CI/1.0\n: value\n\n",
		"\n\n",
	}

	for _, in := range cases {
		if _, err := ParseRequest([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseRequest(%q): expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestCodecReadRequestStream(t *testing.T) {
	stream := "BADCOMMAND\n\n" +
		"LIST ALL P2P-CI/1.0\nHost: h\nPort: 1\n\n" +
		"EXIT PEER P2P-CI/1.0\n\n"
	br := bufio.NewReader(strings.NewReader(stream))

	if _, err := ReadRequest(br); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Expected ErrMalformed for first block, got %v", err)
	}

	list, err := ReadRequest(br)
	if err != nil {
		t.Fatalf("ReadRequest LIST failed: %v", err)
	}
	if list.Command != CmdList || list.Argument != ArgAll {
		t.Errorf("Expected LIST ALL, got %s %s", list.Command, list.Argument)
	}

	exit, err := ReadRequest(br)
	if err != nil {
		t.Fatalf("ReadRequest EXIT failed: %v", err)
	}
	if exit.Command != CmdExit {
		t.Errorf("Expected EXIT, got %s", exit.Command)
	}

	_, err = ReadRequest(br)
	if !IsTransport(err) {
		t.Errorf("Expected transport error at end of stream, got %v", err)
	}
}

func TestCodecReadRequestPartial(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("ADD RFC 1 P2P-CI/1.0\nHost: h\n"))

	_, err := ReadRequest(br)
	if !IsTransport(err) {
		t.Errorf("Expected transport error for truncated block, got %v", err)
	}
}

func TestCodecIndexResponseRoundTrip(t *testing.T) {
	res := NewIndexResponse(StatusOK,
		Record{ID: "RFC 1", Title: "Hello", Host: "10.0.0.1", Port: 4000},
		Record{ID: "RFC 2", Title: "Host Requirements for Internet Hosts", Host: "peer-b", Port: 4001},
		Record{ID: "RFC 3", Title: "", Host: "peer-c", Port: 4002},
	)

	decoded, err := ParseIndexResponse(res.Bytes())
	if err != nil {
		t.Fatalf("ParseIndexResponse failed: %v", err)
	}

	if !reflect.DeepEqual(decoded, res) {
		t.Errorf("Round trip mismatch:\n got  %#v\n want %#v", decoded, res)
	}
}

func TestCodecIndexResponsePhraseSpaces(t *testing.T) {
	res := NewIndexResponse(StatusVersionNotSupported)

	decoded, err := ParseIndexResponse(res.Bytes())
	if err != nil {
		t.Fatalf("ParseIndexResponse failed: %v", err)
	}

	if decoded.Status != StatusVersionNotSupported {
		t.Errorf("Expected 505, got %d", decoded.Status)
	}
	if decoded.Phrase != "P2P-CI Version Not Supported" {
		t.Errorf("Phrase mismatch: %q", decoded.Phrase)
	}
	if len(decoded.Records) != 0 {
		t.Errorf("Expected no records, got %d", len(decoded.Records))
	}
}

func TestCodecIndexResponseStopsAtBlank(t *testing.T) {
	data := "P2P-CI/1.0 200 OK\n\nRFC 1 Hello h 1\n\nRFC 2 ignored h 2\n"

	decoded, err := ParseIndexResponse([]byte(data))
	if err != nil {
		t.Fatalf("ParseIndexResponse failed: %v", err)
	}

	if len(decoded.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(decoded.Records))
	}
}

func TestCodecIndexResponseMalformed(t *testing.T) {
	cases := []string{
		"P2P-CI/1.0\n\n",
		"P2P-CI/1.0 abc OK\n\n",
		"P2P-CI/1.0 200 OK\n\nRFC 1 host\n\n",
		"P2P-CI/1.0 200 OK\n\nRFC 1 Hello host notaport\n\n",
	}

	for _, in := range cases {
		if _, err := ParseIndexResponse([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseIndexResponse(%q): expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestCodecReadIndexResponseStream(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(NewIndexResponse(StatusOK).Bytes())
	buf.Write(NewIndexResponse(StatusNotFound).Bytes())
	buf.Write(NewIndexResponse(StatusOK, Record{ID: "RFC 7", Title: "T", Host: "h", Port: 7}).Bytes())
	br := bufio.NewReader(&buf)

	want := []StatusCode{StatusOK, StatusNotFound, StatusOK}
	for i, status := range want {
		res, err := ReadIndexResponse(br)
		if err != nil {
			t.Fatalf("ReadIndexResponse %d failed: %v", i, err)
		}
		if res.Status != status {
			t.Errorf("Response %d: expected %d, got %d", i, status, res.Status)
		}
	}
}

func TestCodecDocumentResponseRoundTrip(t *testing.T) {
	res := NewDocumentResponse(StatusOK)
	res.Headers.Set(HeaderLastModified, FormatTime(time.Date(1999, 4, 1, 12, 0, 0, 0, time.UTC)))
	res.Body = []byte("line one\n\nline three  \n\n")
	res.Headers.Set(HeaderContentLength, strconv.Itoa(len(res.Body)))
	res.Headers.Set(HeaderContentType, "text/plain")

	decoded, err := ParseDocumentResponse(res.Bytes())
	if err != nil {
		t.Fatalf("ParseDocumentResponse failed: %v", err)
	}

	if !reflect.DeepEqual(decoded, res) {
		t.Errorf("Round trip mismatch:\n got  %#v\n want %#v", decoded, res)
	}

	if n, err := decoded.ContentLength(); err != nil || n != len(res.Body) {
		t.Errorf("Expected Content-Length %d, got %d (%v)", len(res.Body), n, err)
	}

	lm, err := decoded.LastModified()
	if err != nil {
		t.Fatalf("LastModified failed: %v", err)
	}
	if lm.Year() != 1999 {
		t.Errorf("Expected 1999, got %d", lm.Year())
	}
}

func TestCodecDocumentResponseNotFound(t *testing.T) {
	decoded, err := ParseDocumentResponse(NewDocumentResponse(StatusNotFound).Bytes())
	if err != nil {
		t.Fatalf("ParseDocumentResponse failed: %v", err)
	}

	if decoded.Status != StatusNotFound {
		t.Errorf("Expected 404, got %d", decoded.Status)
	}
	if len(decoded.Body) != 0 {
		t.Errorf("Expected empty body, got %q", decoded.Body)
	}
}

func TestCodecDocumentResponseMalformed(t *testing.T) {
	cases := []string{
		"",
		"P2P-CI/1.0\n",
		"P2P-CI/1.0 200 OK\nContent-Length 5\n\nhello",
	}

	for _, in := range cases {
		if _, err := ParseDocumentResponse([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseDocumentResponse(%q): expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want StatusCode
	}{
		{nil, StatusOK},
		{ErrVersionMismatch, StatusVersionNotSupported},
		{fmt.Errorf("lookup: %w", ErrNotFound), StatusNotFound},
		{ErrUnknownCommand, StatusBadRequest},
		{malformed("x"), StatusBadRequest},
	}

	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
