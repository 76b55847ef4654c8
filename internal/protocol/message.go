package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Message is any of the three envelope shapes carried on the wire.
type Message interface {
	Bytes() []byte
}

type Header struct {
	Name  string
	Value string
}

// Headers keeps header lines in wire order. Lookups ignore case.
type Headers []Header

func (h Headers) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

func (h Headers) Has(name string) bool {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

func (h *Headers) Set(name, value string) {
	for i, f := range *h {
		if strings.EqualFold(f.Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Request is sent by a peer to the index server or to another peer's upload server.
type Request struct {
	Command  Command
	Argument string
	Version  string
	Headers  Headers
}

func NewRequest(cmd Command, arg string) *Request {
	return &Request{Command: cmd, Argument: arg, Version: Version}
}

func (r *Request) Bytes() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", r.Command, r.Argument, r.Version)
	writeHeaders(&b, r.Headers)
	b.WriteByte('\n')
	return []byte(b.String())
}

func (r *Request) String() string { return string(r.Bytes()) }

// Port returns the Port header as an integer.
func (r *Request) Port() (int, error) {
	return parsePort(r.Headers.Get(HeaderPort))
}

// Record is one result line of an index response: a document and the peer serving it.
type Record struct {
	ID    string
	Title string
	Host  string
	Port  int
}

func (r Record) String() string {
	return fmt.Sprintf("%s %s %s %d", r.ID, r.Title, r.Host, r.Port)
}

// Addr is the host:port of the owning peer's upload server.
func (r Record) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// IndexResponse answers INIT, ADD, LOOKUP and LIST.
type IndexResponse struct {
	Version string
	Status  StatusCode
	Phrase  string
	Records []Record
}

func NewIndexResponse(status StatusCode, records ...Record) *IndexResponse {
	return &IndexResponse{
		Version: Version,
		Status:  status,
		Phrase:  status.Phrase(),
		Records: records,
	}
}

func (r *IndexResponse) Bytes() []byte {
	var b strings.Builder
	writeStatusLine(&b, r.Version, r.Status, r.Phrase)
	b.WriteByte('\n')
	for _, rec := range r.Records {
		b.WriteString(rec.String())
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func (r *IndexResponse) String() string { return string(r.Bytes()) }

// DocumentResponse answers GET. Body is carried verbatim.
type DocumentResponse struct {
	Version string
	Status  StatusCode
	Phrase  string
	Headers Headers
	Body    []byte
}

func NewDocumentResponse(status StatusCode) *DocumentResponse {
	return &DocumentResponse{
		Version: Version,
		Status:  status,
		Phrase:  status.Phrase(),
	}
}

func (r *DocumentResponse) Bytes() []byte {
	var b strings.Builder
	writeStatusLine(&b, r.Version, r.Status, r.Phrase)
	writeHeaders(&b, r.Headers)
	b.WriteByte('\n')
	b.Write(r.Body)
	return []byte(b.String())
}

func (r *DocumentResponse) String() string { return string(r.Bytes()) }

func (r *DocumentResponse) ContentLength() (int, error) {
	v := r.Headers.Get(HeaderContentLength)
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, malformed("bad %s %q", HeaderContentLength, v)
	}
	return n, nil
}

func (r *DocumentResponse) ContentType() string {
	return r.Headers.Get(HeaderContentType)
}

func (r *DocumentResponse) LastModified() (time.Time, error) {
	v := r.Headers.Get(HeaderLastModified)
	t, err := ParseTime(v)
	if err != nil {
		return time.Time{}, malformed("bad %s %q", HeaderLastModified, v)
	}
	return t, nil
}

func writeStatusLine(b *strings.Builder, version string, status StatusCode, phrase string) {
	fmt.Fprintf(b, "%s %d %s\n", version, status, phrase)
}

func writeHeaders(b *strings.Builder, h Headers) {
	for _, f := range h {
		fmt.Fprintf(b, "%s: %s\n", f.Name, f.Value)
	}
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 65535 {
		return 0, malformed("bad port %q", s)
	}
	return n, nil
}
