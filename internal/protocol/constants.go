package protocol

import "time"

const (
	Version = "P2P-CI/1.0"

	// DefaultServerPort is the well-known port of the index server.
	DefaultServerPort = 7734

	// TimeFormat is the layout of the Last-Modified header.
	TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

type Command string

const (
	CmdAdd    Command = "ADD"
	CmdExit   Command = "EXIT"
	CmdGet    Command = "GET"
	CmdInit   Command = "INIT"
	CmdList   Command = "LIST"
	CmdLookup Command = "LOOKUP"
)

func (c Command) Known() bool {
	switch c {
	case CmdAdd, CmdExit, CmdGet, CmdInit, CmdList, CmdLookup:
		return true
	default:
		return false
	}
}

const (
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"
	HeaderHost          = "Host"
	HeaderLastModified  = "Last-Modified"
	HeaderOS            = "OS"
	HeaderPort          = "Port"
	HeaderTitle         = "Title"
)

// Arguments used by commands that do not address a single document.
const (
	ArgAll  = "ALL"
	ArgPeer = "PEER"
)

type StatusCode int

const (
	StatusOK                  StatusCode = 200
	StatusBadRequest          StatusCode = 400
	StatusNotFound            StatusCode = 404
	StatusVersionNotSupported StatusCode = 505
)

func (s StatusCode) Phrase() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusVersionNotSupported:
		return "P2P-CI Version Not Supported"
	default:
		return "Unknown"
	}
}

// FormatTime renders t in the Last-Modified layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime is the inverse of FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}
