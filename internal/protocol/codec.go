package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Lines end with LF or CRLF on read; LF is written.
//
// Free-text fields are located by fixed delimiters so that they may contain
// spaces:
//
//	request line  COMMAND <argument> VERSION   command ends at the first space,
//	                                           version starts after the last one
//	status line   VERSION CODE <phrase>        phrase starts after the second space
//	result line   ID <title> HOST PORT         ID runs up to the second space, HOST
//	                                           and PORT are the last two fields
//
// Result line IDs are therefore two words ("RFC 123").

// Encode writes msg to w, reporting failures as a TransportError.
func Encode(w io.Writer, msg Message) error {
	if _, err := w.Write(msg.Bytes()); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// ReadRequest reads one request block (request line, headers, blank line) from br.
// A block that arrives intact but cannot be parsed yields ErrMalformed and leaves
// br positioned at the next message.
func ReadRequest(br *bufio.Reader) (*Request, error) {
	lines, err := readBlock(br, false)
	if err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}
	return parseRequest(lines)
}

// ParseRequest parses a request held entirely in data.
func ParseRequest(data []byte) (*Request, error) {
	lines, err := readBlock(newBytesReader(data), true)
	if err != nil {
		return nil, malformed("empty request")
	}
	return parseRequest(lines)
}

// ReadIndexResponse reads one index response from br; the result block ends at a blank line.
func ReadIndexResponse(br *bufio.Reader) (*IndexResponse, error) {
	status, records, err := readIndexBlock(br, false)
	if err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}
	return parseIndexResponse(status, records)
}

// ParseIndexResponse parses an index response held in data; the result block
// ends at the first blank line or at the end of data.
func ParseIndexResponse(data []byte) (*IndexResponse, error) {
	status, records, err := readIndexBlock(newBytesReader(data), true)
	if err != nil {
		return nil, malformed("empty index response")
	}
	return parseIndexResponse(status, records)
}

// ParseDocumentResponse parses a complete document response. Everything after the
// blank line that ends the headers is the body, kept byte for byte.
func ParseDocumentResponse(data []byte) (*DocumentResponse, error) {
	pos := 0
	next := func() (string, bool) {
		if pos >= len(data) {
			return "", false
		}
		rest := data[pos:]
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			pos = len(data)
			return trimEOL(string(rest)), true
		}
		pos += i + 1
		return trimEOL(string(rest[:i])), true
	}

	statusLine, ok := next()
	if !ok {
		return nil, malformed("empty document response")
	}
	version, status, phrase, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}

	var headers Headers
	for {
		line, ok := next()
		if !ok || line == "" {
			break
		}
		h, err := parseHeader(line)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}

	var body []byte
	if pos < len(data) {
		body = append([]byte(nil), data[pos:]...)
	}

	return &DocumentResponse{
		Version: version,
		Status:  status,
		Phrase:  phrase,
		Headers: headers,
		Body:    body,
	}, nil
}

func parseRequest(lines []string) (*Request, error) {
	cmd, arg, version, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}

	var headers Headers
	for _, line := range lines[1:] {
		h, err := parseHeader(line)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}

	return &Request{
		Command:  Command(cmd),
		Argument: arg,
		Version:  version,
		Headers:  headers,
	}, nil
}

func parseIndexResponse(statusLine string, lines []string) (*IndexResponse, error) {
	version, status, phrase, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, line := range lines {
		rec, err := parseRecord(line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return &IndexResponse{
		Version: version,
		Status:  status,
		Phrase:  phrase,
		Records: records,
	}, nil
}

func parseRequestLine(line string) (cmd, arg, version string, err error) {
	first := strings.IndexByte(line, ' ')
	last := strings.LastIndexByte(line, ' ')
	if first <= 0 || first == last || last == len(line)-1 {
		return "", "", "", malformed("request line %q is not COMMAND ARGUMENT VERSION", line)
	}
	return line[:first], line[first+1 : last], line[last+1:], nil
}

func parseStatusLine(line string) (version string, status StatusCode, phrase string, err error) {
	first := strings.IndexByte(line, ' ')
	if first <= 0 {
		return "", 0, "", malformed("status line %q is not VERSION CODE PHRASE", line)
	}
	rest := line[first+1:]
	second := strings.IndexByte(rest, ' ')
	if second < 0 {
		return "", 0, "", malformed("status line %q is not VERSION CODE PHRASE", line)
	}
	code, err := strconv.Atoi(rest[:second])
	if err != nil {
		return "", 0, "", malformed("bad status code in %q", line)
	}
	return line[:first], StatusCode(code), rest[second+1:], nil
}

func parseHeader(line string) (Header, error) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return Header{}, malformed("header line %q has no colon", line)
	}
	name := strings.TrimSpace(line[:i])
	if name == "" {
		return Header{}, malformed("header line %q has no name", line)
	}
	return Header{Name: name, Value: strings.TrimSpace(line[i+1:])}, nil
}

func parseRecord(line string) (Record, error) {
	first := strings.IndexByte(line, ' ')
	if first <= 0 {
		return Record{}, malformed("result line %q has too few fields", line)
	}
	second := strings.IndexByte(line[first+1:], ' ')
	if second < 0 {
		return Record{}, malformed("result line %q has too few fields", line)
	}
	second += first + 1

	portSep := strings.LastIndexByte(line, ' ')
	hostSep := strings.LastIndexByte(line[:portSep], ' ')
	if hostSep < second || hostSep+1 == portSep || portSep == len(line)-1 {
		return Record{}, malformed("result line %q has too few fields", line)
	}

	port, err := parsePort(line[portSep+1:])
	if err != nil {
		return Record{}, err
	}

	var title string
	if hostSep > second {
		title = line[second+1 : hostSep]
	}

	return Record{
		ID:    line[:second],
		Title: title,
		Host:  line[hostSep+1 : portSep],
		Port:  port,
	}, nil
}

// readBlock returns the non-empty lines up to the next blank line, skipping blank
// lines in front. With allowEOF the end of input also ends the block.
func readBlock(br *bufio.Reader, allowEOF bool) ([]string, error) {
	var lines []string
	for {
		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) && line != "" {
				lines = append(lines, line)
			}
			if errors.Is(err, io.EOF) && len(lines) > 0 {
				if allowEOF {
					return lines, nil
				}
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if line == "" {
			if len(lines) == 0 {
				continue
			}
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// readIndexBlock returns the status line and the result lines of an index response.
// A missing separator after the status line is tolerated.
func readIndexBlock(br *bufio.Reader, allowEOF bool) (string, []string, error) {
	var status string
	for status == "" {
		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) && line != "" && allowEOF {
				return line, nil, nil
			}
			if errors.Is(err, io.EOF) && line != "" {
				err = io.ErrUnexpectedEOF
			}
			return "", nil, err
		}
		status = line
	}

	var records []string
	separated := false
	for {
		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) && line != "" {
				records = append(records, line)
			}
			if errors.Is(err, io.EOF) && allowEOF {
				return status, records, nil
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return "", nil, err
		}
		if line == "" {
			if !separated {
				separated = true
				continue
			}
			return status, records, nil
		}
		separated = true
		records = append(records, line)
	}
}

// readLine returns a line without its terminator. A final unterminated line is
// returned together with io.EOF.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return trimEOL(line), err
	}
	return trimEOL(line), nil
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

func newBytesReader(data []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(data))
}
