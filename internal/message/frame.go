// Package message implements SSDP datagram framing: the start line and the
// ordered header block shared by M-SEARCH, NOTIFY and search responses.
//
// UDA 1.1 §1: SSDP messages are HTTP/1.1 messages without a body, carried one
// per UDP datagram. Input is read leniently (bare LF accepted, any HTTP/1.x
// version accepted); output is always canonical (CRLF, HTTP/1.1).
//
// This package knows nothing about which headers a message kind requires; the
// public message package layers typed messages and validation on top of it.
package message

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/joshuafuller/ssdp/internal/errors"
	"github.com/joshuafuller/ssdp/internal/protocol"
)

// StartLine is the first line of a datagram: either a request line
// ("M-SEARCH * HTTP/1.1") or a status line ("HTTP/1.1 200 OK").
type StartLine struct {
	Response bool

	// Request line fields.
	Method string
	Target string

	// Status line fields.
	StatusCode int
	Reason     string

	Proto string
}

// RequestLine returns a canonical request start line for method.
func RequestLine(method string) StartLine {
	return StartLine{Method: method, Target: protocol.RequestTarget, Proto: protocol.Version}
}

// StatusLine returns the canonical "HTTP/1.1 200 OK" start line.
func StatusLine() StartLine {
	return StartLine{
		Response:   true,
		StatusCode: protocol.StatusOK,
		Reason:     protocol.ReasonOK,
		Proto:      protocol.Version,
	}
}

// Field is one "Name: Value" header line. Name keeps the casing it was
// received or constructed with.
type Field struct {
	Name  string
	Value string
}

// Frame is a decoded datagram.
type Frame struct {
	Start  StartLine
	Fields []Field
}

// Decode splits a datagram into its start line and header fields.
//
// Errors:
//   - MalformedMessageError: empty input, bad start line, header line without
//     a colon, non-ASCII or control bytes in the header section, or a header
//     block not terminated by an empty line.
func Decode(b []byte) (*Frame, error) {
	if len(b) == 0 {
		return nil, &errors.MalformedMessageError{Reason: "empty datagram"}
	}

	var (
		frame      Frame
		first      = true
		terminated bool
	)

	rest := b
	for len(rest) > 0 {
		var line []byte
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			// Trailing bytes without a newline can never be the terminator.
			line, rest = rest, nil
			if err := checkASCII(line); err != nil {
				return nil, err
			}
			if first {
				return nil, &errors.MalformedMessageError{Reason: "unterminated header block", Line: string(line)}
			}
			break
		}
		line, rest = rest[:i], rest[i+1:]
		line = bytes.TrimSuffix(line, []byte{'\r'})

		if err := checkASCII(line); err != nil {
			return nil, err
		}

		if first {
			start, err := parseStartLine(string(line))
			if err != nil {
				return nil, err
			}
			frame.Start = start
			first = false
			continue
		}

		if len(line) == 0 {
			terminated = true
			break
		}

		field, err := parseField(string(line))
		if err != nil {
			return nil, err
		}
		frame.Fields = append(frame.Fields, field)
	}

	if !terminated {
		return nil, &errors.MalformedMessageError{Reason: "unterminated header block"}
	}
	return &frame, nil
}

// checkASCII rejects bytes outside printable ASCII, allowing horizontal tab.
func checkASCII(line []byte) error {
	for _, c := range line {
		if c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return &errors.MalformedMessageError{
				Reason: "non-ASCII byte 0x" + strconv.FormatUint(uint64(c), 16) + " in header section",
				Line:   strings.ToValidUTF8(string(line), "?"),
			}
		}
	}
	return nil
}

func parseStartLine(s string) (StartLine, error) {
	if s == "" {
		return StartLine{}, &errors.MalformedMessageError{Reason: "empty start line"}
	}

	if strings.HasPrefix(s, "HTTP/") {
		// Status line: HTTP/1.1 SP 3DIGIT [SP reason]
		proto, rest, _ := strings.Cut(s, " ")
		if !validProto(proto) {
			return StartLine{}, &errors.MalformedMessageError{Reason: "unsupported protocol version", Line: s}
		}
		codeStr, reason, _ := strings.Cut(rest, " ")
		code, err := strconv.Atoi(codeStr)
		if err != nil || len(codeStr) != 3 {
			return StartLine{}, &errors.MalformedMessageError{Reason: "malformed status code", Line: s}
		}
		return StartLine{Response: true, Proto: proto, StatusCode: code, Reason: strings.TrimSpace(reason)}, nil
	}

	parts := strings.Split(s, " ")
	if len(parts) != 3 {
		return StartLine{}, &errors.MalformedMessageError{Reason: "malformed request line", Line: s}
	}
	method, target, proto := parts[0], parts[1], parts[2]
	if method == "" || !isToken(method) {
		return StartLine{}, &errors.MalformedMessageError{Reason: "malformed method", Line: s}
	}
	if target != protocol.RequestTarget {
		return StartLine{}, &errors.MalformedMessageError{Reason: "request target must be *", Line: s}
	}
	if !validProto(proto) {
		return StartLine{}, &errors.MalformedMessageError{Reason: "unsupported protocol version", Line: s}
	}
	return StartLine{Method: method, Target: target, Proto: proto}, nil
}

// validProto accepts HTTP/1.0 and HTTP/1.1; some embedded stacks still send 1.0.
func validProto(p string) bool {
	return p == protocol.Version || p == "HTTP/1.0"
}

func parseField(line string) (Field, error) {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return Field{}, &errors.MalformedMessageError{Reason: "header line without colon", Line: line}
	}
	name = strings.TrimRight(name, " \t")
	if name == "" || !isToken(name) {
		return Field{}, &errors.MalformedMessageError{Reason: "malformed header name", Line: line}
	}
	return Field{Name: name, Value: strings.Trim(value, " \t")}, nil
}

// isToken reports whether s is an RFC 7230 token.
func isToken(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

// Encode writes a canonical datagram: start line, one "Name: Value" line per
// field in order, and the terminating empty line, all CRLF-terminated.
func Encode(start StartLine, fields []Field) []byte {
	var buf bytes.Buffer
	buf.Grow(64 + 48*len(fields))

	if start.Response {
		buf.WriteString(protocol.Version)
		buf.WriteByte(' ')
		buf.WriteString(strconv.Itoa(start.StatusCode))
		if start.Reason != "" {
			buf.WriteByte(' ')
			buf.WriteString(start.Reason)
		}
	} else {
		target := start.Target
		if target == "" {
			target = protocol.RequestTarget
		}
		buf.WriteString(start.Method)
		buf.WriteByte(' ')
		buf.WriteString(target)
		buf.WriteByte(' ')
		buf.WriteString(protocol.Version)
	}
	buf.WriteString("\r\n")

	for _, f := range fields {
		buf.WriteString(f.Name)
		buf.WriteByte(':')
		if f.Value != "" {
			buf.WriteByte(' ')
			buf.WriteString(f.Value)
		}
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}
