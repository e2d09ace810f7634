// Package serializer converts the head of a stored response (status line and
// header fields) to and from its HTTP/1.1 wire representation.
package serializer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// Head is the part of a response that is stored next to the body.
type Head struct {
	StatusCode int
	Header     http.Header
}

// HeadToBytes returns the HTTP/1.1 representation of the head,
// terminated by an empty line.
func HeadToBytes(head Head) ([]byte, error) {
	statusCode := head.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	if statusCode < 100 || statusCode > 999 {
		return nil, fmt.Errorf("invalid status code %d", statusCode)
	}
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "HTTP/1.1 %03d %s\r\n", statusCode, http.StatusText(statusCode))
	if err := head.Header.Write(buf); err != nil {
		return nil, err
	}
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}

// BytesToHead reads a head written by HeadToBytes. The header fields are
// returned as they were written; nothing is added or normalized the way
// http.ReadResponse does (e.g. Cache-Control derived from Pragma).
func BytesToHead(b []byte) (Head, error) {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(b)))
	line, err := r.ReadLine()
	if err != nil {
		return Head{}, fmt.Errorf("could not read stored head: %w", err)
	}
	statusCode, err := parseStatusLine(line)
	if err != nil {
		return Head{}, fmt.Errorf("could not read stored head: %w", err)
	}
	mime, err := r.ReadMIMEHeader()
	if err != nil && !(errors.Is(err, io.EOF) && len(mime) == 0) {
		return Head{}, fmt.Errorf("could not read stored head: %w", err)
	}
	header := http.Header(mime)
	if header == nil {
		header = make(http.Header)
	}
	return Head{StatusCode: statusCode, Header: header}, nil
}

func parseStatusLine(line string) (int, error) {
	proto, status, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return 0, fmt.Errorf("malformed status line %q", line)
	}
	code, _, _ := strings.Cut(strings.TrimLeft(status, " "), " ")
	statusCode, err := strconv.Atoi(code)
	if err != nil || len(code) != 3 || statusCode < 100 {
		return 0, fmt.Errorf("malformed status code in %q", line)
	}
	return statusCode, nil
}
