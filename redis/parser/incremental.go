package parser

import (
	"bytes"
	"strconv"
)

const (
	maxBulkLen   = 512 << 20
	maxArrayLen  = 1 << 20
	maxInlineLen = 64 << 10
)

// ProtocolError means the input can not be a valid request, the connection should be dropped
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Msg
}

// Parse decodes the first request in buf for event loop servers which own the read buffer.
// It returns the command line and the number of bytes consumed. n == 0 with a nil error
// means buf holds an incomplete request. A blank inline line is consumed with a nil cmdLine.
// The returned arguments do not alias buf.
func Parse(buf []byte) (cmdLine [][]byte, n int, err error) {
	if len(buf) == 0 {
		return nil, 0, nil
	}
	if buf[0] != '*' {
		return parseInline(buf)
	}
	count, pos, err := readLength(buf, 0)
	if err != nil || pos == 0 {
		return nil, 0, err
	}
	if count < 0 || count > maxArrayLen {
		return nil, 0, &ProtocolError{Msg: "illegal array length " + strconv.FormatInt(count, 10)}
	}
	type span struct{ start, end int }
	spans := make([]span, 0, count)
	size := 0
	for i := int64(0); i < count; i++ {
		if pos >= len(buf) {
			return nil, 0, nil
		}
		if buf[pos] != '$' {
			return nil, 0, &ProtocolError{Msg: "expect bulk string, got " + strconv.Quote(string(buf[pos]))}
		}
		strLen, next, err := readLength(buf, pos)
		if err != nil || next == 0 {
			return nil, 0, err
		}
		if strLen < -1 || strLen > maxBulkLen {
			return nil, 0, &ProtocolError{Msg: "illegal bulk string length " + strconv.FormatInt(strLen, 10)}
		}
		if strLen == -1 {
			spans = append(spans, span{next, next})
			pos = next
			continue
		}
		end := next + int(strLen)
		if end+2 > len(buf) {
			return nil, 0, nil
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return nil, 0, &ProtocolError{Msg: "bulk string not terminated by CRLF"}
		}
		spans = append(spans, span{next, end})
		size += int(strLen)
		pos = end + 2
	}
	// one allocation for every argument
	data := make([]byte, 0, size)
	cmdLine = make([][]byte, len(spans))
	for i, s := range spans {
		start := len(data)
		data = append(data, buf[s.start:s.end]...)
		cmdLine[i] = data[start:len(data):len(data)]
	}
	return cmdLine, pos, nil
}

// readLength reads the integer following a type byte at buf[pos] up to CRLF,
// next is 0 when the line is incomplete
func readLength(buf []byte, pos int) (value int64, next int, err error) {
	idx := bytes.IndexByte(buf[pos:], '\n')
	if idx < 0 {
		return 0, 0, nil
	}
	end := pos + idx
	if end == pos || buf[end-1] != '\r' {
		return 0, 0, &ProtocolError{Msg: "line not terminated by CRLF"}
	}
	value, err = strconv.ParseInt(string(buf[pos+1:end-1]), 10, 64)
	if err != nil {
		return 0, 0, &ProtocolError{Msg: "illegal number " + strconv.Quote(string(buf[pos+1:end-1]))}
	}
	return value, end + 1, nil
}

func parseInline(buf []byte) ([][]byte, int, error) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		if len(buf) > maxInlineLen {
			return nil, 0, &ProtocolError{Msg: "too big inline request"}
		}
		return nil, 0, nil
	}
	fields := bytes.Fields(buf[:idx])
	if len(fields) == 0 {
		return nil, idx + 1, nil
	}
	cmdLine := make([][]byte, len(fields))
	for i, f := range fields {
		cmdLine[i] = append([]byte(nil), f...)
	}
	return cmdLine, idx + 1, nil
}
