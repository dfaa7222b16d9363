// Package codec converts binary audio payloads to and from the printable base64
// text used on JSON transports.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MalformedTransportError reports a payload that is not valid padded base64.
type MalformedTransportError struct {
	Offset int
	Err    error
}

func (e *MalformedTransportError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("malformed transport payload at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("malformed transport payload: %v", e.Err)
}

func (e *MalformedTransportError) Unwrap() error { return e.Err }

var errBlockSize = errors.New("length is not a multiple of 4")

// Encode returns the padded standard base64 form of data.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode. Line breaks are rejected rather than skipped so that
// Encode(Decode(s)) == s for every accepted s.
func Decode(s string) ([]byte, error) {
	if len(s)%4 != 0 {
		return nil, &MalformedTransportError{Offset: -1, Err: errBlockSize}
	}
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return nil, &MalformedTransportError{Offset: i, Err: errors.New("illegal line break")}
	}
	data, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		var corrupt base64.CorruptInputError
		if errors.As(err, &corrupt) {
			return nil, &MalformedTransportError{Offset: int(corrupt), Err: err}
		}
		return nil, &MalformedTransportError{Offset: -1, Err: err}
	}
	return data, nil
}

// DecodeDataURL accepts either a bare payload or a "data:<mime>;base64,<payload>" URL
// as produced by browser file readers. The mime type is empty for bare payloads.
func DecodeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		data, err := Decode(s)
		return data, "", err
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return nil, "", &MalformedTransportError{Offset: -1, Err: errors.New("data url missing payload separator")}
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", &MalformedTransportError{Offset: -1, Err: errors.New("data url is not base64 encoded")}
	}
	data, err := Decode(payload)
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}
