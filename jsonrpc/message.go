package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Version is the only JSON-RPC version spoken on the wire.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request represents a JSON-RPC request or, when ID is nil, a notification.
// Field order follows the wire examples: jsonrpc, method, params, id.
type Request struct {
	JSONRPC string  `json:"jsonrpc"`
	Method  string  `json:"method"`
	Params  any     `json:"params"`
	ID      *uint64 `json:"id,omitempty"`
}

// NewRequest creates a request correlated by id.
func NewRequest(id uint64, method string, params any) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  normalizeParams(params),
		ID:      &id,
	}
}

// NewNotification creates a request without an id. No response is expected.
func NewNotification(method string, params any) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  normalizeParams(params),
	}
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// nil params are sent as an empty object, never omitted or null.
func normalizeParams(params any) any {
	if params == nil {
		return map[string]any{}
	}
	return params
}

// Response represents a single JSON-RPC message read from the peer.
// Peers may also push notifications; those carry Method and no ID.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`

	// Raw is the line the response was decoded from, without the trailing newline.
	Raw []byte `json:"-"`
}

// IsNotification reports whether the peer sent a notification rather than a response.
func (r *Response) IsNotification() bool {
	return r.Method != "" && !r.HasID()
}

// HasID reports whether a non-null id is present.
func (r *Response) HasID() bool {
	return len(r.ID) > 0 && !bytes.Equal(r.ID, []byte("null"))
}

// IDNum returns the numeric id of the response.
// The second result is false when the id is missing, null or not an unsigned integer.
func (r *Response) IDNum() (uint64, bool) {
	if !r.HasID() {
		return 0, false
	}
	n, err := strconv.ParseUint(string(r.ID), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// HasOutcome reports whether the response carries a result or an error.
func (r *Response) HasOutcome() bool {
	return r.Result != nil || r.Error != nil
}

// Pretty re-indents the raw line with two spaces, keeping every field and its order.
func (r *Response) Pretty() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, r.Raw, "", "  "); err != nil {
		return nil, errors.Wrap(err, "indent response")
	}
	return buf.Bytes(), nil
}

// DecodeResult unmarshals the result into v.
func (r *Response) DecodeResult(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if r.Result == nil {
		return errors.New("response has no result")
	}
	return json.Unmarshal(r.Result, v)
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// EncodeLine serializes v as a single line of JSON terminated by '\n'.
func EncodeLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal message")
	}
	return append(data, '\n'), nil
}

// DecodeLine parses one line received from the peer.
// Surrounding whitespace, including the line terminator, is ignored.
func DecodeLine(line []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, errors.New("empty line")
	}

	var res Response
	if err := json.Unmarshal(trimmed, &res); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	res.Raw = append([]byte(nil), trimmed...)
	return &res, nil
}
