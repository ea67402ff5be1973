// Package jsonrpc implements the Unix-socket JSON-RPC 2.0 front-end
// (§6): request/response/notification envelopes, the six commissioning
// methods, and the real connect/disconnect/get_connection_state
// handlers original_source only stubbed.
package jsonrpc

import "encoding/json"

// ProtocolVersion is the fixed "jsonrpc" field value (§6).
const ProtocolVersion = "2.0"

// Standard and custom JSON-RPC error codes (§6, §7).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeScanInProgress = -32001
	CodeInvalidState   = -32002
	CodeBackendError   = -32003
	CodeTimeout        = -32004
)

// Request is one client-to-server call. Params is left as raw JSON and
// decoded per-method, since the six methods have unrelated shapes
// (§6's method list).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *RequestID      `json:"id,omitempty"`
}

// RequestID is a JSON-RPC id: either a number or a string. A request
// with no id is a notification and never receives a response (not used
// client-to-server here, but kept symmetric with Response.ID).
type RequestID struct {
	Number int64
	String string
	isStr  bool
}

// MarshalJSON emits whichever underlying form was set.
func (r RequestID) MarshalJSON() ([]byte, error) {
	if r.isStr {
		return json.Marshal(r.String)
	}
	return json.Marshal(r.Number)
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (r *RequestID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		r.Number = n
		r.isStr = false
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	r.String = s
	r.isStr = true
	return nil
}

// NumberID constructs a numeric RequestID, the form every test and the
// real client library in this repo's ecosystem sends; string ids are
// only ever decoded off the wire via UnmarshalJSON, never minted here.
func NumberID(n int64) *RequestID { return &RequestID{Number: n} }

// Response is one server-to-client reply. Exactly one of Result/Error
// is populated (§6).
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      *RequestID  `json:"id"`
}

// Notification is one server-initiated, id-less event (§6:
// scan_state_changed, connection_state_changed).
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Error is the JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func newError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func SuccessResponse(result interface{}, id *RequestID) *Response {
	return &Response{JSONRPC: ProtocolVersion, Result: result, ID: id}
}

func ErrorResponse(err *Error, id *RequestID) *Response {
	return &Response{JSONRPC: ProtocolVersion, Error: err, ID: id}
}

func NewNotification(method string, params interface{}) *Notification {
	return &Notification{JSONRPC: ProtocolVersion, Method: method, Params: params}
}
