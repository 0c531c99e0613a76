package jsonrpc

import "encoding/json"

// Version is the protocol version string carried by every message
const Version = "2.0"

// Request is a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// NewRequest builds a request with the protocol version filled in
func NewRequest(id int64, method string, params any) Request {
	return Request{JSONRPC: Version, Method: method, Params: params, ID: id}
}
