// Package stratum implements the line-delimited JSON-RPC Stratum protocol
// this system exposes to external ASIC miners: wire codec (this file),
// per-connection session state machine (session.go), and the TCP server
// that accepts connections and broadcasts jobs (server.go).
//
// The request/response dispatch shape is grounded on the teacher's
// Client.handleRPCCall / unmarshalJSONLine pattern (pool/client.go), adapted
// from a client that calls out to a pool into a server that answers ASIC
// miners directly.
package stratum

import (
	"encoding/json"
	"errors"
)

// Method names recognized by the server, per spec.md §4.5.
const (
	MethodSubscribe         = "mining.subscribe"
	MethodAuthorize         = "mining.authorize"
	MethodSubmit            = "mining.submit"
	MethodSuggestDifficulty = "mining.suggest_difficulty"
	MethodSetDifficulty     = "mining.set_difficulty"
	MethodNotify            = "mining.notify"
)

// Stratum error codes, per spec.md §4.5.
const (
	ErrCodeOther             = 20
	ErrCodeJobNotFound       = 21
	ErrCodeDuplicateShare    = 22
	ErrCodeLowDifficultyShare = 23
	ErrCodeUnauthorized      = 24
	ErrCodeNotSubscribed     = 25
)

var errCodeMessages = map[int]string{
	ErrCodeOther:              "Other",
	ErrCodeJobNotFound:        "Job not found",
	ErrCodeDuplicateShare:     "Duplicate share",
	ErrCodeLowDifficultyShare: "Low difficulty share",
	ErrCodeUnauthorized:       "Unauthorized",
	ErrCodeNotSubscribed:      "Not subscribed",
}

// RPCError is the [code, message, data] triple carried in a Response's
// error field.
type RPCError struct {
	Code    int
	Message string
	Data    interface{}
}

// NewRPCError builds an RPCError from one of the ErrCode* constants, filling
// in the canonical message.
func NewRPCError(code int, data interface{}) *RPCError {
	msg, ok := errCodeMessages[code]
	if !ok {
		msg = "Other"
	}
	return &RPCError{Code: code, Message: msg, Data: data}
}

// MarshalJSON encodes the error as a 3-element JSON array.
func (e *RPCError) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]interface{}{e.Code, e.Message, e.Data})
}

// UnmarshalJSON decodes a 3-element JSON array into the error.
func (e *RPCError) UnmarshalJSON(data []byte) error {
	var raw [3]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &e.Code); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[1], &e.Message); err != nil {
		return err
	}
	return json.Unmarshal(raw[2], &e.Data)
}

// Request is a Stratum request. A Request whose ID is nil is a
// notification: no response is expected.
type Request struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// IsNotification reports whether this request carries no id, i.e. expects
// no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is a Stratum response to a prior Request.
type Response struct {
	ID     interface{} `json:"id"`
	Result interface{} `json:"result"`
	Error  *RPCError   `json:"error"`
}

// NewNotification builds a Request with a nil id, matching the wire
// encoding of a notification (an object with "id": null).
func NewNotification(method string, params ...interface{}) *Request {
	return &Request{ID: nil, Method: method, Params: params}
}

// NewRequest builds a Request expecting a Response.
func NewRequest(id interface{}, method string, params ...interface{}) *Request {
	return &Request{ID: id, Method: method, Params: params}
}

// NewResultResponse builds a successful Response.
func NewResultResponse(id interface{}, result interface{}) *Response {
	return &Response{ID: id, Result: result}
}

// NewErrorResponse builds a failed Response with the given error code.
func NewErrorResponse(id interface{}, code int, data interface{}) *Response {
	return &Response{ID: id, Result: nil, Error: NewRPCError(code, data)}
}

// IdentifyMessage decodes one JSON line into either a *Request or a
// *Response, mirroring the teacher's unmarshalJSONLine: a line that carries
// a non-empty "method" field is a request (or notification), everything
// else is treated as a response.
func IdentifyMessage(line []byte) (req *Request, resp *Response, err error) {
	var probe struct {
		Method *string `json:"method"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, nil, errors.New("malformed JSON RPC line")
	}
	if probe.Method != nil && *probe.Method != "" {
		req = &Request{}
		if err := json.Unmarshal(line, req); err != nil {
			return nil, nil, errors.New("malformed stratum request")
		}
		return req, nil, nil
	}
	resp = &Response{}
	if err := json.Unmarshal(line, resp); err != nil {
		return nil, nil, errors.New("malformed stratum response")
	}
	return nil, resp, nil
}
