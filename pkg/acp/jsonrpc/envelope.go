package jsonrpc

import "encoding/json"

// EnvelopeKind discriminates the three JSON-RPC wire unit shapes.
type EnvelopeKind int

const (
	EnvelopeInvalid EnvelopeKind = iota
	EnvelopeRequest
	EnvelopeResponse
	EnvelopeNotification
)

// Envelope is one classified JSON-RPC wire unit. Exactly one of Request,
// Response or Notification is non-nil, matching Kind.
type Envelope struct {
	Kind         EnvelopeKind
	Request      *Request
	Response     *Response
	Notification *Notification
}

// ErrNotEnvelope is returned when a JSON value is not any JSON-RPC shape.
var ErrNotEnvelope = NewError(InvalidRequest, "value is not a JSON-RPC envelope")

// envelopeProbe holds the union of fields needed to classify a wire value.
type envelopeProbe struct {
	ID     interface{}     `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Decode classifies one raw JSON value as a request, response or
// notification.
//
// Classification rules: a method with an id is a request; a method without
// an id is a notification; an id with a result or error is a response.
func Decode(raw json.RawMessage) (*Envelope, error) {
	var probe envelopeProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	switch {
	case probe.Method != "" && probe.ID != nil:
		return &Envelope{
			Kind: EnvelopeRequest,
			Request: &Request{
				JSONRPC: Version,
				ID:      normalizeID(probe.ID),
				Method:  probe.Method,
				Params:  probe.Params,
			},
		}, nil
	case probe.Method != "":
		return &Envelope{
			Kind: EnvelopeNotification,
			Notification: &Notification{
				JSONRPC: Version,
				Method:  probe.Method,
				Params:  probe.Params,
			},
		}, nil
	case probe.ID != nil && (probe.Result != nil || probe.Error != nil):
		return &Envelope{
			Kind: EnvelopeResponse,
			Response: &Response{
				JSONRPC: Version,
				ID:      normalizeID(probe.ID),
				Result:  probe.Result,
				Error:   probe.Error,
			},
		}, nil
	}
	return nil, ErrNotEnvelope
}

// normalizeID converts JSON number ids to int64 so that ids round-trip as
// comparable map keys. encoding/json decodes all numbers as float64.
func normalizeID(id interface{}) interface{} {
	if f, ok := id.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return id
}
