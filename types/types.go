// Package types holds the messages exchanged with assetkeeper over NATS.
package types

import (
	"encoding/json"
	"time"
)

const (
	Version int32 = 1

	StatusOK    = "OK"
	StatusError = "ERROR"

	// StatusDenied is returned by the activation service when the licensing policy refuses a request.
	StatusDenied = "DENIED"
)

// EventValue is the envelope of an asset change event.
type EventValue struct {
	PublishedAt time.Time       `json:"published"`
	Source      string          `json:"source"`
	Operation   string          `json:"operation"`
	Asset       string          `json:"asset"`
	TraceID     string          `json:"traceID"`
	SpanID      string          `json:"spanID"`
	Payload     json.RawMessage `json:"payload"`
	MsgVersion  int32           `json:"msgVersion"`
}

// MustBytes sets the version field of the EventValue so any callers don't have
// to deal with it. It will panic if we cannot serialize to JSON for some reason.
func (v *EventValue) MustBytes() []byte {
	v.MsgVersion = Version

	byt, err := json.Marshal(v)
	if err != nil {
		panic("unable to serialize event value: " + err.Error())
	}

	return byt
}

// Request is a request to the asset service, the operation is taken from the subject.
type Request struct {
	// Names lists the internal names the request applies to.
	Names []string `json:"names,omitempty"`

	// Filters are passed to list requests, keyed by filter category.
	Filters map[string][]string `json:"filters,omitempty"`

	Recursive bool `json:"recursive,omitempty"`

	// AllowLastDatacenter permits a delete request to remove the last datacenter class asset.
	AllowLastDatacenter bool `json:"allowLastDatacenter,omitempty"`
}

// Response is the reply to a Request.
type Response struct {
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	MsgVersion int32           `json:"msgVersion"`
}

// MustBytes sets the version field of the Response and returns its JSON form.
func (r *Response) MustBytes() []byte {
	r.MsgVersion = Version

	byt, err := json.Marshal(r)
	if err != nil {
		panic("unable to serialize response: " + err.Error())
	}

	return byt
}

// ActivationRequest is sent to the activation service.
type ActivationRequest struct {
	Asset        string `json:"asset"`
	Type         string `json:"type"`
	Subtype      string `json:"subtype"`
	UUID         string `json:"uuid,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Serial       string `json:"serial,omitempty"`
	MsgVersion   int32  `json:"msgVersion"`
}

// MustBytes sets the version field of the ActivationRequest and returns its JSON form.
func (r *ActivationRequest) MustBytes() []byte {
	r.MsgVersion = Version

	byt, err := json.Marshal(r)
	if err != nil {
		panic("unable to serialize activation request: " + err.Error())
	}

	return byt
}

// ActivationResponse is the activation service reply.
type ActivationResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	// Activable is set in replies to activable queries.
	Activable bool `json:"activable"`
}

// DeleteItem is the outcome of one asset removal in a delete reply.
type DeleteItem struct {
	Asset  string `json:"asset"`
	Status string `json:"status"`
}
