package wire

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/joeycumines/dauphin/diag"
	"github.com/joeycumines/dauphin/reqmgr"
)

// wireMini is the serialized form of one mini-request inside a maxi
// packet. Bodies travel as raw CBOR: the receiver decodes them by Kind,
// consulting whatever decoder the host registered for that variant.
type wireMini struct {
	ID       uint64          `cbor:"id"`
	Kind     int             `cbor:"kind"`
	Priority int             `cbor:"priority"`
	Body     cbor.RawMessage `cbor:"body,omitempty"`
}

// wireMaxiRequest is the maxi-packet shape: destination channel, version
// metadata, mini-request list.
type wireMaxiRequest struct {
	Channel  string     `cbor:"channel"`
	Version  string     `cbor:"version"`
	Requests []wireMini `cbor:"requests"`
}

type wireMiniResponse struct {
	ID      uint64          `cbor:"id"`
	Status  int             `cbor:"status"`
	Value   cbor.RawMessage `cbor:"value,omitempty"`
	Message string          `cbor:"message,omitempty"`
}

type wireMaxiResponse struct {
	Responses []wireMiniResponse `cbor:"responses"`
}

func marshalBody(body any) (cbor.RawMessage, error) {
	if body == nil {
		return nil, nil
	}
	if raw, ok := body.(cbor.RawMessage); ok {
		return raw, nil
	}
	return cbor.Marshal(body)
}

// EncodeMaxiRequest serializes a MaxiRequest to CBOR bytes. Mini-request
// bodies that are not already cbor.RawMessage are marshalled in place.
func EncodeMaxiRequest(req reqmgr.MaxiRequest) ([]byte, error) {
	w := wireMaxiRequest{
		Channel:  string(req.Destination),
		Version:  req.Version,
		Requests: make([]wireMini, len(req.Minis)),
	}
	for i, mini := range req.Minis {
		body, err := marshalBody(mini.Body)
		if err != nil {
			return nil, diag.Wrap(diag.Fatal, diag.Code{Namespace: "wire", Number: 5}, err, "encode mini-request %d body", mini.ID)
		}
		w.Requests[i] = wireMini{
			ID:       uint64(mini.ID),
			Kind:     int(mini.Kind),
			Priority: int(mini.Priority),
			Body:     body,
		}
	}
	out, err := cbor.Marshal(w)
	if err != nil {
		return nil, diag.Wrap(diag.Fatal, diag.Code{Namespace: "wire", Number: 6}, err, "encode maxi-request for %s", req.Destination)
	}
	return out, nil
}

// DecodeMaxiRequest parses bytes produced by EncodeMaxiRequest. Bodies
// come back as cbor.RawMessage for the caller to decode by Kind; the
// (channel, request list, metadata) triple round-trips intact.
func DecodeMaxiRequest(data []byte) (reqmgr.MaxiRequest, error) {
	var w wireMaxiRequest
	if err := cbor.Unmarshal(data, &w); err != nil {
		return reqmgr.MaxiRequest{}, diag.Wrap(diag.Operational, diag.Code{Namespace: "wire", Number: 7}, err, "decode maxi-request")
	}
	out := reqmgr.MaxiRequest{
		Destination: reqmgr.Destination(w.Channel),
		Version:     w.Version,
		Minis:       make([]reqmgr.MiniRequest, len(w.Requests)),
	}
	for i, m := range w.Requests {
		mini := reqmgr.MiniRequest{
			ID:          reqmgr.MessageID(m.ID),
			Kind:        reqmgr.Kind(m.Kind),
			Destination: out.Destination,
			Priority:    reqmgr.Priority(m.Priority),
		}
		if len(m.Body) > 0 {
			mini.Body = m.Body
		}
		out.Minis[i] = mini
	}
	return out, nil
}

// EncodeMaxiResponse serializes a MaxiResponse to CBOR bytes.
func EncodeMaxiResponse(resp reqmgr.MaxiResponse) ([]byte, error) {
	w := wireMaxiResponse{Responses: make([]wireMiniResponse, len(resp.Minis))}
	for i, mini := range resp.Minis {
		value, err := marshalBody(mini.Value)
		if err != nil {
			return nil, diag.Wrap(diag.Fatal, diag.Code{Namespace: "wire", Number: 8}, err, "encode mini-response %d value", mini.ID)
		}
		w.Responses[i] = wireMiniResponse{
			ID:      uint64(mini.ID),
			Status:  int(mini.Status),
			Value:   value,
			Message: mini.Message,
		}
	}
	out, err := cbor.Marshal(w)
	if err != nil {
		return nil, diag.Wrap(diag.Fatal, diag.Code{Namespace: "wire", Number: 9}, err, "encode maxi-response")
	}
	return out, nil
}

// DecodeMaxiResponse parses bytes produced by EncodeMaxiResponse.
// Responses are correlated by message id, never by position, so the
// decoded list order is authoritative only for iteration.
func DecodeMaxiResponse(data []byte) (reqmgr.MaxiResponse, error) {
	var w wireMaxiResponse
	if err := cbor.Unmarshal(data, &w); err != nil {
		return reqmgr.MaxiResponse{}, diag.Wrap(diag.Operational, diag.Code{Namespace: "wire", Number: 10}, err, "decode maxi-response")
	}
	out := reqmgr.MaxiResponse{Minis: make([]reqmgr.MiniResponse, len(w.Responses))}
	for i, m := range w.Responses {
		mini := reqmgr.MiniResponse{
			ID:      reqmgr.MessageID(m.ID),
			Status:  reqmgr.Status(m.Status),
			Message: m.Message,
		}
		if len(m.Value) > 0 {
			mini.Value = m.Value
		}
		out.Minis[i] = mini
	}
	return out, nil
}
