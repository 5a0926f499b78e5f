package extism

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/robbyt/go-scriptsvc/platform/envelope"
)

// request is the JSON document passed to the entry point.
type request struct {
	Message *wireMessage   `json:"message,omitempty"`
	Vars    map[string]any `json:"vars"`
}

type wireMessage struct {
	ID       string            `json:"id"`
	Payload  string            `json:"payload"`
	Metadata map[string]string `json:"metadata"`
}

// response is what the entry point may return. Every field is optional; a metadata value of
// null deletes the key.
type response struct {
	Payload  *string            `json:"payload"`
	Metadata map[string]*string `json:"metadata"`
	Vars     map[string]any     `json:"vars"`
}

func encodeRequest(env envelope.Envelope, vars map[string]any) ([]byte, error) {
	req := request{Vars: vars}
	if req.Vars == nil {
		req.Vars = map[string]any{}
	}
	if env != nil {
		req.Message = &wireMessage{
			ID:       env.ID(),
			Payload:  string(env.Payload()),
			Metadata: env.Metadata(),
		}
	}
	return json.Marshal(req)
}

// decodeResponse parses output. Output that is not a JSON object is returned as the "result"
// variable, decoded when it is any other JSON value and as a string otherwise.
func decodeResponse(output []byte) (*response, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return &response{}, nil
	}

	d := json.NewDecoder(bytes.NewReader(trimmed))
	d.UseNumber()
	if trimmed[0] == '{' {
		var resp response
		if err := d.Decode(&resp); err != nil {
			return nil, fmt.Errorf("invalid response document: %w", err)
		}
		for k, val := range resp.Vars {
			resp.Vars[k] = fixNumbers(val)
		}
		return &resp, nil
	}

	var value any
	if err := d.Decode(&value); err != nil {
		value = string(output)
	}
	return &response{Vars: map[string]any{"result": fixNumbers(value)}}, nil
}

func (r *response) apply(env envelope.Envelope) {
	if env == nil {
		return
	}
	if r.Payload != nil {
		env.SetPayload([]byte(*r.Payload))
	}
	for k, v := range r.Metadata {
		if v == nil {
			env.DeleteMetadata(k)
			continue
		}
		env.SetMetadata(k, *v)
	}
}

// fixNumbers turns json.Number into int64 when integral and float64 otherwise.
func fixNumbers(data any) any {
	switch v := data.(type) {
	case map[string]any:
		for k, val := range v {
			v[k] = fixNumbers(val)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = fixNumbers(item)
		}
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return data
	}
}
