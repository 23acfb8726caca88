package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/flowgrid/internal/engine"
)

// Client dispatches one named-runner invocation to a remote worker and
// returns its outputs. Implementations must be safe for concurrent use.
type Client interface {
	Invoke(ctx context.Context, runner string, args map[string]cty.Value) ([]cty.Value, error)
}

// RemoteWorker runs each task by resolving it into a named invocation
// and shipping it through a Client. Only tasks whose runners carry a
// registry name are dispatchable; the arguments must survive the wire
// format (cty values serialized as typed JSON).
type RemoteWorker struct {
	client Client
	wg     sync.WaitGroup
}

// NewRemote constructs a remote backend over the given client.
func NewRemote(client Client) *RemoteWorker {
	return &RemoteWorker{client: client}
}

// RunEl dispatches the task asynchronously.
func (w *RemoteWorker) RunEl(ctx context.Context, task *engine.Task, done func(error)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		name, args, err := task.Invocation()
		if err != nil {
			done(err)
			return
		}
		outputs, err := w.client.Invoke(ctx, name, args)
		if err != nil {
			done(err)
			return
		}
		done(task.Complete(outputs))
	}()
}

// Close waits for every in-flight dispatch to report.
func (w *RemoteWorker) Close() error {
	w.wg.Wait()
	return nil
}

// wireValue carries one cty value with its type over JSON.
type wireValue struct {
	Type  json.RawMessage `json:"type"`
	Value json.RawMessage `json:"value"`
}

type invokeRequest struct {
	Runner string               `json:"runner"`
	Args   map[string]wireValue `json:"args"`
}

type invokeResponse struct {
	Outputs []wireValue `json:"outputs,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func encodeValue(v cty.Value) (wireValue, error) {
	t := v.Type()
	tb, err := ctyjson.MarshalType(t)
	if err != nil {
		return wireValue{}, fmt.Errorf("encoding value type: %w", err)
	}
	vb, err := ctyjson.Marshal(v, t)
	if err != nil {
		return wireValue{}, fmt.Errorf("encoding value: %w", err)
	}
	return wireValue{Type: tb, Value: vb}, nil
}

func decodeValue(w wireValue) (cty.Value, error) {
	t, err := ctyjson.UnmarshalType(w.Type)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decoding value type: %w", err)
	}
	v, err := ctyjson.Unmarshal(w.Value, t)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decoding value: %w", err)
	}
	return v, nil
}

// HTTPClient implements Client against the handler served by Handler.
type HTTPClient struct {
	url string
	hc  *http.Client
}

// NewHTTPClient constructs a client for a worker service at url. A nil
// http.Client falls back to http.DefaultClient.
func NewHTTPClient(url string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPClient{url: url, hc: hc}
}

// Invoke posts the invocation and decodes the outputs.
func (c *HTTPClient) Invoke(ctx context.Context, runner string, args map[string]cty.Value) ([]cty.Value, error) {
	req := invokeRequest{Runner: runner, Args: make(map[string]wireValue, len(args))}
	for name, v := range args {
		wv, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		req.Args[name] = wv
	}
	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	var resp invokeResponse
	if err := sonic.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("worker service returned status %s with undecodable body", httpResp.Status)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("remote runner %q: %s", runner, resp.Error)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker service returned status %s", httpResp.Status)
	}
	outputs := make([]cty.Value, len(resp.Outputs))
	for i, wv := range resp.Outputs {
		outputs[i], err = decodeValue(wv)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
	}
	return outputs, nil
}

// Handler serves the worker side of the remote backend: it resolves the
// named runner, invokes it with the decoded arguments, and returns the
// outputs. resolve maps a registry name to a runner.
func Handler(resolve func(name string) (engine.Runner, bool)) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(rw, http.StatusBadRequest, err)
			return
		}
		var req invokeRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			writeError(rw, http.StatusBadRequest, err)
			return
		}
		runner, ok := resolve(req.Runner)
		if !ok {
			writeError(rw, http.StatusNotFound, fmt.Errorf("unknown runner %q", req.Runner))
			return
		}
		args := make(map[string]cty.Value, len(req.Args))
		for name, wv := range req.Args {
			args[name], err = decodeValue(wv)
			if err != nil {
				writeError(rw, http.StatusBadRequest, fmt.Errorf("argument %q: %w", name, err))
				return
			}
		}
		outputs, err := runner.Run(r.Context(), args)
		if err != nil {
			writeError(rw, http.StatusInternalServerError, err)
			return
		}
		resp := invokeResponse{Outputs: make([]wireValue, len(outputs))}
		for i, v := range outputs {
			resp.Outputs[i], err = encodeValue(v)
			if err != nil {
				writeError(rw, http.StatusInternalServerError, fmt.Errorf("output %d: %w", i, err))
				return
			}
		}
		writeJSON(rw, http.StatusOK, resp)
	})
}

func writeError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, invokeResponse{Error: err.Error()})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	rw.Write(body)
}
