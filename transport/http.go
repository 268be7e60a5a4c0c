package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	rpc "github.com/gorilla/rpc/v2/json2"

	"pixlise-client/message"
	"pixlise-client/rpcerr"
)

// HTTPMethod is the JSON-RPC 2.0 method an engine host serves over HTTP.
const HTTPMethod = "Engine.Invoke"

// HTTPPingMethod answers PingReply without touching the engine.
const (
	HTTPPingMethod = "Engine.Ping"
	PingReply      = "pong"
)

// HTTPBinding calls an engine host with JSON-RPC 2.0 over HTTP POST.
type HTTPBinding struct {
	url    string
	client *http.Client
}

func NewHTTPBinding(url string, client *http.Client) *HTTPBinding {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPBinding{url: url, client: client}
}

func (b *HTTPBinding) Invoke(ctx context.Context, call *message.Call) (string, error) {
	body, err := rpc.EncodeClientRequest(HTTPMethod, call.Request())
	if err != nil {
		return "", rpcerr.Wrap(rpcerr.KindInvalidArgument, call.Operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return "", rpcerr.Wrap(rpcerr.KindBindingUnavailable, call.Operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", rpcerr.FromContext(call.Operation, ctx.Err())
		}
		return "", rpcerr.Wrap(rpcerr.KindBindingUnavailable, call.Operation, err)
	}
	defer cleanlyClose(res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", rpcerr.Wrap(rpcerr.KindBindingUnavailable, call.Operation,
			fmt.Errorf("received status code: %d", res.StatusCode))
	}

	// A JSON-RPC level error means the host could not run the call at all;
	// engine failures come back inside the response envelope.
	resp := &message.Response{}
	if err := rpc.DecodeClientResponse(res.Body, resp); err != nil {
		return "", rpcerr.Wrap(rpcerr.KindBindingUnavailable, call.Operation, err)
	}
	return Replay(call, resp)
}

// Ping checks that an engine host answers JSON-RPC at the binding's URL.
func (b *HTTPBinding) Ping(ctx context.Context) error {
	body, err := rpc.EncodeClientRequest(HTTPPingMethod, &struct{}{})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer cleanlyClose(res.Body)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("ping %s: received status code: %d", b.url, res.StatusCode)
	}
	var reply string
	if err := rpc.DecodeClientResponse(res.Body, &reply); err != nil {
		return fmt.Errorf("ping %s: %w", b.url, err)
	}
	if reply != PingReply {
		return fmt.Errorf("ping %s: unexpected reply %q", b.url, reply)
	}
	return nil
}

// cleanlyClose drains the body so the connection can be reused.
func cleanlyClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}

func (b *HTTPBinding) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
