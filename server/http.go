package server

import (
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"pixlise-client/message"
	"pixlise-client/transport"
)

// HTTPHandler serves the engine as JSON-RPC 2.0 (method transport.HTTPMethod).
func (s *Server) HTTPHandler() (http.Handler, error) {
	rs := rpc.NewServer()
	rs.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rs.RegisterService(&EngineService{s: s}, "Engine"); err != nil {
		return nil, err
	}
	return rs, nil
}

// EngineService is the JSON-RPC receiver. Engine errors travel inside reply,
// so a JSON-RPC error always means the host could not run the call.
type EngineService struct {
	s *Server
}

func (e *EngineService) Invoke(r *http.Request, args *message.Request, reply *message.Response) error {
	*reply = *e.s.serve(r.Context(), 0, args)
	return nil
}

// Ping lets HTTP clients check the host before their first call.
func (e *EngineService) Ping(r *http.Request, args *struct{}, reply *string) error {
	*reply = transport.PingReply
	return nil
}
