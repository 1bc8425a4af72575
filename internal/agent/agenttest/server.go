package agenttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
)

// Server is an in-process print agent speaking the bridge's websocket
// protocol. With RequireSignature set, every call is preceded by a challenge
// and the signature the client returns is recorded.
type Server struct {
	Printers         []string
	PrintError       string
	RequireSignature bool
	PingOnConnect    bool

	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	certificate string
	signatures  []string
	prints      []model.PrintParams
	pongs       int
	conns       []*websocket.Conn
}

// NewServer starts the agent; it is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveWS))
	t.Cleanup(s.Close)
	return s
}

// URL is the ws:// address of the agent.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

// DropConnections closes every open socket from the agent side.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) Certificate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.certificate
}

func (s *Server) Signatures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.signatures...)
}

func (s *Server) Prints() []model.PrintParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PrintParams(nil), s.prints...)
}

func (s *Server) Pongs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pongs
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()
	defer conn.Close()

	if s.PingOnConnect {
		if err := conn.WriteJSON(model.AgentMessage{Type: model.MessageTypePing}); err != nil {
			return
		}
	}

	waiting := make(map[string]model.AgentMessage)
	for {
		var msg model.AgentMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case model.MessageTypeHello:
			s.mu.Lock()
			s.certificate = msg.Data
			s.mu.Unlock()

		case model.MessageTypePong:
			s.mu.Lock()
			s.pongs++
			s.mu.Unlock()

		case model.MessageTypeCall:
			if s.RequireSignature {
				waiting[msg.UID] = msg
				challenge := model.AgentMessage{Type: model.MessageTypeChallenge, UID: msg.UID, Data: "challenge:" + msg.UID}
				if err := conn.WriteJSON(challenge); err != nil {
					return
				}
				continue
			}
			if err := conn.WriteJSON(s.answer(msg)); err != nil {
				return
			}

		case model.MessageTypeSignature:
			call, ok := waiting[msg.UID]
			if !ok {
				continue
			}
			delete(waiting, msg.UID)
			s.mu.Lock()
			s.signatures = append(s.signatures, msg.Data)
			s.mu.Unlock()
			if err := conn.WriteJSON(s.answer(call)); err != nil {
				return
			}
		}
	}
}

func (s *Server) answer(call model.AgentMessage) model.AgentMessage {
	res := model.AgentMessage{Type: model.MessageTypeResult, UID: call.UID}
	switch call.Call {
	case model.CallFindPrinters:
		raw, _ := json.Marshal(s.Printers)
		res.Result = raw

	case model.CallPrint:
		var params model.PrintParams
		if err := json.Unmarshal(call.Params, &params); err != nil {
			res.Error = "bad params: " + err.Error()
			return res
		}
		if s.PrintError != "" {
			res.Error = s.PrintError
			return res
		}
		s.mu.Lock()
		s.prints = append(s.prints, params)
		s.mu.Unlock()
		res.Result = json.RawMessage(`"ok"`)

	default:
		res.Error = "unknown call " + call.Call
	}
	return res
}
