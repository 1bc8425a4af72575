package model

import "encoding/json"

type MessageType string

const (
	MessageTypeHello     MessageType = "hello"
	MessageTypeCall      MessageType = "call"
	MessageTypeResult    MessageType = "result"
	MessageTypeChallenge MessageType = "challenge"
	MessageTypeSignature MessageType = "signature"
	MessageTypePing      MessageType = "ping"
	MessageTypePong      MessageType = "pong"
)

// Agent calls.
const (
	CallFindPrinters = "printers.find"
	CallPrint        = "print"
)

// --- WebSocket Messages ---

type AgentMessage struct {
	Type   MessageType     `json:"type"`
	UID    string          `json:"uid,omitempty"`
	Call   string          `json:"call,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"` // Keep raw to parse per call
	Data   string          `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// PrintConfig selects the printer a raw job is submitted to.
type PrintConfig struct {
	Printer string `json:"printer"`
}

// PrintData is one chunk of a print submission.
type PrintData struct {
	Type   string `json:"type"`
	Format string `json:"format"`
	Data   string `json:"data"`
}

// PrintParams is the params object of a print call.
type PrintParams struct {
	Config PrintConfig `json:"config"`
	Data   []PrintData `json:"data"`
}

// RawBase64 wraps base64 encoded printer-control bytes for a raw submission.
func RawBase64(content string) PrintData {
	return PrintData{Type: "raw", Format: "base64", Data: content}
}
