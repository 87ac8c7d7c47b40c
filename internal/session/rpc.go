package session

import "encoding/json"

// JSON-RPC 2.0 envelope for the operator protocol.

const jsonrpcVersion = "2.0"

const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

func rpcResult(id any, result any) []byte {
	b, _ := json.Marshal(rpcResponse{JSONRPC: jsonrpcVersion, ID: id, Result: result})
	return b
}

func rpcFailure(id any, code int, message string, data any) []byte {
	b, _ := json.Marshal(rpcResponse{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Error:   &rpcError{Code: code, Message: message, Data: data},
	})
	return b
}

// Operator method parameter shapes.

type getLogParams struct {
	ChargerSN      string `json:"charger_sn"`
	BeginTimestamp string `json:"begin_timestamp"`
	EndTimestamp   string `json:"end_timestamp"`
}

type sendCallParams struct {
	Charger string          `json:"charger"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type defaultResponseParams struct {
	Charger string          `json:"charger"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}
