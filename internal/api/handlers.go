package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gaspardpetit/mcp-bridge/internal/logx"
	"github.com/gaspardpetit/mcp-bridge/internal/session"
	"github.com/gaspardpetit/mcp-bridge/internal/status"
)

type handlers struct {
	sess       *session.Session
	configured bool
}

// response is the envelope every tool endpoint returns.
type response struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    int             `json:"code,omitempty"`
}

func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "MCP Bridge API is running",
		"connected": h.sess.State() == session.StateReady,
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"mcp_connected": h.sess.State() == session.StateReady,
		"state":         h.sess.State().String(),
		"config_loaded": h.configured,
	})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"server": h.sess.ServerName(),
		"state":  h.sess.State().String(),
	}
	if pid := h.sess.Pid(); pid > 0 {
		if child, err := status.Collect(pid); err == nil {
			out["child"] = child
		} else {
			logx.Log.Debug().Err(err).Int("pid", pid).Msg("child status probe failed")
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) listTools(w http.ResponseWriter, r *http.Request) {
	result, err := h.sess.Call(r.Context(), "tools/list", nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

type toolCallRequest struct {
	ToolName   string          `json:"tool_name"`
	Parameters json.RawMessage `json:"parameters"`
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func (h *handlers) callTool(w http.ResponseWriter, r *http.Request) {
	var req toolCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.ToolName == "" {
		writeBadRequest(w, "tool_name is required")
		return
	}
	result, err := h.sess.Call(r.Context(), "tools/call", toolCallParams{Name: req.ToolName, Arguments: req.Parameters})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

type rawRequestBody struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (h *handlers) rawRequest(w http.ResponseWriter, r *http.Request) {
	var req rawRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Method == "" {
		writeBadRequest(w, "method is required")
		return
	}
	if len(req.Params) == 0 {
		req.Params = json.RawMessage(`{}`)
	}
	result, err := h.sess.Call(r.Context(), req.Method, req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

func (h *handlers) connect(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Connect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Result: json.RawMessage(`{"state":"ready"}`)})
}

func (h *handlers) disconnect(w http.ResponseWriter, r *http.Request) {
	h.sess.Disconnect()
	writeJSON(w, http.StatusOK, response{Success: true, Result: json.RawMessage(`{"state":"closed"}`)})
}

func writeResult(w http.ResponseWriter, result json.RawMessage) {
	if len(result) == 0 {
		result = json.RawMessage(`{}`)
	}
	writeJSON(w, http.StatusOK, response{Success: true, Result: result})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, response{Error: msg})
}

// writeError maps session errors onto HTTP statuses. Remote application
// errors pass through verbatim with their JSON-RPC code; the bridge never
// attempts protocol-level recovery on the caller's behalf.
func writeError(w http.ResponseWriter, err error) {
	var re *session.RemoteError
	switch {
	case errors.As(err, &re):
		writeJSON(w, http.StatusBadGateway, response{Error: re.Message, Code: re.Code})
	case errors.Is(err, session.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, response{Error: err.Error()})
	case errors.Is(err, session.ErrNotConnected):
		writeJSON(w, http.StatusServiceUnavailable, response{Error: err.Error()})
	case errors.Is(err, session.ErrSpawn), errors.Is(err, session.ErrHandshake), errors.Is(err, session.ErrTransport):
		writeJSON(w, http.StatusBadGateway, response{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, response{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Msg("write response")
	}
}
