package clients

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcHandler func(params []json.RawMessage) (any, error)

// fakeNode is a minimal JSON-RPC endpoint answering single requests.
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    map[string]int
}

func newFakeNode(t *testing.T, handlers map[string]rpcHandler) (*fakeNode, string) {
	t.Helper()
	n := &fakeNode{handlers: handlers, calls: map[string]int{}}
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	return n, srv.URL
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	} else if result, err := h(req.Params); err != nil {
		resp["error"] = map[string]any{"code": -32000, "message": err.Error()}
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
