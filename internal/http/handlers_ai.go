package httpx

import (
	"net/http"
	"time"

	"github.com/macdonc2/llm-app-template/internal/service/rag"
	"github.com/macdonc2/llm-app-template/internal/service/summarize"
	"github.com/macdonc2/llm-app-template/internal/ws"
)

func (r *Router) handleRAGQuery(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	user, ok := r.currentUser(w, req)
	if !ok {
		return
	}
	var payload queryRequest
	if err := decodeJSON(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.TopK == 0 {
		payload.TopK = rag.DefaultTopK
	}
	answer, err := r.rag.Query(req.Context(), user, payload.Query, payload.TopK)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (r *Router) handleIngest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	user, ok := r.currentUser(w, req)
	if !ok {
		return
	}
	var payload ingestRequest
	if err := decodeJSON(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ids, err := r.rag.Ingest(req.Context(), user, payload.Documents)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
}

func (r *Router) handleSummarize(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	user, ok := r.currentUser(w, req)
	if !ok {
		return
	}
	var payload queryRequest
	if err := decodeJSON(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.TopK == 0 {
		payload.TopK = summarize.DefaultTopK
	}
	summary, err := r.summarize.Summarize(req.Context(), user, payload.Query, payload.TopK)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (r *Router) handleAgentAsk(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	user, ok := r.currentUser(w, req)
	if !ok {
		return
	}
	var payload agentRequest
	if err := decodeJSON(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	response, err := r.agent.Ask(req.Context(), user, payload.Query)
	if err != nil {
		status, _ := statusFor(err)
		if status >= http.StatusInternalServerError {
			r.recordAgentRun("failed")
		} else {
			r.recordAgentRun("rejected")
		}
		r.writeServiceError(w, req, err)
		return
	}
	r.recordAgentRun("completed")
	writeJSON(w, http.StatusOK, map[string]string{"response": response})
}

func (r *Router) handleAgentEvents(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	user, ok := r.currentUser(w, req)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.events.Register(user.ID, client)
	defer func() {
		r.events.Unregister(user.ID, client)
		client.Close()
	}()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleAgentWS(w http.ResponseWriter, req *http.Request) {
	user, ok := r.currentUser(w, req)
	if !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.events.Register(user.ID, client)
	go func() {
		defer func() {
			r.events.Unregister(user.ID, client)
			client.Close()
		}()
		client.Serve()
	}()
}
