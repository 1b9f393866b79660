// Package server exposes ingestion and grounded chat over HTTP, Server-Sent
// Events and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xhad/docrag/internal/logger"
	"github.com/xhad/docrag/internal/models"
	"github.com/xhad/docrag/internal/types"
	"github.com/xhad/docrag/pkg/ingest"
	"github.com/xhad/docrag/pkg/rag"
)

type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (models.IngestResult, error)
	Delete(ctx context.Context, collection, docID string) error
}

type Answerer interface {
	Answer(ctx context.Context, q rag.Question, emit func(rag.Event) error) error
}

type Config struct {
	Addr string
	// AllowedOrigin enables CORS and WebSocket access for one browser origin.
	AllowedOrigin  string
	MaxUploadBytes int64
	Collection     string
}

type Server struct {
	config   Config
	ingester Ingester
	answerer Answerer
	upgrader websocket.Upgrader
}

func New(config Config, ingester Ingester, answerer Answerer) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = 32 << 20
	}
	if config.Collection == "" {
		config.Collection = ingest.DefaultCollection
	}

	s := &Server{config: config, ingester: ingester, answerer: answerer}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /rag/ingest", s.handleIngest)
	mux.HandleFunc("POST /rag/chat/stream", s.handleChatStream)
	mux.HandleFunc("DELETE /rag/documents/{doc_id}", s.handleDelete)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s.withCORS(withLogging(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Starting server on %s", s.config.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeDetail(w, http.StatusBadRequest, "expected a multipart form with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Header.Get("Content-Type") != "application/pdf" {
		writeDetail(w, http.StatusBadRequest, "Only PDF supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	req := ingest.Request{
		PDF:        data,
		DocID:      r.FormValue("doc_id"),
		Collection: s.collection(r),
	}
	if req.DocID == "" {
		req.DocID = ingest.DocIDFromFilename(header.Filename)
	}
	if replace, err := strconv.ParseBool(r.URL.Query().Get("replace")); err == nil {
		req.ReplaceExisting = replace
	}

	result, err := s.ingester.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("doc_id")
	if err := s.ingester.Delete(r.Context(), s.collection(r), docID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"doc_id": docID, "status": "deleted"})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var q rag.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if q.Collection == "" {
		q.Collection = s.config.Collection
	}

	flusher, _ := w.(http.Flusher)
	started := false

	emit := func(e rag.Event) error {
		if !started {
			started = true
			h := w.Header()
			h.Set("Content-Type", "text/event-stream")
			h.Set("Cache-Control", "no-cache, no-transform")
			h.Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
		}

		var err error
		if e.Type == rag.EventDone {
			_, err = fmt.Fprint(w, "data: [DONE]\n\n")
		} else {
			var data []byte
			if data, err = json.Marshal(e); err == nil {
				_, err = fmt.Fprintf(w, "data: %s\n\n", data)
			}
		}
		if err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return r.Context().Err()
	}

	err := s.answerer.Answer(r.Context(), q, emit)
	if err != nil && !started {
		writeError(w, err)
	}
}

// wsRequest is one question sent over the socket. Content is accepted in
// place of message.
type wsRequest struct {
	rag.Question
	Content string `json:"content"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var mu sync.Mutex
	send := func(v any) error {
		mu.Lock()
		defer mu.Unlock()
		return conn.WriteJSON(v)
	}

	for {
		var msg wsRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read: %v", err)
			}
			return
		}
		if msg.Message == "" {
			msg.Message = msg.Content
		}
		if msg.Collection == "" {
			msg.Collection = s.config.Collection
		}

		err := s.answerer.Answer(r.Context(), msg.Question, func(e rag.Event) error { return send(e) })
		if err != nil && types.IsClientError(err) {
			_ = send(rag.Event{Type: rag.EventError, Message: err.Error()})
			_ = send(rag.Event{Type: rag.EventDone})
		}
	}
}

func (s *Server) collection(r *http.Request) string {
	if c := r.URL.Query().Get("collection"); c != "" {
		return c
	}
	return s.config.Collection
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.config.AllowedOrigin == "" {
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
	return s.config.AllowedOrigin == "*" || origin == s.config.AllowedOrigin
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	if s.config.AllowedOrigin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (s.config.AllowedOrigin == "*" || origin == s.config.AllowedOrigin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
