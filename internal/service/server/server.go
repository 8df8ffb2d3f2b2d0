// Package server exposes the ledger over HTTP and pushes new messages to
// connected users over websockets.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"iou_ledger/internal/service/auth"
	"iou_ledger/internal/service/directory"
	"iou_ledger/internal/service/messages"
	"iou_ledger/internal/service/notes"
	"iou_ledger/internal/service/nullifier"
	"iou_ledger/internal/service/transfer"
	"iou_ledger/internal/utils/log"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

type (
	// Queue holds notifications for users that are not connected. The redis
	// service and the in-memory cache both satisfy it.
	Queue interface {
		RPush(ctx context.Context, key string, values ...string) error
		// Drain returns and removes the whole list in one atomic step.
		Drain(ctx context.Context, key string) ([]string, error)
	}

	Services struct {
		Directory  *directory.Directory
		Notes      *notes.NoteStore
		Histories  *notes.HistoryStore
		Messages   *messages.Service
		Nullifiers *nullifier.Registry
		Transfers  *transfer.Orchestrator
		Auth       *auth.Service
	}

	Options struct {
		// RateLimit is requests per second across all clients; 0 disables it.
		RateLimit      float64
		RateBurst      int
		RequireSession bool
	}

	HttpServer struct {
		mu     sync.RWMutex
		mapper map[string]*wsClient

		svc     Services
		queue   Queue
		opts    Options
		limiter *rate.Limiter
	}

	wsClient struct {
		mu   sync.Mutex
		conn *websocket.Conn
	}
)

func NewHttpServer(svc Services, queue Queue, opts Options) *HttpServer {
	s := &HttpServer{
		mapper: make(map[string]*wsClient),
		svc:    svc,
		queue:  queue,
		opts:   opts,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if svc.Messages != nil {
		svc.Messages.SetNotifier(s)
	}
	return s
}

func (s *HttpServer) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests, s.rateLimit)

	r.HandleFunc("/createUser", s.CreateUser()).Methods(http.MethodPost)
	r.HandleFunc("/getUser", s.GetUser()).Methods(http.MethodPost)
	r.HandleFunc("/getNotes", s.GetNotes()).Methods(http.MethodPost)
	r.HandleFunc("/getNoteHistory", s.GetNoteHistory()).Methods(http.MethodPost)
	r.HandleFunc("/readMessages", s.ReadMessages()).Methods(http.MethodPost)
	r.HandleFunc("/verifyNullifier", s.VerifyNullifier()).Methods(http.MethodPost)
	r.HandleFunc("/challenge", s.Challenge()).Methods(http.MethodPost)
	r.HandleFunc("/verifyChallenge", s.VerifyChallenge()).Methods(http.MethodPost)
	r.HandleFunc("/validateSession", s.ValidateSession()).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.Logout()).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.HandleInitWS()).Methods(http.MethodGet)

	writes := r.NewRoute().Subrouter()
	writes.Use(s.requireSession)
	writes.HandleFunc("/saveNote", s.SaveNote()).Methods(http.MethodPost)
	writes.HandleFunc("/saveNoteHistory", s.SaveNoteHistory()).Methods(http.MethodPost)
	writes.HandleFunc("/sendMessage", s.SendMessage()).Methods(http.MethodPost)
	writes.HandleFunc("/storeNullifier", s.StoreNullifier()).Methods(http.MethodPost)
	writes.HandleFunc("/transferNoteHistory", s.TransferNoteHistory()).Methods(http.MethodPost)

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *HttpServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
