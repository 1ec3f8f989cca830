package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/google/wire"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/yola1107/parlor/internal/biz/engine"
	"github.com/yola1107/parlor/internal/conf"
	"github.com/yola1107/parlor/internal/service"
	"github.com/yola1107/parlor/library/xgo"
	"github.com/yola1107/parlor/pkg/codes"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHub, NewFeedConfig, NewHTTPServer, NewTelemetry)

var _ transport.Server = (*HTTPServer)(nil)

// errorBody 错误只回给操作者本人
type errorBody struct {
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	Ephemeral bool   `json:"ephemeral"`
}

type HTTPServer struct {
	*http.Server
	svc      *service.Parlor
	hub      *Hub
	tel      *Telemetry
	limit    *limiter
	timeout  time.Duration
	upgrader *websocket.Upgrader
	stop     chan struct{}
}

func NewFeedConfig(c *conf.HTTP) *FeedConfig {
	return defaultFeedConfig(c.FeedBufferSize)
}

func NewHTTPServer(c *conf.HTTP, svc *service.Parlor, hub *Hub, tel *Telemetry) *HTTPServer {
	s := &HTTPServer{
		svc:     svc,
		hub:     hub,
		tel:     tel,
		limit:   newLimiter(c.ActionsPerSec, c.ActionBurst),
		timeout: time.Duration(c.TimeoutMs) * time.Millisecond,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		stop: make(chan struct{}),
	}
	s.Server = &http.Server{
		Addr:              c.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if s.tel != nil {
		r.HandleFunc("/metrics", s.metrics).Methods(http.MethodGet)
	}
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/games", s.games).Methods(http.MethodGet)
	v1.HandleFunc("/games", s.start).Methods(http.MethodPost)
	v1.HandleFunc("/actions", s.act).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{key}", s.session).Methods(http.MethodGet)
	v1.HandleFunc("/channels/{channel}/feed", s.feed).Methods(http.MethodGet)
	r.Use(recovery)
	return r
}

func (s *HTTPServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	log.Infof("[HTTP] server listening on: %s", lis.Addr())
	xgo.SafeGo(s.gcLoop)
	s.BaseContext = func(net.Listener) context.Context { return ctx }
	if err := s.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	log.Info("[HTTP] server stopping")
	close(s.stop)
	s.hub.Close()
	return s.Shutdown(ctx)
}

func (s *HTTPServer) gcLoop() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if n := s.limit.gc(); n > 0 {
				log.Debugf("rate limiters released. n=%d", n)
			}
		}
	}
}

func (s *HTTPServer) start(w http.ResponseWriter, r *http.Request) {
	var req engine.StartRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.limit.allow(req.RequesterID) {
		writeError(w, codes.ErrRateLimited)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	reply, err := s.svc.Start(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *HTTPServer) act(w http.ResponseWriter, r *http.Request) {
	var ev engine.ActionEvent
	if !decode(w, r, &ev) {
		return
	}
	if !s.limit.allow(ev.ActorID) {
		writeError(w, codes.ErrRateLimited)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	reply, err := s.svc.Act(ctx, ev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *HTTPServer) session(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	reply, err := s.svc.Session(ctx, mux.Vars(r)["key"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *HTTPServer) games(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Games())
}

func (s *HTTPServer) feed(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	snapshot, err := s.svc.Feed(ctx, channel)
	cancel()
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("feed upgrade failed. channel=%s err=%v", channel, err)
		return
	}
	s.hub.subscribe(channel, conn, snapshot)
}

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	h := s.svc.Health(ctx)
	status := http.StatusOK
	if !h.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *HTTPServer) metrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.tel.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer xgo.RecoverFromError(func(e any) {
			log.Errorf("http handler panic. path=%s err=%v", r.URL.Path, e)
			writeError(w, codes.ErrInternal)
		})
		next.ServeHTTP(w, r)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, codes.Validation("malformed request body"))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	e := kerrors.FromError(err)
	status := int(e.Code)
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody{Reason: e.Reason, Message: service.Message(err), Ephemeral: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("write response failed. err=%v", err)
	}
}
