package httpapi

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/park285/goban-server/internal/exercise"
	"github.com/park285/goban-server/internal/gamelog"
	"github.com/park285/goban-server/internal/metrics"
	"github.com/park285/goban-server/internal/obslog"
	"github.com/park285/goban-server/internal/session"
	"github.com/park285/goban-server/pkg/gobandto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Fetcher downloads remote records for import.
type Fetcher interface {
	Get(ctx context.Context, url string) (string, error)
}

type Deps struct {
	Manager   *session.Manager
	Exercises exercise.Store
	GameLog   gamelog.Repository
	Fetcher   Fetcher
	StaticDir string
	// RequestTimeout bounds the engine work done for one request.
	RequestTimeout time.Duration
}

type route struct {
	method  string
	path    string
	handler fasthttp.RequestHandler
}

type Server struct {
	mgr            *session.Manager
	exercises      exercise.Store
	gameLog        gamelog.Repository
	fetcher        Fetcher
	requestTimeout time.Duration
	logger         *zap.Logger

	routes  map[string]route
	static  fasthttp.RequestHandler
	metrics fasthttp.RequestHandler
}

func New(d Deps) *Server {
	s := &Server{
		mgr:            d.Manager,
		exercises:      d.Exercises,
		gameLog:        d.GameLog,
		fetcher:        d.Fetcher,
		requestTimeout: d.RequestTimeout,
		logger:         obslog.Named("http"),
		metrics:        fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()),
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = 2 * time.Minute
	}
	if d.StaticDir != "" {
		if st, err := os.Stat(d.StaticDir); err == nil && st.IsDir() {
			fs := &fasthttp.FS{Root: d.StaticDir, IndexNames: []string{"index.html"}}
			s.static = fs.NewRequestHandler()
		} else {
			s.logger.Warn("static_dir_missing", zap.String("dir", d.StaticDir))
		}
	}

	s.routes = make(map[string]route)
	for _, r := range []route{
		{fasthttp.MethodPost, "/api/game/new", s.gameNew},
		{fasthttp.MethodPost, "/api/game/play", s.gamePlay},
		{fasthttp.MethodPost, "/api/game/heartbeat", s.gameHeartbeat},
		{fasthttp.MethodPost, "/api/game/close", s.gameClose},
		{fasthttp.MethodPost, "/api/game/hint", s.gameHint},
		{fasthttp.MethodPost, "/api/game/undo", s.gameUndo},
		{fasthttp.MethodPost, "/api/game/score", s.gameScore},
		{fasthttp.MethodGet, "/api/game/history", s.gameHistory},
		{fasthttp.MethodPost, "/api/review/import", s.reviewImport},
		{fasthttp.MethodPost, "/api/review/close", s.reviewClose},
		{fasthttp.MethodGet, "/api/review", s.reviewGet},
		{fasthttp.MethodGet, "/api/review/position", s.reviewPosition},
		{fasthttp.MethodGet, "/api/review/analysis", s.reviewAnalysis},
		{fasthttp.MethodGet, "/api/review/board.png", s.reviewBoard},
		{fasthttp.MethodPost, "/api/exercise", s.exerciseCreate},
		{fasthttp.MethodGet, "/api/exercise", s.exerciseList},
		{fasthttp.MethodDelete, "/api/exercise", s.exerciseDelete},
		{fasthttp.MethodGet, "/healthz", s.healthz},
	} {
		s.routes[r.method+" "+r.path] = r
	}
	return s
}

// Handler dispatches API routes, /metrics and the static fallback.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		started := time.Now()
		path := string(ctx.Path())
		label := "static"

		switch r, ok := s.routes[string(ctx.Method())+" "+path]; {
		case ok:
			label = r.path
			r.handler(ctx)
		case path == "/metrics":
			label = path
			s.metrics(ctx)
		case s.isAPIPath(path):
			label = "unmatched"
			writeDomainError(ctx, fasthttp.StatusNotFound, gobandto.DomainError{Code: gobandto.CodeNotFound, Message: "no such route"})
		case s.static != nil:
			s.static(ctx)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}

		status := ctx.Response.StatusCode()
		metrics.HTTPRequests.WithLabelValues(label, strconv.Itoa(status)).Inc()
		s.logger.Debug("http_request",
			zap.String("method", string(ctx.Method())),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(started)),
		)
	}
}

func (s *Server) isAPIPath(path string) bool {
	return len(path) >= 5 && path[:5] == "/api/"
}

// requestContext bounds the engine and store work of one request. fasthttp's
// RequestCtx is not cancelled when the client goes away.
func (s *Server) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.requestTimeout)
}

func (s *Server) healthz(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode response", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(body)
}

// decodeJSON reads an optional JSON body; an empty body leaves v untouched.
func decodeJSON(ctx *fasthttp.RequestCtx, v any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeDomainError(ctx, fasthttp.StatusBadRequest, gobandto.DomainError{Code: gobandto.CodeBadRequest, Message: "malformed json body"})
		return false
	}
	return true
}

func queryInt(ctx *fasthttp.RequestCtx, key string, def int) (int, bool) {
	raw := ctx.QueryArgs().Peek(key)
	if len(raw) == 0 {
		return def, true
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		writeDomainError(ctx, fasthttp.StatusBadRequest, gobandto.DomainError{Code: gobandto.CodeBadRequest, Message: key + " must be an integer"})
		return 0, false
	}
	return n, true
}
