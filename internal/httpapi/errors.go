package httpapi

import (
	"context"
	"errors"
	"strconv"

	"github.com/park285/goban-server/internal/engine/gtp"
	"github.com/park285/goban-server/internal/exercise"
	"github.com/park285/goban-server/internal/fetch"
	"github.com/park285/goban-server/internal/obslog"
	"github.com/park285/goban-server/internal/render"
	"github.com/park285/goban-server/internal/session"
	"github.com/park285/goban-server/internal/sgf"
	"github.com/park285/goban-server/pkg/gobandto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var errRemoteFetch = errors.New("remote fetch failed")

type scope int

const (
	scopeGame scope = iota
	scopeReview
	scopeExercise
)

// toDomainError maps a failure to its HTTP status and stable error body.
func toDomainError(err error, sc scope) (int, gobandto.DomainError) {
	var limit *session.LimitError
	var perr *gtp.ProtocolError
	switch {
	case errors.As(err, &limit):
		active := limit.Active
		return fasthttp.StatusTooManyRequests, gobandto.DomainError{
			Code:              gobandto.CodeConcurrencyLimit,
			Message:           "at most " + strconv.Itoa(limit.Limit) + " games at once",
			Retryable:         true,
			RetryAfterSeconds: int(limit.RetryAfter.Seconds()),
			ActiveGames:       &active,
		}
	case errors.Is(err, session.ErrNotFound) && sc == scopeGame:
		return fasthttp.StatusGone, gobandto.DomainError{Code: gobandto.CodeGameExpired}
	case errors.Is(err, session.ErrNotFound), errors.Is(err, exercise.ErrNotFound):
		return fasthttp.StatusNotFound, gobandto.DomainError{Code: gobandto.CodeNotFound, Message: err.Error()}
	case errors.Is(err, session.ErrForbidden):
		return fasthttp.StatusForbidden, gobandto.DomainError{Code: gobandto.CodeForbidden, Message: err.Error()}
	case errors.Is(err, session.ErrOutOfRange):
		return fasthttp.StatusBadRequest, gobandto.DomainError{Code: gobandto.CodeOutOfRange, Message: err.Error()}
	case errors.Is(err, sgf.ErrParse):
		return fasthttp.StatusBadRequest, gobandto.DomainError{Code: gobandto.CodeParseFailure, Message: err.Error()}
	case errors.Is(err, session.ErrInvalidMove),
		errors.Is(err, exercise.ErrInvalid),
		errors.Is(err, exercise.ErrNoAnswer),
		errors.Is(err, render.ErrBoardSize),
		errors.Is(err, fetch.ErrInvalidURL):
		return fasthttp.StatusBadRequest, gobandto.DomainError{Code: gobandto.CodeBadRequest, Message: err.Error()}
	case errors.Is(err, fetch.ErrTooLarge):
		return fasthttp.StatusRequestEntityTooLarge, gobandto.DomainError{Code: gobandto.CodeRemoteFetch, Message: err.Error()}
	case errors.Is(err, errRemoteFetch):
		return fasthttp.StatusBadGateway, gobandto.DomainError{Code: gobandto.CodeRemoteFetch, Message: err.Error(), Retryable: true}
	case errors.Is(err, session.ErrShuttingDown):
		return fasthttp.StatusServiceUnavailable, gobandto.DomainError{Code: gobandto.CodeUnavailable, Retryable: true}
	case errors.Is(err, session.ErrEngineUnavailable), errors.Is(err, gtp.ErrSpawn):
		return fasthttp.StatusServiceUnavailable, gobandto.DomainError{Code: gobandto.CodeEngineUnavailable, Message: err.Error(), Retryable: true}
	case errors.Is(err, gtp.ErrUnparseable):
		return fasthttp.StatusBadGateway, gobandto.DomainError{Code: gobandto.CodeUnparseableAnalysis, Message: err.Error(), Retryable: true}
	case errors.As(err, &perr):
		return fasthttp.StatusBadGateway, gobandto.DomainError{Code: gobandto.CodeEngineError, Message: err.Error()}
	case errors.Is(err, gtp.ErrSessionBroken),
		errors.Is(err, gtp.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return fasthttp.StatusBadGateway, gobandto.DomainError{Code: gobandto.CodeEngineError, Message: err.Error(), Retryable: true}
	default:
		return fasthttp.StatusInternalServerError, gobandto.DomainError{Code: gobandto.CodeInternal, Message: "internal error"}
	}
}

func writeError(ctx *fasthttp.RequestCtx, err error, sc scope) {
	status, body := toDomainError(err, sc)
	if status >= fasthttp.StatusInternalServerError {
		obslog.L().Warn("request_failed",
			zap.String("path", string(ctx.Path())),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeDomainError(ctx, status, body)
}

func writeDomainError(ctx *fasthttp.RequestCtx, status int, body gobandto.DomainError) {
	if body.RetryAfterSeconds > 0 {
		ctx.Response.Header.Set(fasthttp.HeaderRetryAfter, strconv.Itoa(body.RetryAfterSeconds))
	}
	writeJSON(ctx, status, body)
}
