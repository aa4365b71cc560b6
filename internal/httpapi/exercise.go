package httpapi

import (
	"strings"

	"github.com/park285/goban-server/internal/engine/gtp"
	"github.com/park285/goban-server/internal/exercise"
	"github.com/park285/goban-server/internal/metrics"
	"github.com/park285/goban-server/pkg/gobandto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// exerciseCreate cuts an exercise from one of the caller's reviews, using its
// cached analysis when there is one, or from editor SGF text.
func (s *Server) exerciseCreate(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	var req gobandto.ExerciseRequest
	if !decodeJSON(ctx, &req) {
		return
	}

	var (
		ex  *exercise.Exercise
		err error
	)
	switch {
	case strings.TrimSpace(req.ReviewID) != "":
		r, rerr := s.mgr.ReviewRecord(sid, req.ReviewID)
		if rerr != nil {
			writeError(ctx, rerr, scopeReview)
			return
		}
		var an *gtp.Analysis
		if a, ok := s.mgr.CachedAnalysis(r.ID, req.MoveIndex); ok {
			an = &a
		}
		ex, err = exercise.FromGame(r.Game, req.MoveIndex, req.Category, an, r.Raw())
	case strings.TrimSpace(req.SGF) != "":
		ex, err = exercise.FromSGF(req.SGF, req.MoveIndex, req.Category)
	default:
		writeDomainError(ctx, fasthttp.StatusBadRequest, gobandto.DomainError{Code: gobandto.CodeBadRequest, Message: "reviewId or sgf is required"})
		return
	}
	if err != nil {
		writeError(ctx, err, scopeExercise)
		return
	}
	ex.ClientID = sid

	sctx, cancel := s.requestContext()
	defer cancel()
	if err := s.exercises.Save(sctx, ex); err != nil {
		writeError(ctx, err, scopeExercise)
		return
	}
	metrics.ExercisesSaved.Inc()
	s.logger.Info("exercise_saved",
		zap.String("exercise_id", ex.ID),
		zap.String("client_id", sid),
		zap.String("category", ex.Category))
	writeJSON(ctx, fasthttp.StatusCreated, ex)
}

// exerciseList returns one exercise when ?id= is given, else all of the
// caller's exercises.
func (s *Server) exerciseList(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	sctx, cancel := s.requestContext()
	defer cancel()
	if id := strings.TrimSpace(string(ctx.QueryArgs().Peek("id"))); id != "" {
		ex, err := s.exercises.Get(sctx, id)
		if err == nil && ex.ClientID != sid {
			err = exercise.ErrNotFound
		}
		if err != nil {
			writeError(ctx, err, scopeExercise)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, ex)
		return
	}
	list, err := s.exercises.ListByClient(sctx, sid)
	if err != nil {
		writeError(ctx, err, scopeExercise)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"exercises": list})
}

func (s *Server) exerciseDelete(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	id := strings.TrimSpace(string(ctx.QueryArgs().Peek("id")))
	sctx, cancel := s.requestContext()
	defer cancel()
	if err := s.exercises.Delete(sctx, sid, id); err != nil {
		writeError(ctx, err, scopeExercise)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}
