package httpapi

import (
	"strings"

	"github.com/park285/goban-server/internal/gamelog"
	"github.com/park285/goban-server/internal/session"
	"github.com/park285/goban-server/internal/sgf"
	"github.com/park285/goban-server/pkg/gobandto"
	"github.com/valyala/fasthttp"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

func (s *Server) gameNew(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	var req gobandto.NewGameRequest
	if !decodeJSON(ctx, &req) {
		return
	}
	params := session.GameParams{
		Komi:        req.Komi,
		Rules:       req.Rules,
		PlayerColor: sgf.Color(strings.ToLower(strings.TrimSpace(req.PlayerColor))),
	}
	if req.BoardSize != nil {
		params.BoardSize = *req.BoardSize
	}
	if req.EngineLevel != nil {
		params.Level = *req.EngineLevel
	}

	rctx, cancel := s.requestContext()
	defer cancel()
	res, err := s.mgr.NewGame(rctx, sid, params)
	if err != nil {
		writeError(ctx, err, scopeGame)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, gobandto.NewGameResponse{
		GameID:      res.GameID,
		ExpiresAt:   res.ExpiresAt.Unix(),
		ActiveGames: res.ActiveGames,
		EngineMove:  res.EngineMove,
	})
}

func (s *Server) gamePlay(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	var req gobandto.PlayRequest
	if !decodeJSON(ctx, &req) {
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()
	res, err := s.mgr.Play(rctx, sid, req.GameID, req.PlayerMove)
	if err != nil {
		writeError(ctx, err, scopeGame)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, gobandto.PlayResponse{
		EngineMove: res.EngineMove,
		Captures:   []string{},
		End:        gobandto.GameEnd{Finished: res.Finished, Result: res.Result},
	})
}

func (s *Server) gameHeartbeat(ctx *fasthttp.RequestCtx) {
	var req gobandto.GameIDRequest
	if !decodeJSON(ctx, &req) {
		return
	}
	if err := s.mgr.Touch(req.GameID); err != nil {
		writeError(ctx, err, scopeGame)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) gameClose(ctx *fasthttp.RequestCtx) {
	var req gobandto.GameIDRequest
	if !decodeJSON(ctx, &req) {
		return
	}
	s.mgr.CloseGame(req.GameID)
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) gameHint(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	var req gobandto.GameIDRequest
	if !decodeJSON(ctx, &req) {
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()
	mv, err := s.mgr.Hint(rctx, sid, req.GameID)
	if err != nil {
		writeError(ctx, err, scopeGame)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, gobandto.HintResponse{Move: mv})
}

func (s *Server) gameUndo(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	var req gobandto.GameIDRequest
	if !decodeJSON(ctx, &req) {
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()
	if err := s.mgr.Undo(rctx, sid, req.GameID); err != nil {
		writeError(ctx, err, scopeGame)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) gameScore(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	var req gobandto.GameIDRequest
	if !decodeJSON(ctx, &req) {
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()
	res, err := s.mgr.Score(rctx, sid, req.GameID)
	if err != nil {
		writeError(ctx, err, scopeGame)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, gobandto.ScoreResponse{
		Result:     res.Result,
		DeadStones: res.DeadStones,
		BoardSize:  res.BoardSize,
		Komi:       res.Komi,
	})
}

// gameHistory lists the caller's finished games with a re-importable record.
func (s *Server) gameHistory(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	limit, ok := queryInt(ctx, "limit", defaultHistoryLimit)
	if !ok {
		return
	}
	limit = min(max(limit, 1), maxHistoryLimit)
	out := gobandto.GameHistoryResponse{Games: []gobandto.GameHistoryEntry{}}
	if s.gameLog == nil {
		writeJSON(ctx, fasthttp.StatusOK, out)
		return
	}

	rctx, cancel := s.requestContext()
	defer cancel()
	recs, err := s.gameLog.Recent(rctx, sid, limit)
	if err != nil {
		writeError(ctx, err, scopeGame)
		return
	}
	for _, rec := range recs {
		out.Games = append(out.Games, gobandto.GameHistoryEntry{
			GameID:     rec.GameID,
			BoardSize:  rec.BoardSize,
			Komi:       rec.Komi,
			Rules:      rec.Rules,
			Level:      rec.Level,
			HumanColor: rec.HumanColor,
			Moves:      rec.Moves,
			Result:     rec.Result,
			EndReason:  rec.EndReason,
			StartedAt:  rec.StartedAt,
			EndedAt:    rec.EndedAt,
			SGF:        gamelog.BuildSGF(rec),
		})
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}
