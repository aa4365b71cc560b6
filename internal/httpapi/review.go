package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/park285/goban-server/internal/render"
	"github.com/park285/goban-server/internal/session"
	"github.com/park285/goban-server/pkg/gobandto"
	"github.com/valyala/fasthttp"
)

// reviewImport accepts a raw SGF body or JSON {"url"} / {"sgf"}.
func (s *Server) reviewImport(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	body := bytes.TrimSpace(ctx.PostBody())
	text := string(body)
	source := session.Source{Kind: session.SourceUpload}

	if len(body) > 0 && body[0] == '{' {
		var req gobandto.ReviewImportRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeDomainError(ctx, fasthttp.StatusBadRequest, gobandto.DomainError{Code: gobandto.CodeBadRequest, Message: "malformed json body"})
			return
		}
		text = req.SGF
		if url := strings.TrimSpace(req.URL); url != "" {
			if s.fetcher == nil {
				writeDomainError(ctx, fasthttp.StatusBadRequest, gobandto.DomainError{Code: gobandto.CodeBadRequest, Message: "remote import disabled"})
				return
			}
			rctx, cancel := s.requestContext()
			defer cancel()
			fetched, err := s.fetcher.Get(rctx, url)
			if err != nil {
				writeError(ctx, remoteError(err), scopeReview)
				return
			}
			text = fetched
			source = session.Source{Kind: session.SourceRemote, URL: url}
		}
	}

	sum, err := s.mgr.ImportReview(sid, text, source)
	if err != nil {
		writeError(ctx, err, scopeReview)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, sum)
}

func (s *Server) reviewGet(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	sum, err := s.mgr.Review(sid, reviewID(ctx))
	if err != nil {
		writeError(ctx, err, scopeReview)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sum)
}

func (s *Server) reviewClose(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	var req struct {
		ReviewID string `json:"reviewId"`
	}
	if !decodeJSON(ctx, &req) {
		return
	}
	if err := s.mgr.CloseReview(sid, req.ReviewID); err != nil {
		writeError(ctx, err, scopeReview)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) reviewPosition(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	idx, ok := queryInt(ctx, "moveIndex", 0)
	if !ok {
		return
	}
	pos, err := s.mgr.ReviewPosition(sid, reviewID(ctx), idx)
	if err != nil {
		writeError(ctx, err, scopeReview)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, pos)
}

func (s *Server) reviewAnalysis(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	idx, ok := queryInt(ctx, "moveIndex", 0)
	if !ok {
		return
	}
	visits, ok := queryInt(ctx, "visits", 0)
	if !ok {
		return
	}
	id := reviewID(ctx)
	pos, err := s.mgr.ReviewPosition(sid, id, idx)
	if err != nil {
		writeError(ctx, err, scopeReview)
		return
	}

	rctx, cancel := s.requestContext()
	defer cancel()
	a, err := s.mgr.Analysis(rctx, sid, id, idx, visits)
	if err != nil {
		writeError(ctx, err, scopeReview)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, gobandto.AnalysisResponse{
		ReviewID:  id,
		MoveIndex: idx,
		ToPlay:    string(pos.ToPlay),
		Winrate:   a.Winrate,
		ScoreLead: a.ScoreLead,
		PV:        a.PV,
		Visits:    a.Visits,
	})
}

func (s *Server) reviewBoard(ctx *fasthttp.RequestCtx) {
	sid := clientID(ctx)
	idx, ok := queryInt(ctx, "moveIndex", 0)
	if !ok {
		return
	}
	id := reviewID(ctx)
	sum, err := s.mgr.Review(sid, id)
	if err != nil {
		writeError(ctx, err, scopeReview)
		return
	}
	pos, err := s.mgr.ReviewPosition(sid, id, idx)
	if err != nil {
		writeError(ctx, err, scopeReview)
		return
	}

	opts := render.Options{Title: fmt.Sprintf("Move %d", idx)}
	if pos.LastMove != nil {
		opts.LastMove = pos.LastMove.Coord
	}
	rctx, cancel := s.requestContext()
	defer cancel()
	img, err := render.PNG(rctx, sum.BoardSize, pos.Stones, opts)
	if err != nil {
		writeError(ctx, err, scopeReview)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("image/png")
	ctx.SetBody(img)
}

func reviewID(ctx *fasthttp.RequestCtx) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek("reviewId")))
}

func remoteError(err error) error {
	return fmt.Errorf("%w: %w", errRemoteFetch, err)
}
