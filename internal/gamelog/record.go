package gamelog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/goban-server/internal/goban"
)

// Record is a finished (closed, expired or shut down) game against the engine.
type Record struct {
	GameID     string
	ClientID   string
	BoardSize  int
	Komi       float64
	Rules      string
	Level      int
	HumanColor string
	// Moves holds engine vertices in play order, black first.
	Moves     []string
	Result    string
	EndReason string
	StartedAt time.Time
	EndedAt   time.Time
}

type Repository interface {
	Save(ctx context.Context, rec Record) error
	Recent(ctx context.Context, clientID string, limit int) ([]Record, error)
	Close() error
}

// BuildSGF renders the record as a single-line game record so that finished
// games can be re-imported for review.
func BuildSGF(rec Record) string {
	var b strings.Builder
	b.WriteString("(;GM[1]FF[4]CA[UTF-8]AP[goban-server]")
	fmt.Fprintf(&b, "SZ[%d]", rec.BoardSize)
	b.WriteString("KM[" + strconv.FormatFloat(rec.Komi, 'f', -1, 64) + "]")
	if r := strings.TrimSpace(rec.Rules); r != "" {
		b.WriteString("RU[" + escape(r) + "]")
	}
	black, white := "KataGo", "Human"
	if rec.HumanColor != "white" {
		black, white = white, black
	}
	b.WriteString("PB[" + black + "]PW[" + white + "]")
	if r := strings.TrimSpace(rec.Result); r != "" && r != "?" {
		b.WriteString("RE[" + escape(r) + "]")
	}
	if !rec.StartedAt.IsZero() {
		b.WriteString("DT[" + rec.StartedAt.UTC().Format("2006-01-02") + "]")
	}

	color := "B"
	for _, mv := range rec.Moves {
		if strings.EqualFold(mv, "resign") {
			break
		}
		b.WriteString(";" + color + "[" + goban.VertexToCoord(mv, rec.BoardSize) + "]")
		if color == "B" {
			color = "W"
		} else {
			color = "B"
		}
	}
	b.WriteString(")")
	return b.String()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "]", `\]`)
}
