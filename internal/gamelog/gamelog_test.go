package gamelog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/park285/goban-server/internal/sgf"
)

func TestMemoryRepositoryRecentOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"g-1", "g-2", "g-3"} {
		if err := repo.Save(ctx, Record{GameID: id, ClientID: "sid-a", EndedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	_ = repo.Save(ctx, Record{GameID: "g-x", ClientID: "sid-b", EndedAt: base})
	// upsert keeps a single entry
	_ = repo.Save(ctx, Record{GameID: "g-1", ClientID: "sid-a", EndedAt: base.Add(time.Hour), Result: "B+R"})

	got, err := repo.Recent(ctx, "sid-a", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].GameID != "g-1" || got[1].GameID != "g-3" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Result != "B+R" {
		t.Fatalf("upsert lost result: %+v", got[0])
	}

	all, _ := repo.Recent(ctx, "sid-a", 0)
	if len(all) != 3 {
		t.Fatalf("want 3 records, got %d", len(all))
	}
}

func TestBuildSGFReimports(t *testing.T) {
	rec := Record{
		GameID:     "g-1",
		BoardSize:  9,
		Komi:       7.5,
		Rules:      "chinese",
		HumanColor: "black",
		Moves:      []string{"E5", "C3", "pass", "G7", "resign"},
		Result:     "W+R",
		StartedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	text := BuildSGF(rec)
	if !strings.Contains(text, "PB[Human]PW[KataGo]") || !strings.Contains(text, "RE[W+R]") {
		t.Fatalf("unexpected header: %s", text)
	}

	parsed, err := sgf.Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.BoardSize != 9 || parsed.Komi != 7.5 {
		t.Fatalf("size/komi: %+v", parsed)
	}
	if len(parsed.Moves) != 4 {
		t.Fatalf("want 4 moves, got %d", len(parsed.Moves))
	}
	if parsed.Moves[0].Coord != "ee" || parsed.Moves[1].Color != sgf.White || !parsed.Moves[2].IsPass() {
		t.Fatalf("unexpected moves: %+v", parsed.Moves)
	}
}
