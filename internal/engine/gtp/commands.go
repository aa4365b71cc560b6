package gtp

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ColorBlack = "B"
	ColorWhite = "W"

	Pass   = "pass"
	Resign = "resign"
)

func BoardSize(n int) string { return fmt.Sprintf("boardsize %d", n) }

func Komi(k float64) string {
	return "komi " + strconv.FormatFloat(k, 'f', -1, 64)
}

func ClearBoard() string { return "clear_board" }

func Play(color, vertex string) string { return fmt.Sprintf("play %s %s", color, vertex) }

func GenMove(color string) string { return "genmove " + color }

func Undo() string { return "undo" }

func FinalScore() string { return "final_score" }

func DeadStones() string { return "final_status_list dead" }

// LoadSGF loads the record and plays it up to, but not including, moveNumber.
func LoadSGF(path string, moveNumber int) string {
	if moveNumber > 0 {
		return fmt.Sprintf("loadsgf %s %d", path, moveNumber)
	}
	return "loadsgf " + path
}

func SetMaxVisits(visits int) string { return fmt.Sprintf("kata-set-param maxVisits %d", visits) }

func SearchAnalyze(color string) string { return "kata-search_analyze " + color }

// Payload strips the success marker (and an optional command id) from a response.
func Payload(resp string) string {
	s := strings.TrimSpace(resp)
	if !strings.HasPrefix(s, "=") {
		return s
	}
	s = s[1:]
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return strings.TrimSpace(s[i:])
}

// Move returns the first token of the first non-empty response line.
func Move(resp string) string {
	for _, line := range strings.Split(Payload(resp), "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			return f[0]
		}
	}
	return ""
}

// Vertices returns every vertex mentioned in a multi-line list response.
func Vertices(resp string) []string {
	fields := strings.Fields(Payload(resp))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if IsVertex(f) {
			out = append(out, normalizeVertex(f))
		}
	}
	return out
}

// IsVertex accepts "pass" and column-letter/row-number pairs such as "Q16".
func IsVertex(tok string) bool {
	t := strings.ToLower(strings.TrimSpace(tok))
	if t == Pass {
		return true
	}
	if len(t) < 2 || len(t) > 3 {
		return false
	}
	if t[0] < 'a' || t[0] > 'z' || t[0] == 'i' {
		return false
	}
	n, err := strconv.Atoi(t[1:])
	return err == nil && n >= 1 && n <= 25
}

func normalizeVertex(tok string) string {
	if strings.EqualFold(tok, Pass) {
		return Pass
	}
	return strings.ToUpper(tok)
}
