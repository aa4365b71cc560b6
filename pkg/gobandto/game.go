package gobandto

import "time"

type NewGameRequest struct {
	BoardSize   *int     `json:"boardSize,omitempty"`
	Rules       string   `json:"rules,omitempty"`
	Komi        *float64 `json:"komi,omitempty"`
	Handicap    *int     `json:"handicap,omitempty"`
	EngineLevel *int     `json:"engineLevel,omitempty"`
	PlayerColor string   `json:"playerColor,omitempty"`
}

type NewGameResponse struct {
	GameID      string `json:"gameId"`
	ExpiresAt   int64  `json:"expiresAt"`
	ActiveGames int    `json:"activeGames"`
	EngineMove  string `json:"engineMove,omitempty"`
}

type GameIDRequest struct {
	GameID string `json:"gameId"`
}

type PlayRequest struct {
	GameID     string `json:"gameId"`
	PlayerMove string `json:"playerMove"`
}

type GameEnd struct {
	Finished bool   `json:"finished"`
	Result   string `json:"result,omitempty"`
}

type PlayResponse struct {
	EngineMove string   `json:"engineMove"`
	Captures   []string `json:"captures"`
	End        GameEnd  `json:"end"`
}

type HintResponse struct {
	Move string `json:"move"`
}

type ScoreResponse struct {
	Result     string   `json:"result"`
	DeadStones []string `json:"deadStones"`
	BoardSize  int      `json:"boardSize"`
	Komi       float64  `json:"komi"`
}

type GameHistoryEntry struct {
	GameID     string    `json:"gameId"`
	BoardSize  int       `json:"boardSize"`
	Komi       float64   `json:"komi"`
	Rules      string    `json:"rules"`
	Level      int       `json:"engineLevel"`
	HumanColor string    `json:"playerColor"`
	Moves      []string  `json:"moves"`
	Result     string    `json:"result,omitempty"`
	EndReason  string    `json:"endReason"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
	SGF        string    `json:"sgf"`
}

type GameHistoryResponse struct {
	Games []GameHistoryEntry `json:"games"`
}
