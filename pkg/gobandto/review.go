package gobandto

// ReviewImportRequest is the JSON form of an import; raw SGF bodies are
// accepted as well.
type ReviewImportRequest struct {
	URL string `json:"url,omitempty"`
	SGF string `json:"sgf,omitempty"`
}

type AnalysisResponse struct {
	ReviewID  string   `json:"reviewId"`
	MoveIndex int      `json:"moveIndex"`
	ToPlay    string   `json:"toPlay"`
	Winrate   float64  `json:"winrate"`
	ScoreLead float64  `json:"scoreLead"`
	PV        []string `json:"pv"`
	Visits    int      `json:"visits"`
}

type ExerciseRequest struct {
	ReviewID  string `json:"reviewId,omitempty"`
	MoveIndex int    `json:"moveIndex"`
	Category  string `json:"category,omitempty"`
	SGF       string `json:"sgf,omitempty"`
}
