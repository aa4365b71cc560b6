package gtp

import (
	"errors"
	"strconv"
	"strings"
)

var ErrUnparseable = errors.New("unparseable analysis response")

const (
	neutralWinrate = 0.5
	lzWinrateScale = 10000.0
)

// Analysis is the engine's view of one position.
type Analysis struct {
	Winrate   float64  `json:"winrate"`
	ScoreLead float64  `json:"scoreLead"`
	PV        []string `json:"pv"`
	Visits    int      `json:"visits"`
}

// ParseAnalysis reads the best candidate ("info move ...") of an analysis block.
// Fields that cannot be read fall back to neutral values; a block in which no
// field at all is recognised yields ErrUnparseable.
func ParseAnalysis(resp string) (Analysis, error) {
	out := Analysis{Winrate: neutralWinrate, PV: []string{}}
	parts := strings.Fields(Payload(resp))

	var (
		recognised bool
		infoSeen   bool
		scoreLead  bool
	)

scan:
	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "info":
			if infoSeen {
				break scan
			}
			infoSeen = true
		case "winrate":
			if i+1 < len(parts) {
				if v, err := strconv.ParseFloat(parts[i+1], 64); err == nil {
					if v > 1 {
						v /= lzWinrateScale
					}
					out.Winrate = v
					recognised = true
				}
				i++
			}
		case "scoreLead", "scoreMean":
			if i+1 < len(parts) {
				if v, err := strconv.ParseFloat(parts[i+1], 64); err == nil {
					// scoreLead wins over the older scoreMean when both are present.
					if parts[i] == "scoreLead" || !scoreLead {
						out.ScoreLead = v
					}
					if parts[i] == "scoreLead" {
						scoreLead = true
					}
					recognised = true
				}
				i++
			}
		case "visits":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					out.Visits = v
					recognised = true
				}
				i++
			}
		case "pv":
			j := i + 1
			for j < len(parts) && IsVertex(parts[j]) {
				out.PV = append(out.PV, normalizeVertex(parts[j]))
				j++
			}
			if j > i+1 {
				recognised = true
			}
			i = j - 1
		}
	}

	if !recognised {
		return Analysis{}, ErrUnparseable
	}
	return out, nil
}
