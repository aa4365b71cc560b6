package gobandto

// Stable error codes carried in the "error" field of every failed response.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeGameExpired         = "GAME_EXPIRED"
	CodeNotFound            = "NOT_FOUND"
	CodeForbidden           = "FORBIDDEN"
	CodeOutOfRange          = "OUT_OF_RANGE"
	CodeConcurrencyLimit    = "CONCURRENCY_LIMIT"
	CodeParseFailure        = "PARSE_FAILURE"
	CodeEngineUnavailable   = "ENGINE_UNAVAILABLE"
	CodeEngineError         = "ENGINE_ERROR"
	CodeUnparseableAnalysis = "UNPARSEABLE_ANALYSIS"
	CodeRemoteFetch         = "REMOTE_FETCH_FAILED"
	CodeUnavailable         = "SHUTTING_DOWN"
	CodeInternal            = "INTERNAL"
)

type DomainError struct {
	Code              string `json:"error"`
	Message           string `json:"message,omitempty"`
	Retryable         bool   `json:"retryable,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
	ActiveGames       *int   `json:"activeGames,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "goban service error"
}
