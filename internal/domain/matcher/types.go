package matcher

import "time"

// Config holds matcher configuration
type Config struct {
	MinTokenLength     int           // Tokens shorter than this are ignored (default: 3)
	MinTokenFrequency  int           // Token/code pairs seen fewer times are ignored (default: 1)
	CacheTTL           time.Duration // Match memo lifetime; 0 disables the memo
	CacheCleanInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MinTokenLength:     3,
		MinTokenFrequency:  1,
		CacheTTL:           10 * time.Minute,
		CacheCleanInterval: 20 * time.Minute,
	}
}

// Link is a confirmed association between a line description and a code.
type Link struct {
	SupplierID  string    `json:"supplier_id,omitempty"`
	Description string    `json:"description"`
	Code        string    `json:"code"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Source says how a match was found.
type Source string

const (
	SourceLink    Source = "link"    // exact normalized description confirmed before
	SourceKeyword Source = "keyword" // keyword frequency scoring
)

// MatchResult contains match information
type MatchResult struct {
	Code       string
	Confidence float64 // 0-1 share of the winning score
	Score      int     // accumulated frequency of the winning code
	Source     Source
	Tokens     []string // description tokens that voted for Code
}
