package ctfd

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Challenge is a challenge as listed by /challenges. Only ID and Name are
// used by the announcer; the rest is decoded when present.
type Challenge struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Value    float64 `json:"value,omitempty"`
	Solves   int     `json:"solves,omitempty"`
}

// Solve is one entry of /challenges/{id}/solves. The platform returns solves
// oldest first, so the first element is the first blood.
type Solve struct {
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
	Date      string `json:"date"`
}

// TeamStanding is one row of /scoreboard.
type TeamStanding struct {
	Pos       int     `json:"pos"`
	AccountID int64   `json:"account_id"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
}

// Account is a team or a user as listed by /teams or /users.
type Account struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Submission is one flag submission as listed by /submissions.
type Submission struct {
	ID          int64  `json:"id"`
	ChallengeID int64  `json:"challenge_id"`
	Type        string `json:"type"`
}

// PlatformConfig holds CTF-wide settings such as ctf_name, start and end.
type PlatformConfig map[string]any

// String returns the value stored under key as a string, or "" when the key
// is missing or null.
func (c PlatformConfig) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// configEntry is the {key, value} row shape returned by /configs.
type configEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// decodePlatformConfig accepts either an object or a list of {key, value}
// rows and normalizes both into a PlatformConfig.
func decodePlatformConfig(raw json.RawMessage) (PlatformConfig, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return PlatformConfig(obj), nil
	}

	var rows []configEntry
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	cfg := make(PlatformConfig, len(rows))
	for _, row := range rows {
		if row.Key != "" {
			cfg[row.Key] = row.Value
		}
	}
	return cfg, nil
}

// Statistics aggregates the /statistics/* endpoints. Each field is the raw
// decoded "data" value and is nil when its sub-fetch failed.
type Statistics struct {
	ChallengeSolves any
	Teams           any
	Challenges      any
	Submissions     any
	Users           any
}

// Empty reports whether every sub-fetch came back empty.
func (s Statistics) Empty() bool {
	return isEmpty(s.ChallengeSolves) && isEmpty(s.Teams) && isEmpty(s.Challenges) &&
		isEmpty(s.Submissions) && isEmpty(s.Users)
}

// TotalSolves sums the per-challenge solve counts. The platform returns
// either a list of {id, name, solves} rows or a map of name to count.
func (s Statistics) TotalSolves() (int, bool) {
	switch v := s.ChallengeSolves.(type) {
	case []any:
		if len(v) == 0 {
			return 0, false
		}
		total := 0
		for _, row := range v {
			if m, ok := row.(map[string]any); ok {
				if n, ok := m["solves"].(float64); ok {
					total += int(n)
				}
			}
		}
		return total, true
	case map[string]any:
		if len(v) == 0 {
			return 0, false
		}
		total := 0
		for _, n := range v {
			if f, ok := n.(float64); ok {
				total += int(f)
			}
		}
		return total, true
	default:
		return 0, false
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
