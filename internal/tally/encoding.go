package tally

import "encoding/json"

// postRow is the canonical on-disk shape of a post: row (§6).
type postRow struct {
	Likes       int64  `json:"likes"`
	Reposts     int64  `json:"reposts"`
	LastUpdated int64  `json:"lastUpdated"`
	ID          uint64 `json:"id"`
}

// Encode marshals s into its canonical post: row payload.
func Encode(s *Stats) ([]byte, error) {
	return json.Marshal(postRow{
		Likes:       s.Likes,
		Reposts:     s.Reposts,
		LastUpdated: s.LastUpdated,
		ID:          s.ID,
	})
}

// Decode parses a post: row payload into Stats.
func Decode(data []byte) (*Stats, error) {
	var row postRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	return &Stats{Likes: row.Likes, Reposts: row.Reposts, LastUpdated: row.LastUpdated, ID: row.ID}, nil
}
