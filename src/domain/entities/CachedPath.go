package entities

import "time"

// CachedPath memoriza um caminho mais curto já calculado.
type CachedPath struct {
	ID                 int64     `json:"id"`
	SourceCollectionID int64     `json:"source_collection_id"`
	SourceRecordID     int64     `json:"source_record_id"`
	TargetCollectionID int64     `json:"target_collection_id"`
	TargetRecordID     int64     `json:"target_record_id"`
	PathLength         int       `json:"path_length"`
	EdgeIDs            []int64   `json:"edge_ids"`
	EdgeTypeIDs        []int64   `json:"edge_type_ids"`
	PathStrength       float64   `json:"path_strength"`
	ExpiresAt          time.Time `json:"expires_at"`
	CreatedAt          time.Time `json:"created_at"`
}

func (p CachedPath) ExpiredAt(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}
