package entities

import (
	"encoding/json"
	"time"
)

type EdgeStatus string

const (
	EdgeStatusActive   EdgeStatus = "active"
	EdgeStatusInactive EdgeStatus = "inactive"
	EdgeStatusPending  EdgeStatus = "pending"
)

func (s EdgeStatus) Valid() bool {
	switch s {
	case EdgeStatusActive, EdgeStatusInactive, EdgeStatusPending:
		return true
	}
	return false
}

const DefaultEdgeStrength = 1.0

// É a "aresta" dirigida entre dois registros, ou entre um caller e um registro
// (aresta de atribuição). Nas atribuições o par source fica nulo e CallerID é preenchido.
type Edge struct {
	ID                 int64      `json:"id"`
	EdgeTypeID         int64      `json:"edge_type_id"`
	SourceCollectionID *int64     `json:"source_collection_id,omitempty"`
	SourceRecordID     *int64     `json:"source_record_id,omitempty"`
	CallerID           *int64     `json:"caller_id,omitempty"`
	TargetCollectionID int64      `json:"target_collection_id"`
	TargetRecordID     int64      `json:"target_record_id"`
	Role               string     `json:"role,omitempty"`
	Status             EdgeStatus `json:"status"`
	Strength           float64    `json:"strength"`
	// Metadados livres sobre o próprio relacionamento.
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	IsDeleted bool            `json:"is_deleted"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
	DeletedBy *int64          `json:"deleted_by,omitempty"`
	CreatedBy *int64          `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (e Edge) IsAssignment() bool {
	return e.CallerID != nil
}

func (e Edge) IsTraversable() bool {
	return !e.IsDeleted && e.Status == EdgeStatusActive
}
