package domain

import (
	"encoding/json"
	"time"
)

// ############################################################
// ######## PROCESSO DE ESCRITA DAS EDGES (KAFKA) #############
// ############################################################

const (
	EdgeEventCreated        = "edge.created"
	EdgeEventResurrected    = "edge.resurrected"
	EdgeEventDeleted        = "edge.deleted"
	EdgeEventReverseCreated = "edge.reverse_created"
)

// EdgeEvent é publicado a cada mutação de aresta para o subsistema de auditoria.
type EdgeEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	EdgeID     int64     `json:"edge_id"`
	EdgeTypeID int64     `json:"edge_type_id"`
	Source     *NodeRef  `json:"source,omitempty"`
	CallerID   *int64    `json:"caller_id,omitempty"`
	Target     NodeRef   `json:"target"`
	ActorID    *int64    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	RelationshipOpLink   = "link"
	RelationshipOpUnlink = "unlink"
)

// RelationshipChange é a mensagem que a camada de registros publica quando
// um campo de relacionamento de um registro muda.
type RelationshipChange struct {
	Op       string          `json:"op"`
	EdgeType string          `json:"edge_type"`
	Source   *NodeRef        `json:"source,omitempty"`
	CallerID *int64          `json:"caller_id,omitempty"`
	Target   NodeRef         `json:"target"`
	Role     string          `json:"role,omitempty"`
	Status   string          `json:"status,omitempty"`
	Strength *float64        `json:"strength,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Actor    int64           `json:"actor"`
}
