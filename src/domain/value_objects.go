package domain

import (
	"encoding/json"
	"fmt"
)

type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
	DirectionBoth    Direction = "both"
)

func (d Direction) Valid() bool {
	return d == DirectionForward || d == DirectionReverse || d == DirectionBoth
}

const (
	DefaultTraversalDepth = 3
	MaxTraversalDepth     = 10
)

// NodeRef identifica um registro: (coleção, id).
type NodeRef struct {
	CollectionID int64 `json:"collection_id"`
	RecordID     int64 `json:"record_id"`
}

func (n NodeRef) String() string {
	return fmt.Sprintf("%d:%d", n.CollectionID, n.RecordID)
}

// Caller é a identidade que executa uma consulta. Type é a chave de lookup das
// policies; quando vazio, é resolvido via CallerTypeResolver.
type Caller struct {
	ID   int64
	Type string
	// Permissões de campo já conhecidas (baseline), por coleção.
	// Coleção ausente significa que todos os campos do registro são visíveis.
	FieldPermissions map[int64]map[string]bool
}

// EdgeSource é o lado de origem de uma aresta: um registro ou um caller (atribuição).
type EdgeSource struct {
	Record   *NodeRef
	CallerID *int64
}

func RecordSource(ref NodeRef) EdgeSource {
	return EdgeSource{Record: &ref}
}

func CallerSource(callerID int64) EdgeSource {
	return EdgeSource{CallerID: &callerID}
}

func (s EdgeSource) Valid() bool {
	return (s.Record != nil) != (s.CallerID != nil)
}

// EdgeAttributes são os atributos livres de uma aresta no momento da criação.
type EdgeAttributes struct {
	Role     string
	Status   string
	Strength *float64
	Metadata json.RawMessage
}

type EdgeOutcome string

const (
	EdgeCreated     EdgeOutcome = "created"
	EdgeResurrected EdgeOutcome = "resurrected"
	EdgeExisting    EdgeOutcome = "existing"
)
