package domain

import "encoding/json"

// ############################################################
// ############# PROCESSO DE LEITURA DO GRAFO #################
// ############################################################

// ExpandQuery descreve uma expansão recursiva a partir de um registro semente.
type ExpandQuery struct {
	Seed        NodeRef
	EdgeTypeIDs []int64
	MaxDepth    int
	Direction   Direction
}

// ExpansionRow é um passo produzido pela expansão recursiva. Os arrays Path*
// descrevem o caminho completo até este passo, incluindo a própria aresta.
type ExpansionRow struct {
	EdgeID          int64
	EdgeTypeID      int64
	Source          NodeRef
	Target          NodeRef
	Direction       Direction
	Depth           int
	Strength        float64
	Role            string
	Metadata        json.RawMessage
	PathEdgeIDs     []int64
	PathEdgeTypeIDs []int64
	PathDirections  []Direction
}

// FarSide é o registro alcançado por este passo.
func (r ExpansionRow) FarSide() NodeRef {
	if r.Direction == DirectionReverse {
		return r.Source
	}
	return r.Target
}

type TraversalRequest struct {
	Seed         NodeRef
	EdgeTypes    []string
	MaxDepth     int
	Direction    Direction
	IncludePaths bool
	Limit        int
}

type TraversedEdge struct {
	ID           int64           `json:"id"`
	EdgeTypeID   int64           `json:"edge_type_id"`
	EdgeTypeSlug string          `json:"edge_type"`
	Source       NodeRef         `json:"source"`
	Target       NodeRef         `json:"target"`
	Direction    Direction       `json:"direction"`
	Depth        int             `json:"depth"`
	Strength     float64         `json:"strength"`
	Role         string          `json:"role,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

type RecordView struct {
	NodeRef
	Depth  int                    `json:"depth"`
	Fields map[string]interface{} `json:"fields"`
}

// TraversalResult é o resultado de uma travessia. Error preenchido significa
// resposta degradada (mas não fatal): edges e records vêm vazios.
type TraversalResult struct {
	Edges           []TraversedEdge `json:"edges"`
	Records         []RecordView    `json:"records"`
	TotalCount      int             `json:"total_count"`
	MaxDepthReached int             `json:"max_depth_reached"`
	Paths           [][]int64       `json:"paths,omitempty"`
	Error           string          `json:"error,omitempty"`
}

func EmptyTraversalResult() *TraversalResult {
	return &TraversalResult{
		Edges:   []TraversedEdge{},
		Records: []RecordView{},
	}
}

// Clone copia slices, paths e mapas de campos. Valores dentro de Fields e
// Metadata são tratados como imutáveis.
func (r *TraversalResult) Clone() *TraversalResult {
	clone := *r

	if r.Edges != nil {
		clone.Edges = append([]TraversedEdge(nil), r.Edges...)
	}

	if r.Records != nil {
		clone.Records = make([]RecordView, len(r.Records))
		for i, record := range r.Records {
			fields := make(map[string]interface{}, len(record.Fields))
			for name, value := range record.Fields {
				fields[name] = value
			}
			record.Fields = fields
			clone.Records[i] = record
		}
	}

	if r.Paths != nil {
		clone.Paths = make([][]int64, len(r.Paths))
		for i, path := range r.Paths {
			clone.Paths[i] = append([]int64(nil), path...)
		}
	}

	return &clone
}

type PathStep struct {
	EdgeTypeID int64     `json:"edge_type_id"`
	Direction  Direction `json:"direction"`
}

type PathValidation struct {
	Valid           bool   `json:"valid"`
	AccessibleDepth int    `json:"accessible_depth"`
	Error           string `json:"error,omitempty"`
}

type ShortestPathRequest struct {
	Source   NodeRef
	Target   NodeRef
	MaxDepth int
}

type PathHop struct {
	EdgeID     int64   `json:"edge_id"`
	EdgeTypeID int64   `json:"edge_type_id"`
	From       NodeRef `json:"from"`
	To         NodeRef `json:"to"`
	Strength   float64 `json:"strength"`
}

type ShortestPathResult struct {
	Found        bool      `json:"found"`
	PathLength   int       `json:"path_length"`
	Path         []PathHop `json:"path"`
	PathStrength float64   `json:"path_strength"`
	FromCache    bool      `json:"from_cache"`
	Error        string    `json:"error,omitempty"`
}
