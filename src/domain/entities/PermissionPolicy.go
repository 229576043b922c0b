package entities

import "time"

const DefaultPolicyMaxDepth = 3

// FieldRules maps a collection id to a field -> flag set.
type FieldRules map[int64]map[string]bool

// PermissionPolicy é a regra de travessia para um par (caller type, edge type).
// A ausência de uma policy significa permissão total com profundidade 3.
type PermissionPolicy struct {
	ID                 int64      `json:"id"`
	CallerType         string     `json:"caller_type"`
	EdgeTypeID         int64      `json:"edge_type_id"`
	CanTraverseForward bool       `json:"can_traverse_forward"`
	CanTraverseReverse bool       `json:"can_traverse_reverse"`
	MaxDepth           int        `json:"max_depth"`
	VisibleFields      FieldRules `json:"visible_fields,omitempty"`
	RestrictedFields   FieldRules `json:"restricted_fields,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
