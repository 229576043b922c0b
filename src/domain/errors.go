package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrEdgeNotFound     = errors.New("edge not found")
	ErrEdgeTypeNotFound = errors.New("edge type not found")
	ErrSystemEdgeType   = errors.New("system edge types cannot be deleted")

	ErrValidation           = errors.New("validation error")
	ErrCardinalityViolation = errors.New("cardinality violation")

	ErrUnavailableServer = errors.New("Oops, something unexpected happened. Please try again later.")
)

// ValidationError é retornado de forma síncrona em operações de escrita com input inválido.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field string, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CardinalityViolation indica que já existe uma aresta ativa conflitante.
// O chamador deve ignorar a operação ou remover a aresta anterior antes.
type CardinalityViolation struct {
	EdgeTypeSlug      string
	Cardinality       string
	Side              string
	ConflictingEdgeID int64
}

func (e *CardinalityViolation) Error() string {
	if e.ConflictingEdgeID == 0 {
		return fmt.Sprintf("cardinality violation: %s (%s) already has an active edge on the %s side",
			e.EdgeTypeSlug, e.Cardinality, e.Side)
	}
	return fmt.Sprintf("cardinality violation: %s (%s) conflicts with active edge %d on the %s side",
		e.EdgeTypeSlug, e.Cardinality, e.ConflictingEdgeID, e.Side)
}

func (e *CardinalityViolation) Is(target error) bool {
	return target == ErrCardinalityViolation
}
