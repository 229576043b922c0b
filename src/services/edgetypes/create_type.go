package edgetypes

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"strings"

	"github.com/go-playground/validator/v10"
)

var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
}

// EdgeTypeConfig é o input de criação de um tipo de aresta.
type EdgeTypeConfig struct {
	Slug            string `json:"slug" validate:"required,max=100,slug"`
	Name            string `json:"name" validate:"required,max=255"`
	ForwardLabel    string `json:"forward_label" validate:"omitempty,max=100"`
	ReverseLabel    string `json:"reverse_label" validate:"omitempty,max=100"`
	Cardinality     string `json:"cardinality" validate:"required,oneof=one_to_one one_to_many many_to_one many_to_many"`
	IsBidirectional bool   `json:"is_bidirectional"`

	SourceCollectionConstraint *int64 `json:"source_collection_constraint,omitempty" validate:"omitempty,gt=0"`
	TargetCollectionConstraint *int64 `json:"target_collection_constraint,omitempty" validate:"omitempty,gt=0"`

	// nil significa true
	AllowSelfReference *bool `json:"allow_self_reference,omitempty"`
}

// BuildEdgeType valida a configuração e devolve o tipo normalizado, sem persistir.
func BuildEdgeType(config EdgeTypeConfig) (entities.EdgeType, error) {
	config.Slug = strings.TrimSpace(config.Slug)
	config.Name = strings.TrimSpace(config.Name)
	config.ForwardLabel = strings.TrimSpace(config.ForwardLabel)
	config.ReverseLabel = strings.TrimSpace(config.ReverseLabel)

	if err := validate.Struct(config); err != nil {
		return entities.EdgeType{}, toValidationError(err)
	}

	forwardLabel := config.ForwardLabel
	if forwardLabel == "" {
		forwardLabel = config.Slug
	}

	reverseLabel := config.ReverseLabel
	if reverseLabel == "" {
		reverseLabel = "reverse_" + forwardLabel
	}

	allowSelfReference := true
	if config.AllowSelfReference != nil {
		allowSelfReference = *config.AllowSelfReference
	}

	edgeType := entities.EdgeType{
		Slug:                       config.Slug,
		Name:                       config.Name,
		ForwardLabel:               forwardLabel,
		ReverseLabel:               reverseLabel,
		Cardinality:                entities.Cardinality(config.Cardinality),
		IsBidirectional:            config.IsBidirectional,
		SourceCollectionConstraint: config.SourceCollectionConstraint,
		TargetCollectionConstraint: config.TargetCollectionConstraint,
		AllowSelfReference:         allowSelfReference,
	}

	if err := clean(edgeType); err != nil {
		return entities.EdgeType{}, err
	}

	return edgeType, nil
}

// clean rejeita combinações contraditórias: as duas pontas presas à mesma
// coleção com auto-referência proibida.
func clean(edgeType entities.EdgeType) error {
	if !edgeType.Cardinality.Valid() {
		return domain.NewValidationError("cardinality", "invalid cardinality %q", edgeType.Cardinality)
	}

	source := edgeType.SourceCollectionConstraint
	target := edgeType.TargetCollectionConstraint
	if source != nil && target != nil && *source == *target && !edgeType.AllowSelfReference {
		return domain.NewValidationError("allow_self_reference",
			"both sides are constrained to collection %d, self reference cannot be disallowed", *source)
	}

	return nil
}

func (r *Registry) CreateType(ctx context.Context, config EdgeTypeConfig) (*entities.EdgeType, error) {
	edgeType, err := BuildEdgeType(config)
	if err != nil {
		return nil, err
	}

	created, err := r.store.Create(ctx, edgeType)
	if err != nil {
		return nil, fmt.Errorf("Registry.CreateType - failed to create %q: %w", edgeType.Slug, err)
	}

	r.logger.Info("Edge type created", "edge_type_id", created.ID, "slug", created.Slug, "cardinality", created.Cardinality)
	return created, nil
}

func toValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return domain.NewValidationError("", "%v", err)
	}

	// Reporta só o primeiro campo inválido.
	fieldErr := validationErrors[0]
	field := jsonFieldNames[fieldErr.Field()]
	if field == "" {
		field = strings.ToLower(fieldErr.Field())
	}

	switch fieldErr.Tag() {
	case "required":
		return domain.NewValidationError(field, "%s is required", field)
	case "max":
		return domain.NewValidationError(field, "%s must be at most %s characters", field, fieldErr.Param())
	case "oneof":
		return domain.NewValidationError(field, "%s must be one of: %s", field, fieldErr.Param())
	case "slug":
		return domain.NewValidationError(field, "%s must be lowercase letters, digits and underscores", field)
	case "gt":
		return domain.NewValidationError(field, "%s must be a positive collection id", field)
	default:
		return domain.NewValidationError(field, "%s is invalid", field)
	}
}

var jsonFieldNames = map[string]string{
	"Slug":                       "slug",
	"Name":                       "name",
	"ForwardLabel":               "forward_label",
	"ReverseLabel":               "reverse_label",
	"Cardinality":                "cardinality",
	"SourceCollectionConstraint": "source_collection_constraint",
	"TargetCollectionConstraint": "target_collection_constraint",
}
