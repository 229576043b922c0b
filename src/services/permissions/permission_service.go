package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
)

// PolicyStore é implementado por *repositories.PolicyRepository.
type PolicyStore interface {
	GetPoliciesForCallerType(ctx context.Context, callerType string) (map[int64]entities.PermissionPolicy, error)
	UpsertPolicy(ctx context.Context, policy entities.PermissionPolicy) (*entities.PermissionPolicy, error)
}

type PermissionService struct {
	logger *slog.Logger
	store  PolicyStore
}

func NewPermissionService(logger *slog.Logger, store PolicyStore) *PermissionService {
	return &PermissionService{logger: logger, store: store}
}

func (s *PermissionService) ForCallerType(ctx context.Context, callerType string) (*Filter, error) {
	policies, err := s.store.GetPoliciesForCallerType(ctx, callerType)
	if err != nil {
		return nil, fmt.Errorf("PermissionService.ForCallerType - failed to load policies for %q: %w", callerType, err)
	}

	return NewFilter(callerType, policies), nil
}

func (s *PermissionService) CanTraverse(ctx context.Context, callerType string, edgeTypeID int64, direction domain.Direction) (bool, error) {
	filter, err := s.ForCallerType(ctx, callerType)
	if err != nil {
		return false, err
	}
	return filter.CanTraverse(edgeTypeID, direction), nil
}

func (s *PermissionService) ValidatePath(ctx context.Context, callerType string, steps []domain.PathStep) (domain.PathValidation, error) {
	filter, err := s.ForCallerType(ctx, callerType)
	if err != nil {
		return domain.PathValidation{}, err
	}
	return filter.ValidatePath(steps), nil
}

func (s *PermissionService) UpsertPolicy(ctx context.Context, policy entities.PermissionPolicy) (*entities.PermissionPolicy, error) {
	if policy.CallerType == "" {
		return nil, domain.NewValidationError("caller_type", "caller_type is required")
	}
	if policy.EdgeTypeID <= 0 {
		return nil, domain.NewValidationError("edge_type_id", "edge_type_id is required")
	}
	if policy.MaxDepth < 0 || policy.MaxDepth > domain.MaxTraversalDepth {
		return nil, domain.NewValidationError("max_depth", "max_depth must be between 1 and %d", domain.MaxTraversalDepth)
	}

	saved, err := s.store.UpsertPolicy(ctx, policy)
	if err != nil {
		return nil, fmt.Errorf("PermissionService.UpsertPolicy - %w", err)
	}

	s.logger.Info("Permission policy saved",
		"caller_type", saved.CallerType,
		"edge_type_id", saved.EdgeTypeID,
		"can_traverse_forward", saved.CanTraverseForward,
		"can_traverse_reverse", saved.CanTraverseReverse,
		"max_depth", saved.MaxDepth)

	return saved, nil
}
