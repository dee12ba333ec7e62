package module

import (
	"context"
	"errors"
	"fmt"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/core/events"
	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/google/uuid"
)

// ListModules returns the catalog; inactive modules only when includeInactive is set.
func (r *Resolver) ListModules(ctx context.Context, includeInactive bool) ([]grants.Module, error) {
	all, err := r.repo.ListModules(ctx)
	if err != nil {
		r.logger.Error("failed to list modules", "error", err)
		return nil, err
	}
	if includeInactive {
		return all, nil
	}

	active := make([]grants.Module, 0, len(all))
	for _, m := range all {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active, nil
}

func (r *Resolver) CreateModule(ctx context.Context, name access.ModuleName, description string) (*grants.Module, error) {
	m, err := r.repo.CreateModule(ctx, name, description)
	if err != nil {
		if errors.Is(err, grants.ErrAlreadyExists) {
			return nil, internal.ErrModuleExists
		}
		return nil, fmt.Errorf("create module %s: %w", name, err)
	}
	r.logger.Info("module created", "module", name)
	return m, nil
}

// DeactivateModule soft-deletes a module. Any user may have held it, so every cached answer goes.
func (r *Resolver) DeactivateModule(ctx context.Context, name access.ModuleName, actor *uuid.UUID) error {
	return r.setActive(ctx, name, false, actor)
}

func (r *Resolver) ActivateModule(ctx context.Context, name access.ModuleName, actor *uuid.UUID) error {
	return r.setActive(ctx, name, true, actor)
}

func (r *Resolver) setActive(ctx context.Context, name access.ModuleName, active bool, actor *uuid.UUID) error {
	m, err := r.lookup(ctx, name)
	if err != nil {
		return err
	}
	if err := r.repo.SetModuleActive(ctx, m.ID, active); err != nil {
		if errors.Is(err, grants.ErrNotFound) {
			return internal.ErrModuleNotFound
		}
		return fmt.Errorf("set module %s active=%t: %w", name, active, err)
	}

	r.purge()
	if !active {
		r.publish(ctx, events.ChangeModuleDeactivated, name.String(), nil, actor)
	}
	r.logger.Info("module state changed", "module", name, "active", active)
	return nil
}
