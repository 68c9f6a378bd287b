package controller

import (
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

var (
	// ErrResourceExists is returned when creating a resource twice
	ErrResourceExists = errors.New("resource already exists")
	// ErrResourceInUse is returned when deleting a resource that still has
	// reservations ending in the future
	ErrResourceInUse = errors.New("resource is in use")
)

// CreateResource registers a new resource
func (c *Controller) CreateResource(principal string, resource *types.Resource) (*types.Resource, error) {
	if err := c.authorize(principal, resource.ID, PermissionManageResources); err != nil {
		return nil, err
	}
	if err := resource.Validate(); err != nil {
		return nil, err
	}

	err := c.scheduler.Exclusive(func() error {
		_, err := c.store.GetResource(resource.ID)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrResourceExists, resource.ID)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		resource.CreatedAt = c.scheduler.Now()
		return c.scheduler.Apply(&storage.ChangeSet{PutResources: []*types.Resource{resource}})
	})
	if err != nil {
		return nil, err
	}

	logger := log.WithResourceID(c.logger, resource.ID)
	logger.Info().Msg("Resource created")
	c.publish(events.New(events.EventResourceCreated, "resource created", "resource", resource.ID))
	return resource, nil
}

// UpdateResource replaces the definition of an existing resource.
// Existing reservations are kept even when they no longer fit.
func (c *Controller) UpdateResource(principal string, resource *types.Resource) (*types.Resource, error) {
	if err := c.authorize(principal, resource.ID, PermissionManageResources); err != nil {
		return nil, err
	}
	if err := resource.Validate(); err != nil {
		return nil, err
	}

	err := c.scheduler.Exclusive(func() error {
		existing, err := c.store.GetResource(resource.ID)
		if err != nil {
			return err
		}
		resource.CreatedAt = existing.CreatedAt
		return c.scheduler.Apply(&storage.ChangeSet{PutResources: []*types.Resource{resource}})
	})
	if err != nil {
		return nil, err
	}
	logger := log.WithResourceID(c.logger, resource.ID)
	logger.Info().Msg("Resource updated")
	return resource, nil
}

// DeleteResource removes a resource without reservations in the future
func (c *Controller) DeleteResource(principal, resourceID string) error {
	if err := c.authorize(principal, resourceID, PermissionManageResources); err != nil {
		return err
	}

	err := c.scheduler.Exclusive(func() error {
		if _, err := c.store.GetResource(resourceID); err != nil {
			return err
		}
		reservations, err := c.store.ListReservations()
		if err != nil {
			return err
		}
		now := c.scheduler.Now()
		for _, r := range reservations {
			if r.Slot.End.After(now) && (r.TargetID == resourceID || aliasResource(r) == resourceID) {
				return fmt.Errorf("%w: %s is reserved by %s", ErrResourceInUse, resourceID, r.ID)
			}
		}
		return c.scheduler.Apply(&storage.ChangeSet{DeleteResources: []string{resourceID}})
	})
	if err != nil {
		return err
	}

	logger := log.WithResourceID(c.logger, resourceID)
	logger.Info().Msg("Resource deleted")
	c.publish(events.New(events.EventResourceDeleted, "resource deleted", "resource", resourceID))
	return nil
}

func aliasResource(r *types.Reservation) string {
	if r.Alias == nil {
		return ""
	}
	return r.Alias.ResourceID
}

// GetResource returns a resource
func (c *Controller) GetResource(resourceID string) (*types.Resource, error) {
	return c.store.GetResource(resourceID)
}

// ListResources returns every resource
func (c *Controller) ListResources() ([]*types.Resource, error) {
	return c.store.ListResources()
}
