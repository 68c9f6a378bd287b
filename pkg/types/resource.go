package types

import (
	"fmt"
	"strings"
	"time"
)

// Resource is a managed device or logical resource that reservations can occupy
type Resource struct {
	ID            string        `yaml:"id"`
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description,omitempty"`
	ParentID      string        `yaml:"parentId,omitempty"`
	Allocatable   bool          `yaml:"allocatable"`
	MaximumFuture time.Duration `yaml:"maximumFuture,omitempty"` // 0 means unlimited
	Technologies  []Technology  `yaml:"technologies,omitempty"`
	Capabilities  Capabilities  `yaml:"capabilities,omitempty"`
	CreatedAt     time.Time     `yaml:"-"`
}

// Capabilities lists what a resource is able to provide
type Capabilities struct {
	Terminal       *TerminalCapability        `yaml:"terminal,omitempty"`
	RoomProvider   *RoomProviderCapability    `yaml:"roomProvider,omitempty"`
	AliasProviders []*AliasProviderCapability `yaml:"aliasProviders,omitempty"`
	ValueProvider  *ValueProviderCapability   `yaml:"valueProvider,omitempty"`
}

// TerminalCapability marks a device that participates as an endpoint
type TerminalCapability struct {
	Standalone bool    `yaml:"standalone"`
	Aliases    []Alias `yaml:"aliases,omitempty"`
}

// RoomProviderCapability marks a device (MCU) able to host virtual rooms
type RoomProviderCapability struct {
	LicenseCount       int         `yaml:"licenseCount"`
	MaxLicencesPerRoom int         `yaml:"maxLicencesPerRoom,omitempty"` // 0 means unlimited
	RequiredAliasTypes []AliasType `yaml:"requiredAliasTypes,omitempty"`
}

// AliasProviderCapability allocates aliases. Alias values containing
// "{value}" are filled with a value from the referenced value provider.
type AliasProviderCapability struct {
	ID                   string  `yaml:"id"`
	Aliases              []Alias `yaml:"aliases"`
	ValueProviderID      string  `yaml:"valueProviderId,omitempty"`
	RestrictedToResource bool    `yaml:"restrictedToResource,omitempty"`
	PermanentRoom        bool    `yaml:"permanentRoom,omitempty"`
}

// ValuePlaceholder is replaced by the allocated value in alias templates
const ValuePlaceholder = "{value}"

// Technologies returns the technologies of the provided aliases
func (c *AliasProviderCapability) Technologies() TechnologySet {
	var set TechnologySet
	for _, alias := range c.Aliases {
		if t := alias.Technology(); t != "" && !set.Has(t) {
			set = append(set, t)
		}
	}
	return set
}

// ProvidesAliasType reports whether an alias of aliasType is provided
func (c *AliasProviderCapability) ProvidesAliasType(aliasType AliasType) bool {
	for _, alias := range c.Aliases {
		if alias.Type == aliasType {
			return true
		}
	}
	return false
}

// UsesValue reports whether any alias template needs an allocated value
func (c *AliasProviderCapability) UsesValue() bool {
	for _, alias := range c.Aliases {
		if strings.Contains(alias.Value, ValuePlaceholder) {
			return true
		}
	}
	return false
}

// ValueProviderCapability generates unique values from patterns
type ValueProviderCapability struct {
	Patterns               []string `yaml:"patterns"`
	AllowAnyRequestedValue bool     `yaml:"allowAnyRequestedValue,omitempty"`
}

// IsDevice reports whether the resource is a videoconferencing device
func (r *Resource) IsDevice() bool {
	return len(r.Technologies) > 0
}

// IsTerminal reports whether the resource acts as an endpoint
func (r *Resource) IsTerminal() bool {
	return r.Capabilities.Terminal != nil
}

// AliasProvider returns the alias provider capability with the given id
func (r *Resource) AliasProvider(id string) *AliasProviderCapability {
	for _, capability := range r.Capabilities.AliasProviders {
		if capability.ID == id {
			return capability
		}
	}
	return nil
}

// IsAvailableAt reports whether the resource may be allocated for slot
// when scheduling at now.
func (r *Resource) IsAvailableAt(slot Interval, now time.Time) bool {
	if !r.Allocatable {
		return false
	}
	if r.MaximumFuture > 0 && slot.End.After(now.Add(r.MaximumFuture)) {
		return false
	}
	return true
}

// Validate checks that the resource definition is consistent
func (r *Resource) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("resource id is required")
	}
	if r.MaximumFuture < 0 {
		return fmt.Errorf("resource %s: maximum future must not be negative", r.ID)
	}
	if rp := r.Capabilities.RoomProvider; rp != nil {
		if !r.IsDevice() {
			return fmt.Errorf("resource %s: room provider must declare technologies", r.ID)
		}
		if rp.LicenseCount < 0 || rp.MaxLicencesPerRoom < 0 {
			return fmt.Errorf("resource %s: license counts must not be negative", r.ID)
		}
	}
	seen := make(map[string]bool)
	for _, ap := range r.Capabilities.AliasProviders {
		if ap.ID == "" {
			return fmt.Errorf("resource %s: alias provider id is required", r.ID)
		}
		if seen[ap.ID] {
			return fmt.Errorf("resource %s: duplicate alias provider %s", r.ID, ap.ID)
		}
		seen[ap.ID] = true
		if len(ap.Aliases) == 0 {
			return fmt.Errorf("resource %s: alias provider %s provides no aliases", r.ID, ap.ID)
		}
		if ap.UsesValue() && ap.ValueProviderID == "" && r.Capabilities.ValueProvider == nil {
			return fmt.Errorf("resource %s: alias provider %s needs a value provider", r.ID, ap.ID)
		}
	}
	if vp := r.Capabilities.ValueProvider; vp != nil && len(vp.Patterns) == 0 && !vp.AllowAnyRequestedValue {
		return fmt.Errorf("resource %s: value provider has no patterns", r.ID)
	}
	return nil
}
