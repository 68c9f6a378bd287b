package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Manifest kinds
const (
	KindResource = "Resource"
	KindRequest  = "ReservationRequest"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply resources and reservation requests from a YAML file",
	Long: `Apply burrow objects from a YAML file holding one or more documents.

Resources are created, or updated when the id exists. Requests are
created, or modified when the id names an existing request.

Example:
  kind: Resource
  spec:
    id: mcu-1
    name: MCU
    allocatable: true
    technologies: [H323, SIP]
    capabilities:
      roomProvider:
        licenseCount: 20
  ---
  kind: ReservationRequest
  spec:
    kind: single
    slot:
      start: 2026-05-04T09:00:00Z
      end: 2026-05-04T10:00:00Z
    specification:
      kind: room
      room:
        variants: [[H323]]
        participantCount: 5

Examples:
  burrow apply -f room.yaml
  burrow apply -f room.yaml --schedule`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	applyCmd.Flags().Bool("schedule", false, "Run one scheduling pass after applying")
	_ = applyCmd.MarkFlagRequired("file")
}

// Manifest is one document of an applied file
type Manifest struct {
	Kind string    `yaml:"kind"`
	Spec yaml.Node `yaml:"spec"`
}

// readManifests decodes every document of r
func readManifests(r io.Reader) ([]Manifest, error) {
	decoder := yaml.NewDecoder(r)
	var manifests []Manifest
	for {
		var manifest Manifest
		err := decoder.Decode(&manifest)
		if errors.Is(err, io.EOF) {
			return manifests, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if manifest.Kind == "" {
			continue
		}
		manifests = append(manifests, manifest)
	}
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	schedule, _ := cmd.Flags().GetBool("schedule")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	manifests, err := readManifests(f)
	if err != nil {
		return err
	}

	return withLocal(func(l *local) error {
		for i, manifest := range manifests {
			if err := applyManifest(l, principal(cmd), &manifest); err != nil {
				return fmt.Errorf("document %d (%s): %w", i+1, manifest.Kind, err)
			}
		}
		if !schedule {
			return nil
		}
		return runSchedule(l)
	})
}

func applyManifest(l *local, user string, manifest *Manifest) error {
	switch manifest.Kind {
	case KindResource:
		var resource types.Resource
		if err := manifest.Spec.Decode(&resource); err != nil {
			return err
		}
		return applyResource(l, user, &resource)
	case KindRequest:
		var r request.ReservationRequest
		if err := manifest.Spec.Decode(&r); err != nil {
			return err
		}
		return applyRequest(l, user, &r)
	default:
		return fmt.Errorf("unsupported kind: %s", manifest.Kind)
	}
}

func applyResource(l *local, user string, resource *types.Resource) error {
	_, err := l.controller.GetResource(resource.ID)
	switch {
	case err == nil:
		if _, err := l.controller.UpdateResource(user, resource); err != nil {
			return fmt.Errorf("failed to update resource: %w", err)
		}
		fmt.Printf("✓ Resource updated: %s\n", resource.ID)
	case errors.Is(err, storage.ErrNotFound):
		if _, err := l.controller.CreateResource(user, resource); err != nil {
			return fmt.Errorf("failed to create resource: %w", err)
		}
		fmt.Printf("✓ Resource created: %s\n", resource.ID)
	default:
		return err
	}
	return nil
}

func applyRequest(l *local, user string, r *request.ReservationRequest) error {
	if r.ID != "" {
		existing, err := l.controller.GetRequest(user, r.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if existing != nil {
			modified, err := l.controller.ModifyRequest(user, r.ID, r)
			if err != nil {
				return fmt.Errorf("failed to modify request: %w", err)
			}
			fmt.Printf("✓ Request modified: %s -> %s (%s)\n", r.ID, modified.ID, modified.AllocationState)
			return nil
		}
	}

	created, err := l.controller.CreateRequest(user, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	fmt.Printf("✓ Request created: %s (%s)\n", created.ID, created.AllocationState)
	return nil
}
