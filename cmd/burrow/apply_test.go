package main

import (
	"strings"
	"testing"

	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifests = `
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
  userId: alice
  slot:
    start: 2026-05-04T09:00:00Z
    end: 2026-05-04T10:00:00Z
  specification:
    kind: room
    room:
      variants: [[H323]]
      participantCount: 5
`

func TestReadManifests(t *testing.T) {
	docs, err := readManifests(strings.NewReader(manifests))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, KindResource, docs[0].Kind)
	var resource types.Resource
	require.NoError(t, docs[0].Spec.Decode(&resource))
	assert.Equal(t, "mcu-1", resource.ID)
	assert.True(t, resource.Allocatable)
	require.NotNil(t, resource.Capabilities.RoomProvider)
	assert.Equal(t, 20, resource.Capabilities.RoomProvider.LicenseCount)

	assert.Equal(t, KindRequest, docs[1].Kind)
	var r request.ReservationRequest
	require.NoError(t, docs[1].Spec.Decode(&r))
	assert.Equal(t, request.KindSingle, r.Kind)
	assert.Equal(t, "alice", r.UserID)
	assert.Equal(t, "2026-05-04T09:00:00Z", r.Slot.Start.UTC().Format("2006-01-02T15:04:05Z07:00"))
	require.NotNil(t, r.Specification)
	assert.Equal(t, specification.KindRoom, r.Specification.Kind)
	assert.Equal(t, 5, r.Specification.Room.ParticipantCount)
}

func TestReadManifestsRejectsMalformedYAML(t *testing.T) {
	_, err := readManifests(strings.NewReader("kind: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse YAML")
}
