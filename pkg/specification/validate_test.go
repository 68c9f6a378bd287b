package specification

import (
	"errors"
	"testing"

	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	h323 := [][]types.Technology{{types.TechnologyH323}}

	tests := []struct {
		name    string
		spec    *Specification
		wantErr bool
	}{
		{"resource", NewResource("r1"), false},
		{"resource without id", NewResource(""), true},
		{"alias with technology", NewAlias(AliasSpec{Technologies: []types.Technology{types.TechnologySIP}}), false},
		{"alias with nothing", NewAlias(AliasSpec{}), true},
		{"alias with resource only", NewAlias(AliasSpec{ResourceID: "mcu"}), false},
		{"empty alias set", NewAliasSet(false), true},
		{"alias set with resource", NewAliasSet(false, NewResource("r")), true},
		{"room", NewRoom(RoomSpec{Variants: h323, ParticipantCount: 5}), false},
		{"room without variants", NewRoom(RoomSpec{ParticipantCount: 5}), true},
		{"room with empty variant", NewRoom(RoomSpec{Variants: [][]types.Technology{{}}, ParticipantCount: 5}), true},
		{"alias only room", NewRoom(RoomSpec{Variants: h323, WithAlias: true}), false},
		{"room without participants or aliases", NewRoom(RoomSpec{Variants: h323}), true},
		{"value", NewValue("vp"), false},
		{"value without provider", NewValue(""), true},
		{"compartment with invalid child", NewCompartment(NewValue("")), true},
		{"multi compartment with room", NewMultiCompartment(NewRoom(RoomSpec{Variants: h323, ParticipantCount: 1})), true},
		{"unknown kind", &Specification{Kind: "printer"}, true},
		{"nil", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.True(t, errors.Is(err, report.ErrSpecification), "got %v", err)
		})
	}
}
