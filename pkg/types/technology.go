package types

// Technology is a videoconferencing protocol or platform
type Technology string

const (
	TechnologyH323         Technology = "H323"
	TechnologySIP          Technology = "SIP"
	TechnologyAdobeConnect Technology = "ADOBE_CONNECT"
	TechnologyPexip        Technology = "PEXIP"
	TechnologySkype        Technology = "SKYPE_FOR_BUSINESS"
	TechnologyFreePBX      Technology = "FREEPBX"
	TechnologyWebRTC       Technology = "WEBRTC"
)

// AliasType identifies the kind of address an alias represents
type AliasType string

const (
	AliasTypeRoomName                AliasType = "ROOM_NAME"
	AliasTypeH323E164                AliasType = "H323_E164"
	AliasTypeH323URI                 AliasType = "H323_URI"
	AliasTypeH323IP                  AliasType = "H323_IP"
	AliasTypeSIPURI                  AliasType = "SIP_URI"
	AliasTypeSIPIP                   AliasType = "SIP_IP"
	AliasTypeAdobeConnectURI         AliasType = "ADOBE_CONNECT_URI"
	AliasTypeWebClientURI            AliasType = "WEB_CLIENT_URI"
	AliasTypeSkypeURI                AliasType = "SKYPE_URI"
	AliasTypeFreePBXConferenceNumber AliasType = "FREEPBX_CONFERENCE_NUMBER"
)

var aliasTypeTechnology = map[AliasType]Technology{
	AliasTypeH323E164:                TechnologyH323,
	AliasTypeH323URI:                 TechnologyH323,
	AliasTypeH323IP:                  TechnologyH323,
	AliasTypeSIPURI:                  TechnologySIP,
	AliasTypeSIPIP:                   TechnologySIP,
	AliasTypeAdobeConnectURI:         TechnologyAdobeConnect,
	AliasTypeWebClientURI:            TechnologyPexip,
	AliasTypeSkypeURI:                TechnologySkype,
	AliasTypeFreePBXConferenceNumber: TechnologyFreePBX,
}

// Technology returns the technology the alias type belongs to.
// ROOM_NAME is technology neutral and returns "".
func (t AliasType) Technology() Technology {
	return aliasTypeTechnology[t]
}

// Alias is a concrete address under which a room or endpoint is reachable
type Alias struct {
	Type  AliasType `yaml:"type"`
	Value string    `yaml:"value"`
}

// Technology returns the technology of the alias type
func (a Alias) Technology() Technology {
	return a.Type.Technology()
}

// TechnologySet is a small ordered set of technologies
type TechnologySet []Technology

// Has reports whether the set contains technology
func (s TechnologySet) Has(technology Technology) bool {
	for _, t := range s {
		if t == technology {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every technology of other is present in s
func (s TechnologySet) ContainsAll(other []Technology) bool {
	for _, t := range other {
		if !s.Has(t) {
			return false
		}
	}
	return true
}

// Intersects reports whether s and other share a technology
func (s TechnologySet) Intersects(other []Technology) bool {
	for _, t := range other {
		if s.Has(t) {
			return true
		}
	}
	return false
}

// Union returns s extended with the technologies of other not already present
func (s TechnologySet) Union(other []Technology) TechnologySet {
	result := append(TechnologySet{}, s...)
	for _, t := range other {
		if !result.Has(t) {
			result = append(result, t)
		}
	}
	return result
}

// Purpose describes why a reservation request was made
type Purpose string

const (
	PurposeScience     Purpose = "SCIENCE"
	PurposeEducation   Purpose = "EDUCATION"
	PurposeMaintenance Purpose = "MAINTENANCE"
	PurposeOwner       Purpose = "OWNER"
	PurposeEvaluation  Purpose = "EVALUATION"
)
