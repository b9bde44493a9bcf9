package types

import "github.com/m-mizutani/goerr/v2"

// ModlogType classifies an audit log case
type ModlogType string

const (
	ModlogTypeMute       ModlogType = "MUTE"
	ModlogTypeTempMute   ModlogType = "TEMP_MUTE"
	ModlogTypeUnmute     ModlogType = "UNMUTE"
	ModlogTypeAutoUnmute ModlogType = "AUTO_UNMUTE"
)

// AllModlogTypes returns all valid modlog types
func AllModlogTypes() []ModlogType {
	return []ModlogType{
		ModlogTypeMute,
		ModlogTypeTempMute,
		ModlogTypeUnmute,
		ModlogTypeAutoUnmute,
	}
}

// IsValid checks if the modlog type is valid
func (t ModlogType) IsValid() bool {
	switch t {
	case ModlogTypeMute,
		ModlogTypeTempMute,
		ModlogTypeUnmute,
		ModlogTypeAutoUnmute:
		return true
	default:
		return false
	}
}

// IsAutomatic reports whether the case was written by the engine rather than a moderator
func (t ModlogType) IsAutomatic() bool {
	return t == ModlogTypeAutoUnmute
}

// Label returns the human readable name used in modlog messages
func (t ModlogType) Label() string {
	switch t {
	case ModlogTypeMute:
		return "Mute"
	case ModlogTypeTempMute:
		return "Temporary mute"
	case ModlogTypeUnmute:
		return "Unmute"
	case ModlogTypeAutoUnmute:
		return "Unmute (expired)"
	default:
		return string(t)
	}
}

func (t ModlogType) String() string {
	return string(t)
}

// ParseModlogType parses a string into a ModlogType
func ParseModlogType(s string) (ModlogType, error) {
	t := ModlogType(s)
	if !t.IsValid() {
		return "", goerr.New("invalid modlog type", goerr.V("type", s))
	}
	return t, nil
}

// ApplyModlogTypes returns the case types opened by applying kind
func ApplyModlogTypes(kind ActionKind) []ModlogType {
	switch kind {
	case ActionKindMute:
		return []ModlogType{ModlogTypeMute, ModlogTypeTempMute}
	default:
		return nil
	}
}
