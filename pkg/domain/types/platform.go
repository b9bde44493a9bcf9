package types

import "github.com/m-mizutani/goerr/v2"

// Platform is the chat platform a guild lives on
type Platform string

const (
	PlatformSlack    Platform = "slack"
	PlatformTelegram Platform = "telegram"
)

// IsValid checks if the platform is supported
func (p Platform) IsValid() bool {
	switch p {
	case PlatformSlack, PlatformTelegram:
		return true
	default:
		return false
	}
}

func (p Platform) String() string {
	return string(p)
}

// ParsePlatform parses a string into a Platform
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.IsValid() {
		return "", goerr.New("unsupported platform", goerr.V("platform", s))
	}
	return p, nil
}
