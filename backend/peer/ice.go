package peer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

var (
	ErrICEScheme      = errors.New("unsupported ice url scheme")
	ErrTURNCredential = errors.New("turn urls require username and credential")
)

// ParseICEServers groups STUN and TURN urls into ICE server entries.
// Empty entries are skipped.
func ParseICEServers(urls []string, username, credential string) ([]webrtc.ICEServer, error) {
	var stun, turn []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		switch {
		case u == "":
		case strings.HasPrefix(u, "stun:"), strings.HasPrefix(u, "stuns:"):
			stun = append(stun, u)
		case strings.HasPrefix(u, "turn:"), strings.HasPrefix(u, "turns:"):
			turn = append(turn, u)
		default:
			return nil, fmt.Errorf("%w: %q", ErrICEScheme, u)
		}
	}

	var servers []webrtc.ICEServer
	if len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if len(turn) > 0 {
		if strings.TrimSpace(username) == "" || strings.TrimSpace(credential) == "" {
			return nil, ErrTURNCredential
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: credential,
		})
	}
	return servers, nil
}
