package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v3"
)

// ErrInvalidEndpoint indicates an endpoint string that cannot be parsed.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// ParseEndpoint converts an endpoint description into a gomavlib endpoint.
//
// Accepted forms:
//
//	udps:<listen-addr>         UDP server
//	udpc:<remote-addr>         UDP client
//	udpb:<broadcast-addr>      UDP broadcast
//	tcps:<listen-addr>         TCP server
//	tcpc:<remote-addr>         TCP client
//	serial:<device>:<baud>     serial port
func ParseEndpoint(s string) (gomavlib.EndpointConf, error) {
	kind, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || rest == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, s)
	}

	switch kind {
	case "udps":
		return gomavlib.EndpointUDPServer{Address: rest}, nil
	case "udpc":
		return gomavlib.EndpointUDPClient{Address: rest}, nil
	case "udpb":
		return gomavlib.EndpointUDPBroadcast{BroadcastAddress: rest}, nil
	case "tcps":
		return gomavlib.EndpointTCPServer{Address: rest}, nil
	case "tcpc":
		return gomavlib.EndpointTCPClient{Address: rest}, nil
	case "serial":
		idx := strings.LastIndex(rest, ":")
		if idx <= 0 {
			return nil, fmt.Errorf("%w: serial endpoint needs <device>:<baud>: %q", ErrInvalidEndpoint, s)
		}
		baud, err := strconv.Atoi(rest[idx+1:])
		if err != nil || baud <= 0 {
			return nil, fmt.Errorf("%w: bad baud rate in %q", ErrInvalidEndpoint, s)
		}
		return gomavlib.EndpointSerial{Device: rest[:idx], Baud: baud}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidEndpoint, kind)
	}
}

// ParseEndpoints parses every entry of list.
func ParseEndpoints(list []string) ([]gomavlib.EndpointConf, error) {
	out := make([]gomavlib.EndpointConf, 0, len(list))
	for _, s := range list {
		ep, err := ParseEndpoint(s)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}
