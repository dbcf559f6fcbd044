package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fedactor/flmesh/internal/actor"
)

// parseRemoteAddr turns a "host:port" flag value into a RemoteAddr.
func parseRemoteAddr(hostport string) (actor.RemoteAddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return actor.RemoteAddr{}, fmt.Errorf("invalid address %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return actor.RemoteAddr{}, fmt.Errorf("invalid port in %q: %w", hostport, err)
	}
	return actor.RemoteAddr{Host: host, Port: port}, nil
}
