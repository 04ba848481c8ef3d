package configtypes

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseListenAddress splits a listen address into host and port.
// Accepts ":8080", "8080", "localhost:8080" and "0.0.0.0:8080".
func ParseListenAddress(listen string) (string, int, error) {
	if listen == "" {
		return "", 0, fmt.Errorf("listen address is empty")
	}

	host, portStr := "", listen
	if strings.Contains(listen, ":") {
		var err error
		host, portStr, err = net.SplitHostPort(listen)
		if err != nil {
			return "", 0, fmt.Errorf("invalid listen address format: %s: %w", listen, err)
		}
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in listen address: %s", listen)
	}
	return host, port, nil
}

// ValidateListenAddress checks the format and that the port is within 1..65535.
func ValidateListenAddress(listen string) error {
	_, port, err := ParseListenAddress(listen)
	if err != nil {
		return err
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// NormalizeListen returns the address in host:port form
func NormalizeListen(listen string) (string, error) {
	host, port, err := ParseListenAddress(listen)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}
