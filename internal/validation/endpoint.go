package validation

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

/* EndpointValidationResult represents the result of endpoint validation */
type EndpointValidationResult struct {
	Valid    bool
	Error    string
	Warnings []string
}

/* ValidateHostPort validates a host:port endpoint address */
func ValidateHostPort(endpoint string) EndpointValidationResult {
	result := EndpointValidationResult{
		Valid:    true,
		Warnings: []string{},
	}

	if endpoint == "" {
		result.Valid = false
		result.Error = "endpoint cannot be empty"
		return result
	}

	host, port, err := net.SplitHostPort(strings.TrimSpace(endpoint))
	if err != nil {
		result.Valid = false
		result.Error = fmt.Sprintf("endpoint must be host:port: %v", err)
		return result
	}

	if host == "" {
		result.Valid = false
		result.Error = "endpoint is missing a host"
		return result
	}

	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		result.Valid = false
		result.Error = fmt.Sprintf("endpoint port %q is not a valid port number", port)
		return result
	}

	if host == "localhost" || host == "127.0.0.1" {
		result.Warnings = append(result.Warnings, "endpoint points at the loopback interface")
	}

	return result
}
