package note

import (
	goerrors "github.com/goliatone/go-errors"
)

// Error categories used across the gateway and the client components.
// Validation failures use goerrors.CategoryValidation.
var (
	CategoryNetwork = goerrors.CategoryExternal.Extend("network")
	CategoryServer  = goerrors.CategoryExternal.Extend("server")
)

// NewNetworkError wraps a transport failure.
func NewNetworkError(source error, message string) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, CategoryNetwork).WithTextCode("NETWORK_ERROR")
	}
	return goerrors.Wrap(source, CategoryNetwork, message).WithTextCode("NETWORK_ERROR")
}

// NewServerError reports a non-success response from the backend.
func NewServerError(status int, message string) *goerrors.Error {
	return goerrors.New(message, CategoryServer).
		WithCode(status).
		WithTextCode(goerrors.HTTPStatusToTextCode(status))
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	return goerrors.IsCategory(err, CategoryNetwork)
}

// IsServer reports whether err is a non-success backend response.
func IsServer(err error) bool {
	return goerrors.IsCategory(err, CategoryServer)
}

// IsValidation reports whether err is a field validation failure.
func IsValidation(err error) bool {
	return goerrors.IsValidation(err)
}
