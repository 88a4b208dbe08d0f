package common

import (
	"errors"
)

// Common error constants
var (
	// ErrInvalidConfig is returned when an invalid configuration is provided
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDeployInProgress is returned when a deploy is requested for an app
	// that already has one running
	ErrDeployInProgress = errors.New("a deployment is already in progress for this app")

	// ErrJobNotFound is returned when a deploy job cannot be located
	ErrJobNotFound = errors.New("deploy job not found")
)
