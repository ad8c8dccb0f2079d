// Package common contains variables and helpers shared by all services.
package common

// PackageName is used as the namespace for metrics.
var PackageName = "blink_threshold_access"

// Version is set at build time with -ldflags "-X ...common.Version=v1.2.3".
var Version = "dev"
