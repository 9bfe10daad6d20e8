//go:build tools
// +build tools

// Package tools tracks code generators used via go generate (mockgen).
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
