//go:build tools
// +build tools

// Package tools pins Go-based tools invoked via `go generate` (mockgen) as
// module dependencies so generation is reproducible on a fresh checkout.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
