package main

import (
	"github.com/riskpulse/riskpulse/internal/cli"
)

// Build information is injected with ldflags:
//
//	go build -ldflags "-X github.com/riskpulse/riskpulse/internal/version.Version=1.0.0 \
//	  -X github.com/riskpulse/riskpulse/internal/version.Commit=$(git rev-parse HEAD)" ./cmd/riskpulse
func main() {
	cli.Execute()
}
