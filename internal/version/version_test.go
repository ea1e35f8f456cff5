package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			name: "dev build",
			info: Info{Version: "dev", Commit: "unknown", BuildDate: "unknown", GoVersion: "go1.22.1"},
			want: "riskpulse dev (go1.22.1)",
		},
		{
			name: "release build",
			info: Info{Version: "1.2.0", Commit: "0123456789abcdef", BuildDate: "2024-03-01", GoVersion: "go1.22.1"},
			want: "riskpulse 1.2.0 (commit: 0123456, built: 2024-03-01, go1.22.1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, Commit, info.Commit)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}
