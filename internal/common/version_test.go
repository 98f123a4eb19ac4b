package common

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyBuildInfo(t *testing.T) {
	restore := func(v, b, c string) { Version, Build, GitCommit = v, b, c }
	defer restore(Version, Build, GitCommit)

	tests := []struct {
		name       string
		preset     [3]string
		info       debug.BuildInfo
		wantVer    string
		wantCommit string
		wantBuild  string
	}{
		{
			name:   "fills unset values",
			preset: [3]string{"dev", "unknown", "unknown"},
			info: debug.BuildInfo{
				Main: debug.Module{Version: "v1.2.0"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "0123456789abcdef0123"},
					{Key: "vcs.time", Value: "2024-07-01T10:00:00Z"},
				},
			},
			wantVer:    "v1.2.0",
			wantCommit: "0123456789ab",
			wantBuild:  "2024-07-01T10:00:00Z",
		},
		{
			name:   "ldflags win",
			preset: [3]string{"1.0.0", "20240101", "abc"},
			info: debug.BuildInfo{
				Main:     debug.Module{Version: "v9.9.9"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffff"}},
			},
			wantVer:    "1.0.0",
			wantCommit: "abc",
			wantBuild:  "20240101",
		},
		{
			name:       "devel build keeps dev",
			preset:     [3]string{"dev", "unknown", "unknown"},
			info:       debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			wantVer:    "dev",
			wantCommit: "unknown",
			wantBuild:  "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restore(tt.preset[0], tt.preset[1], tt.preset[2])
			applyBuildInfo(&tt.info)
			assert.Equal(t, tt.wantVer, Version)
			assert.Equal(t, tt.wantCommit, GitCommit)
			assert.Equal(t, tt.wantBuild, Build)
		})
	}
}
