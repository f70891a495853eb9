package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" {
		t.Error("Version should not be empty")
	}
	if info.GoVersion == "" {
		t.Error("GoVersion should not be empty")
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("Platform = %q, want os/arch", info.Platform)
	}
	if Get() != info {
		t.Error("Get should be stable")
	}
}

func TestResolve(t *testing.T) {
	stamped := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "v0.3.1"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef"},
				{Key: "vcs.time", Value: "2026-03-04T05:06:07Z"},
			},
		}, true
	}

	tests := []struct {
		name    string
		ver     string
		commit  string
		date    string
		read    func() (*debug.BuildInfo, bool)
		want    string
		wantRev string
	}{
		{"ldflags win", "1.2.3", "abc", "2026-01-01", stamped, "1.2.3", "abc"},
		{"build info fills defaults", "0.0.0-dev", "unknown", "unknown", stamped, "v0.3.1", "0123456789abcdef"},
		{"no build info", "0.0.0-dev", "unknown", "unknown", func() (*debug.BuildInfo, bool) { return nil, false }, "0.0.0-dev", "unknown"},
		{"devel module", "0.0.0-dev", "unknown", "unknown", func() (*debug.BuildInfo, bool) {
			return &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, true
		}, "0.0.0-dev", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolve(tt.ver, tt.commit, tt.date, tt.read)
			if got.Version != tt.want || got.Commit != tt.wantRev {
				t.Errorf("resolve() = %s / %s, want %s / %s", got.Version, got.Commit, tt.want, tt.wantRev)
			}
		})
	}
}

func TestInfo_String(t *testing.T) {
	info := Info{Version: "1.2.3", Commit: "abcdef1234567", Date: "2026-01-01", Platform: "linux/amd64"}
	want := "1.2.3 (abcdef1) built 2026-01-01 linux/amd64"
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestInfo_UserAgent(t *testing.T) {
	info := Info{Version: "0.4.0"}
	if got := info.UserAgent(); got != "pagemark/0.4.0" {
		t.Errorf("UserAgent() = %q, want %q", got, "pagemark/0.4.0")
	}
}
