// Package version reports what build of pagemark is running.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/pagemark/internal/version.Version=1.0.0 ..."
//
// Builds without ldflags (go install, go run) fall back to the module
// version and VCS stamp recorded by the toolchain.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	Version = "0.0.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var (
	once sync.Once
	info Info
)

// Get returns the build information. It is computed once.
func Get() Info {
	once.Do(func() {
		info = resolve(Version, Commit, Date, readBuildInfo)
	})
	return info
}

func readBuildInfo() (*debug.BuildInfo, bool) { return debug.ReadBuildInfo() }

// resolve fills unset ldflags values from the toolchain's build info.
func resolve(ver, commit, date string, read func() (*debug.BuildInfo, bool)) Info {
	out := Info{
		Version:   ver,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := read()
	if !ok {
		return out
	}
	if out.Version == "0.0.0-dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		out.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && out.Commit == "unknown":
			out.Commit = s.Value
		case s.Key == "vcs.time" && out.Date == "unknown":
			out.Date = s.Value
		}
	}
	return out
}

// String is the form printed by `pagemark version`.
func (i Info) String() string {
	return i.Version + " (" + shortCommit(i.Commit) + ") built " + i.Date + " " + i.Platform
}

// Short is the bare version, used in headers and the OpenAPI document.
func (i Info) Short() string {
	return i.Version
}

// UserAgent is sent on every outbound request.
func (i Info) UserAgent() string {
	return "pagemark/" + i.Version
}

func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
