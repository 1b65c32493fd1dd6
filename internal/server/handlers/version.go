package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"
)

var (
	buildMu  sync.RWMutex
	build    = BuildInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
	identity *appidentity.Identity
)

// BuildInfo is the ldflags-injected build metadata.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// SetVersionInfo records build metadata injected by main.
func SetVersionInfo(version, commit, buildDate string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	build = BuildInfo{Version: version, Commit: commit, BuildDate: buildDate}
}

// SetAppIdentity sets the identity reported as the app name.
func SetAppIdentity(id *appidentity.Identity) {
	buildMu.Lock()
	defer buildMu.Unlock()
	identity = id
}

// RelayInfo describes the dispatch surface this process serves.
type RelayInfo struct {
	Prefix       string `json:"prefix"`
	Routes       int    `json:"routes"`
	StoreBackend string `json:"store_backend"`
	Dispatching  bool   `json:"dispatching"`
}

// VersionResponse is the /version payload.
type VersionResponse struct {
	App   AppInfo    `json:"app"`
	Relay *RelayInfo `json:"relay,omitempty"`
	// Gofulmen and crucible versions, keyed by module.
	Dependencies map[string]string `json:"dependencies"`
	Runtime      RuntimeInfo       `json:"runtime"`
}

type AppInfo struct {
	Name string `json:"name"`
	BuildInfo
	GoVersion string `json:"go_version,omitempty"`
}

type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

func appName() string {
	if identity != nil && identity.BinaryName != "" {
		return identity.BinaryName
	}
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "unknown"
}

// NewVersionHandler reports build and runtime details. relay is evaluated
// per request so the route count tracks catalog reloads; it may be nil.
func NewVersionHandler(relay func() RelayInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buildMu.RLock()
		resp := VersionResponse{
			App: AppInfo{
				Name:      appName(),
				BuildInfo: build,
				GoVersion: runtime.Version(),
			},
		}
		buildMu.RUnlock()

		v := crucible.GetVersion()
		resp.Dependencies = map[string]string{
			"gofulmen": v.Gofulmen,
			"crucible": v.Crucible,
		}
		resp.Runtime = RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		}
		if relay != nil {
			info := relay()
			resp.Relay = &info
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// VersionHandler serves /version without relay details.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	NewVersionHandler(nil)(w, r)
}
