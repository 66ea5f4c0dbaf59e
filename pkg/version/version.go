// Package version carries build identification injected at link time:
//
//	-X 'github.com/chunkr/chunkr/pkg/version.Version=v1.0.0'
//	-X 'github.com/chunkr/chunkr/pkg/version.CommitHash=abc123'
//	-X 'github.com/chunkr/chunkr/pkg/version.BuildDate=2026-01-01T00:00:00Z'
package version

var (
	Version    = "unknown"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// Info is the structured build identification echoed by the CLI.
type Info struct {
	Version    string `json:"version"     yaml:"version"`
	CommitHash string `json:"commit_hash" yaml:"commit_hash"`
	BuildDate  string `json:"build_date"  yaml:"build_date"`
}

func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildDate:  BuildDate,
	}
}
