package commands

import "path"

// RemoteEnvFile is the name the selected environment file is uploaded as.
const RemoteEnvFile = ".env"

// baseExcludes are never synced, whatever environment is selected.
// Environment variant files are uploaded separately as RemoteEnvFile.
var baseExcludes = []string{
	".git/",
	".venv/",
	".DS_Store",
	"__pycache__/",
	"node_modules/",
	"dist/",
	".nuxt/",
	".output/",
	".nitro/",
	".npm-cache/",
	".cache/",
	".vscode/",
	".idea/",
	".env.*",
}

// SyncExcludes returns the base exclude patterns followed by extra,
// without duplicates and in a stable order.
func SyncExcludes(extra ...string) []string {
	seen := make(map[string]bool, len(baseExcludes)+len(extra))
	out := make([]string, 0, len(baseExcludes)+len(extra))
	for _, list := range [][]string{baseExcludes, extra} {
		for _, p := range list {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// RemoteEnvPath is where the environment file lands on the host.
func RemoteEnvPath(remotePath string) string {
	return path.Join(remotePath, RemoteEnvFile)
}
