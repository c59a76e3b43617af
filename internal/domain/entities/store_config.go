package entities

// StoreConfig configures a symbol-store file locator: where to look for
// support libraries on the local disk, which symbol servers to query, where
// to cache downloads, and how aggressively to verify what was found.
type StoreConfig struct {
	// CacheDir is where server downloads are materialized.
	CacheDir string
	// SearchDirs are local directories probed before any server is queried.
	SearchDirs []string
	// Servers are symbol-server base URLs, queried in order.
	Servers []string
	// VerifyChecksums enables checking a ".sha256" sibling file when present.
	VerifyChecksums bool
	// VerifyGPG enables detached-signature verification of downloads.
	VerifyGPG bool
	// GPGKeyFiles are armored public-key files trusted for verification.
	GPGKeyFiles []string
}
