// Package symstore locates support libraries in local directories and on
// simple-symbol-query (SSQP) HTTP symbol servers.
package symstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	adapters "github.com/ochairo/spyglass/internal/domain-adapters/gateways"
	"github.com/ochairo/spyglass/internal/domain/entities"
	"github.com/ochairo/spyglass/internal/domain/interfaces"
	"github.com/ochairo/spyglass/internal/domain/interfaces/gateways"
)

// SignatureVerifier checks a detached signature next to a downloaded file.
type SignatureVerifier interface {
	VerifyDetached(filePath, sigPath string) error
}

// Locator implements interfaces.FileLocator over a list of local search
// directories, a download cache, and zero or more symbol servers. Servers
// are addressed with SSQP keys: two-part "{fileName}/{key}/{fileName}"
// paths where the key encodes the binary identity.
type Locator struct {
	cfg        entities.StoreConfig
	log        interfaces.Logger
	verifier   SignatureVerifier
	prober     gateways.ImageProber
	httpClient *http.Client
}

// NewLocator creates a locator for the given store configuration
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewLocator(cfg entities.StoreConfig, log interfaces.Logger) *Locator {
	if log == nil {
		log = &interfaces.NoOpLogger{}
	}
	return &Locator{
		cfg:    cfg,
		log:    log,
		prober: adapters.NewFileProber(),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// SetVerifier installs the detached-signature verifier used when
// VerifyGPG is enabled in the store configuration.
func (l *Locator) SetVerifier(v SignatureVerifier) {
	l.verifier = v
}

// FindByIdentity locates a file by the Windows timestamp+size convention.
// Every hit is re-parsed and must carry the requested identity itself.
func (l *Locator) FindByIdentity(fileName string, timeStamp, fileSize uint32) (string, bool) {
	key := fmt.Sprintf("%08X%x", timeStamp, fileSize)
	return l.find(fileName, key, func(path string) bool {
		img, err := l.prober.OpenImage(path)
		if err != nil {
			return false
		}
		ts, size, ok := img.PEIdentity()
		return ok && ts == timeStamp && size == fileSize
	})
}

// FindByBuildID locates a file by ELF or Mach-O build-id. Data-access
// libraries are indexed under the runtime's build-id with a "coreclr"
// qualifier, matching how .NET symbol servers publish them.
func (l *Locator) FindByBuildID(fileName string, kind entities.ArtifactKind, buildID []byte, platform entities.Platform) (string, bool) {
	if len(buildID) == 0 {
		return "", false
	}
	hexID := strings.ToLower(hex.EncodeToString(buildID))

	var prefix string
	switch platform {
	case entities.PlatformLinux:
		prefix = "elf-buildid"
	case entities.PlatformMacOS:
		prefix = "mach-uuid"
	default:
		return "", false
	}

	// Data-access lookups are keyed by the runtime's build-id, so the hit
	// cannot be checked against its own note; checksum and signature
	// verification still apply. Other kinds must match the id themselves.
	key := prefix + "-" + hexID
	check := func(path string) bool {
		img, err := l.prober.OpenImage(path)
		return err == nil && bytes.Equal(img.BuildID(), buildID)
	}
	if kind == entities.KindDataAccess {
		key = prefix + "-coreclr-" + hexID
		check = func(string) bool { return true }
	}
	return l.find(fileName, key, check)
}

// find probes search directories, then the cache, then each server. check
// validates a hit by re-parsing it; failing candidates are skipped, not fatal.
func (l *Locator) find(fileName, key string, check func(path string) bool) (string, bool) {
	for _, dir := range l.cfg.SearchDirs {
		for _, candidate := range []string{
			filepath.Join(dir, fileName),
			filepath.Join(dir, fileName, key, fileName),
		} {
			if isRegularFile(candidate) && check(candidate) {
				l.log.Debug("found in search directory", interfaces.F("path", candidate))
				return candidate, true
			}
		}
	}

	if l.cfg.CacheDir == "" {
		return "", false
	}

	cached := filepath.Join(l.cfg.CacheDir, fileName, key, fileName)
	if isRegularFile(cached) && check(cached) {
		l.log.Debug("found in cache", interfaces.F("path", cached))
		return cached, true
	}

	for _, server := range l.cfg.Servers {
		url := strings.TrimSuffix(server, "/") + "/" + fileName + "/" + key + "/" + fileName
		if err := l.download(url, cached); err != nil {
			l.log.Debug("server lookup failed",
				interfaces.F("url", url),
				interfaces.F("error", err.Error()))
			continue
		}
		if err := l.verify(url, cached); err != nil {
			l.log.Warn("discarding unverified download",
				interfaces.F("path", cached),
				interfaces.F("error", err.Error()))
			_ = os.Remove(cached)
			continue
		}
		if !check(cached) {
			l.log.Warn("discarding download with wrong identity",
				interfaces.F("path", cached))
			_ = os.Remove(cached)
			continue
		}
		l.log.Info("downloaded support library",
			interfaces.F("file", fileName),
			interfaces.F("key", key))
		return cached, true
	}

	return "", false
}

// download fetches url into dest, creating parent directories as needed.
func (l *Locator) download(url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "spyglass/1.0")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	//nolint:gosec // G304: dest lives under the configured cache directory
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	//nolint:errcheck // Defer close on file being written
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// verify applies the configured checksum and signature checks to a download.
// Sibling ".sha256" and ".asc" files are fetched from the same server path.
func (l *Locator) verify(url, dest string) error {
	if l.cfg.VerifyChecksums {
		sumPath := dest + ".sha256"
		if err := l.download(url+".sha256", sumPath); err != nil {
			return fmt.Errorf("checksum file unavailable: %w", err)
		}
		if err := verifySHA256(dest, sumPath); err != nil {
			return err
		}
	}
	if l.cfg.VerifyGPG {
		if l.verifier == nil {
			return fmt.Errorf("signature verification enabled but no verifier configured")
		}
		sigPath := dest + ".asc"
		if err := l.download(url+".asc", sigPath); err != nil {
			return fmt.Errorf("signature file unavailable: %w", err)
		}
		if err := l.verifier.VerifyDetached(dest, sigPath); err != nil {
			return fmt.Errorf("signature verification failed: %w", err)
		}
	}
	return nil
}

// verifySHA256 compares a file's digest against the first hex token in
// the sibling checksum file.
func verifySHA256(filePath, sumPath string) error {
	//nolint:gosec // G304: checksum file sits next to the download
	raw, err := os.ReadFile(sumPath)
	if err != nil {
		return fmt.Errorf("failed to read checksum file: %w", err)
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return fmt.Errorf("empty checksum file")
	}
	expected := strings.ToLower(fields[0])

	//nolint:gosec // G304: hashing the file we just downloaded
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("failed to hash file: %w", err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
