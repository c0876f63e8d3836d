package main

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"hash"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

//go:embed runtime
var runtimeFS embed.FS

const RUNTIME_DIR = "runtime"

// runtimeCompileFlags returns the C compiler flags for runtime objects.
// Shared with metadataHash so cached objects invalidate when flags change.
func runtimeCompileFlags() []string {
	flags := []string{"-O2", "-std=c11"}
	if runtime.GOOS != "windows" {
		flags = append(flags, "-fPIC")
	}
	return flags
}

// metadataHash mixes in everything besides source bytes that affects the
// compiled runtime.
func metadataHash(h hash.Hash, cc string) {
	h.Write([]byte(cc))
	for _, flag := range runtimeCompileFlags() {
		h.Write([]byte(flag))
	}
	h.Write([]byte(runtime.GOOS))
	h.Write([]byte(runtime.GOARCH))
}

// runtimeInfo hashes the embedded runtime plus compile metadata and counts
// the .c files that will be compiled. The short hash names the cache
// directory; the full hash guards against collisions.
func runtimeInfo(cc string) (shortHash, fullHash string, srcCount int, err error) {
	h := sha256.New()
	metadataHash(h, cc)
	err = fs.WalkDir(runtimeFS, RUNTIME_DIR, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			data, readErr := runtimeFS.ReadFile(path)
			if readErr != nil {
				return readErr
			}
			h.Write(data)
			if strings.HasSuffix(path, ".c") {
				srcCount++
			}
		}
		return nil
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("walk embedded runtime: %w", err)
	}
	fullHash = hex.EncodeToString(h.Sum(nil))
	return fullHash[:8], fullHash, srcCount, nil
}

func extractRuntime(rtDir string) error {
	if err := os.MkdirAll(rtDir, 0755); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	return fs.WalkDir(runtimeFS, RUNTIME_DIR, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
		relPath, _ := filepath.Rel(RUNTIME_DIR, path)
		destPath := filepath.Join(rtDir, relPath)
		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}
		data, err := runtimeFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read embedded %s: %w", path, err)
		}
		return os.WriteFile(destPath, data, 0644)
	})
}

func compileRuntime(cc, rtDir string) ([]string, error) {
	rtSrcs, err := filepath.Glob(filepath.Join(rtDir, "*.c"))
	if err != nil {
		return nil, fmt.Errorf("glob runtime sources: %w", err)
	}
	if len(rtSrcs) == 0 {
		return nil, fmt.Errorf("no runtime .c files under %s", rtDir)
	}

	var rtObjs []string
	for _, src := range rtSrcs {
		outObj := filepath.Join(rtDir, filepath.Base(src)+".o")
		args := append(runtimeCompileFlags(), "-c", src, "-o", outObj)
		if out, err := exec.Command(cc, args...).CombinedOutput(); err != nil {
			return nil, fmt.Errorf("compile %s: %v\n%s", src, err, out)
		}
		rtObjs = append(rtObjs, outObj)
	}
	return rtObjs, nil
}

func isHashDir(name string) bool {
	if len(name) != 8 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}

// cleanupOldRuntimes removes stale cache directories, keeping the most
// recent few and anything younger than minAge so concurrent builds are
// never pulled out from under.
func cleanupOldRuntimes(runtimeDir string, keep int, minAge int64) {
	entries, err := os.ReadDir(runtimeDir)
	if err != nil || len(entries) <= keep {
		return
	}

	type dirInfo struct {
		name  string
		mtime int64
	}
	var dirs []dirInfo
	for _, e := range entries {
		if e.IsDir() && isHashDir(e.Name()) {
			if info, err := e.Info(); err == nil {
				dirs = append(dirs, dirInfo{e.Name(), info.ModTime().Unix()})
			}
		}
	}
	if len(dirs) <= keep {
		return
	}

	cutoff := time.Now().Unix() - minAge
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mtime < dirs[j].mtime })
	for i := 0; i < len(dirs)-keep; i++ {
		if dirs[i].mtime < cutoff {
			os.RemoveAll(filepath.Join(runtimeDir, dirs[i].name))
		}
	}
}

// prepareRuntime returns object files for the embedded C runtime,
// compiling into a hash-named cache directory on first use. A file lock
// serializes concurrent builds against the same cache.
func prepareRuntime(cacheDir, cc string) ([]string, error) {
	runtimeDir := filepath.Join(cacheDir, RUNTIME_DIR)
	if err := os.MkdirAll(runtimeDir, 0755); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}

	lock := flock.New(filepath.Join(runtimeDir, ".lock"))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire runtime lock: %w", err)
	}
	defer lock.Unlock()

	shortHash, fullHash, srcCount, err := runtimeInfo(cc)
	if err != nil {
		return nil, err
	}
	rtDir := filepath.Join(runtimeDir, shortHash)
	hashFile := filepath.Join(rtDir, ".hash")

	if rtObjs, err := filepath.Glob(filepath.Join(rtDir, "*.o")); err == nil && len(rtObjs) == srcCount {
		if storedHash, err := os.ReadFile(hashFile); err == nil && string(storedHash) == fullHash {
			return rtObjs, nil
		}
		os.RemoveAll(rtDir)
	}

	cleanupOldRuntimes(runtimeDir, 5, 7*24*60*60)

	if err := extractRuntime(rtDir); err != nil {
		return nil, err
	}
	rtObjs, err := compileRuntime(cc, rtDir)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(hashFile, []byte(fullHash), 0644); err != nil {
		return nil, fmt.Errorf("write hash file: %w", err)
	}
	return rtObjs, nil
}

// defaultCache resolves the cache root: VELACACHE when set, otherwise the
// platform cache directory.
func defaultCache() string {
	if env := os.Getenv("VELACACHE"); env != "" {
		return env
	}

	homeDir, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LocalAppData"); localAppData != "" {
			return filepath.Join(localAppData, "vela")
		}
		return filepath.Join(homeDir, "AppData", "Local", "vela")
	case "darwin":
		return filepath.Join(homeDir, "Library", "Caches", "vela")
	default:
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "vela")
		}
		return filepath.Join(homeDir, ".cache", "vela")
	}
}
