package util

import (
	"log"
	"os"
	"path/filepath"
)

// GetConfigDir returns (creating if necessary) the per-user config
// directory for this application, e.g. ~/.config/federatoad.
func GetConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// ResolveFilePath finds name in the current working directory first, then
// falls back to the user config directory (creating it if needed). Callers
// that need to write the file use the returned path regardless of whether
// it currently exists.
func ResolveFilePath(name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}
	dir, err := GetConfigDir()
	if err != nil {
		log.Printf("could not resolve config dir, falling back to working directory: %v", err)
		return name
	}
	return filepath.Join(dir, name)
}

// ResolveFilePathWithSubdir is ResolveFilePath scoped under a subdirectory
// of the user config directory, e.g. ResolveFilePathWithSubdir(".ssh", "hostkey").
func ResolveFilePathWithSubdir(subdir, name string) string {
	if _, err := os.Stat(filepath.Join(subdir, name)); err == nil {
		return filepath.Join(subdir, name)
	}
	dir, err := GetConfigDir()
	if err != nil {
		log.Printf("could not resolve config dir, falling back to working directory: %v", err)
		return filepath.Join(subdir, name)
	}
	full := filepath.Join(dir, subdir)
	if err := os.MkdirAll(full, 0755); err != nil {
		log.Printf("could not create %s: %v", full, err)
	}
	return filepath.Join(full, name)
}
