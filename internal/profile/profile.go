// ABOUTME: Named identity profiles for the keep CLI, stored as TOML.
// ABOUTME: A profile binds an identity string to a signing key file.

package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// File is the profiles file name inside the keep home directory
// ($KEEP_HOME, default ~/.keep).
const File = "profiles.toml"

// Profile binds a wire identity string to a signing key.
//
//	[profiles.alice]
//	src = "bot:alice"
//	key_file = "/home/alice/.keep/alice_ed25519"
type Profile struct {
	Src     string `toml:"src"`
	KeyFile string `toml:"key_file"`
}

type profilesFile struct {
	Profiles map[string]Profile `toml:"profiles"`
}

// Path returns the profiles file location.
func Path() (string, error) {
	if dir := os.Getenv("KEEP_HOME"); dir != "" {
		return filepath.Join(dir, File), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".keep", File), nil
}

// Load reads all profiles. A missing file yields an empty map.
func Load() (map[string]Profile, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profiles file: %w", err)
	}

	var pf profilesFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if pf.Profiles == nil {
		pf.Profiles = map[string]Profile{}
	}
	return pf.Profiles, nil
}

// Lookup returns the named profile.
func Lookup(name string) (Profile, error) {
	profiles, err := Load()
	if err != nil {
		return Profile{}, err
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile %q not found", name)
	}
	if p.Src == "" {
		return Profile{}, fmt.Errorf("profile %q has no src", name)
	}
	return p, nil
}

// Save writes the named profile, creating the file and keep home directory
// as needed.
func Save(name string, p Profile) error {
	profiles, err := Load()
	if err != nil {
		return err
	}
	profiles[name] = p

	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating keep home: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("writing profiles file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(profilesFile{Profiles: profiles}); err != nil {
		return fmt.Errorf("encoding profiles: %w", err)
	}
	return nil
}
