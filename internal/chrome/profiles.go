package chrome

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	localStateFile     = "Local State"
	defaultProfileDir  = "Default"
	defaultProfileName = "Default"
)

type localState struct {
	Profile struct {
		InfoCache map[string]struct {
			Name string `json:"name"`
		} `json:"info_cache"`
	} `json:"profile"`
}

// Profiles enumerates the profiles listed in Local State. It falls back to a
// bare Default profile when Local State is missing, unparsable or empty. The
// result is recomputed on every call.
func (s *Service) Profiles() ([]Profile, error) {
	profiles, err := s.profilesFromLocalState()
	if err != nil {
		s.log.WithError(err).Debug("Local State unusable, falling back to Default profile")
	}
	if len(profiles) > 0 {
		return profiles, nil
	}

	defaultPath := filepath.Join(s.userDataDir, defaultProfileDir)
	if info, statErr := os.Stat(defaultPath); statErr != nil || !info.IsDir() {
		return nil, fmt.Errorf("no Chrome profiles found in %s", s.userDataDir)
	}
	return []Profile{{Path: defaultPath, Name: defaultProfileName, IsDefault: true}}, nil
}

func (s *Service) profilesFromLocalState() ([]Profile, error) {
	data, err := os.ReadFile(filepath.Join(s.userDataDir, localStateFile))
	if err != nil {
		return nil, err
	}

	var state localState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse Local State: %w", err)
	}

	profiles := make([]Profile, 0, len(state.Profile.InfoCache))
	for dir, info := range state.Profile.InfoCache {
		name := info.Name
		if name == "" {
			name = dir
		}
		profiles = append(profiles, Profile{
			Path:      filepath.Join(s.userDataDir, dir),
			Name:      name,
			IsDefault: dir == defaultProfileDir,
		})
	}

	// Default first, the rest by directory name.
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].IsDefault != profiles[j].IsDefault {
			return profiles[i].IsDefault
		}
		return profiles[i].Dir() < profiles[j].Dir()
	})

	return profiles, nil
}

// ResolveProfile finds a profile by directory name ("Profile 1") or display
// name. An empty name selects the default profile, or the first one listed.
func (s *Service) ResolveProfile(name string) (Profile, error) {
	profiles, err := s.Profiles()
	if err != nil {
		return Profile{}, err
	}

	if name == "" {
		for _, p := range profiles {
			if p.IsDefault {
				return p, nil
			}
		}
		return profiles[0], nil
	}

	for _, p := range profiles {
		if p.Dir() == name || p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("chrome profile %q not found", name)
}
