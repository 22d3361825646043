package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrNoProfile = errors.New("no candidate profile configured")

// LoadProfile reads the JSON profile written by the profile parser CLI.
func LoadProfile(path string) (Profile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Profile{}, ErrNoProfile
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Profile{}, ErrNoProfile
		}
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.Empty() {
		return Profile{}, ErrNoProfile
	}
	return p, nil
}
