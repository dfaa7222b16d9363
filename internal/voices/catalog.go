// Package voices loads named voice profiles from a YAML catalog.
package voices

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/loqalabs/loqa-studio/internal/studio"
	"github.com/loqalabs/loqa-studio/internal/tts"
	"gopkg.in/yaml.v3"
)

// Catalog is a set of profiles plus the directory reference paths resolve against.
type Catalog struct {
	Profiles []Profile `yaml:"profiles"`

	dir string
}

type Profile struct {
	Name        string         `yaml:"name"`
	Voice       string         `yaml:"voice"`
	Description string         `yaml:"description,omitempty"`
	Reference   *ReferenceSpec `yaml:"reference,omitempty"`
}

type ReferenceSpec struct {
	Path string `yaml:"path"`
	MIME string `yaml:"mime,omitempty"`
}

// Load reads a catalog from disk.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse voice catalog: %w", err)
	}
	c.dir = filepath.Dir(path)
	return c, nil
}

// Validate ensures every profile is usable.
func Validate(c Catalog) error {
	if len(c.Profiles) == 0 {
		return fmt.Errorf("profiles must include at least one entry")
	}
	seen := make(map[string]struct{}, len(c.Profiles))
	for i, p := range c.Profiles {
		if p.Name == "" {
			return fmt.Errorf("profiles[%d].name is required", i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate profile name %s", p.Name)
		}
		seen[p.Name] = struct{}{}
		if !tts.ValidVoice(p.Voice) {
			return fmt.Errorf("profile %s: voice %q must be one of %s", p.Name, p.Voice, strings.Join(tts.Voices, "|"))
		}
		if p.Reference != nil {
			if p.Reference.Path == "" {
				return fmt.Errorf("profile %s: reference.path is required", p.Name)
			}
			if referenceMIME(*p.Reference) == "" {
				return fmt.Errorf("profile %s: reference.mime is required for %s", p.Name, p.Reference.Path)
			}
		}
	}
	return nil
}

// Lookup returns the profile called name.
func (c Catalog) Lookup(name string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Resolve loads the named profile's reference sample, if any, and returns it as
// a synthesis profile.
func (c Catalog) Resolve(name string) (studio.VoiceProfile, error) {
	p, ok := c.Lookup(name)
	if !ok {
		return studio.VoiceProfile{}, fmt.Errorf("unknown voice profile %q", name)
	}
	profile := studio.VoiceProfile{Voice: p.Voice}
	if p.Reference == nil {
		return profile, nil
	}
	path := p.Reference.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return studio.VoiceProfile{}, fmt.Errorf("read reference sample: %w", err)
	}
	profile.Reference = &tts.ReferenceAudio{Data: data, MIMEType: referenceMIME(*p.Reference)}
	return profile, nil
}

// Names lists profile names in catalog order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		names = append(names, p.Name)
	}
	return names
}

func referenceMIME(r ReferenceSpec) string {
	if r.MIME != "" {
		return r.MIME
	}
	return MIMEForPath(r.Path)
}

// MIMEForPath guesses an audio mime type from a file extension.
func MIMEForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "audio/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case "":
		return ""
	}
	return mime.TypeByExtension(filepath.Ext(path))
}
