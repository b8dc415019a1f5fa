// Package markers reads marker bundle manifests. A bundle is a TOML file listing one
// image per marker:
//
//	[[markers]]
//	name = "poster"
//	image = "poster.png"
//
// Relative image paths resolve against the manifest's directory. A locator that points
// straight at a PNG or JPEG is treated as a bundle of one.
package markers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
)

var ErrEmptyBundle = errors.New("marker bundle lists no markers")

// Entry is one marker in a bundle.
type Entry struct {
	Name  string `toml:"name"`
	Image string `toml:"image"`
}

// Bundle is a parsed manifest. Image paths are absolute or relative to the working
// directory once loaded.
type Bundle struct {
	Markers []Entry `toml:"markers"`
}

// Load reads the bundle at locator.
//
// Parameters:
//   - locator: path to a TOML manifest, or to a single marker image
//
// Returns:
//   - Bundle: the markers in manifest order
//   - error: if the manifest is missing, malformed or lists an unusable marker
func Load(locator string) (Bundle, error) {
	if locator == "" {
		return Bundle{}, errors.New("empty marker locator")
	}
	if isImage(locator) {
		if _, err := os.Stat(locator); err != nil {
			return Bundle{}, err
		}
		name := strings.TrimSuffix(filepath.Base(locator), filepath.Ext(locator))
		return Bundle{Markers: []Entry{{Name: name, Image: locator}}}, nil
	}

	var b Bundle
	meta, err := toml.DecodeFile(locator, &b)
	if err != nil {
		return Bundle{}, fmt.Errorf("decode %s: %w", locator, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logging.For("markers").Warn().Str("path", locator).Strs("keys", keys).Msg("unknown manifest keys")
	}
	return b.resolve(filepath.Dir(locator))
}

// Parse decodes manifest text; relative images resolve against dir.
func Parse(data, dir string) (Bundle, error) {
	var b Bundle
	if _, err := toml.Decode(data, &b); err != nil {
		return Bundle{}, err
	}
	return b.resolve(dir)
}

func (b Bundle) resolve(dir string) (Bundle, error) {
	if len(b.Markers) == 0 {
		return Bundle{}, ErrEmptyBundle
	}
	var errs []error
	out := Bundle{Markers: make([]Entry, len(b.Markers))}
	for i, m := range b.Markers {
		if m.Image == "" {
			errs = append(errs, fmt.Errorf("marker %d: image is required", i))
			continue
		}
		if !filepath.IsAbs(m.Image) {
			m.Image = filepath.Join(dir, m.Image)
		}
		if m.Name == "" {
			m.Name = fmt.Sprintf("marker-%d", i)
		}
		out.Markers[i] = m
	}
	if err := errors.Join(errs...); err != nil {
		return Bundle{}, err
	}
	return out, nil
}

func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
