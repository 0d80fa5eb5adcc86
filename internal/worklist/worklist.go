// Package worklist builds the ordered list of (narrative, image) pairs a run
// processes. Items come from a YAML/JSON manifest or from the embedded default
// list.
package worklist

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed data/default.yaml
var defaultManifest []byte

// WorkItem is one narrative paired with the filename of its source image.
// A spoken narrative may be given instead as Audio, a file in the assets
// directory that is transcribed into Narrative before the item runs.
type WorkItem struct {
	Narrative string `yaml:"narrative" json:"narrative"`
	Image     string `yaml:"image" json:"image"`
	Audio     string `yaml:"audio,omitempty" json:"audio,omitempty"`
}

// NeedsTranscription reports whether any item carries a spoken narrative.
func NeedsTranscription(items []WorkItem) bool {
	for _, item := range items {
		if item.Audio != "" {
			return true
		}
	}
	return false
}

// Manifest is the on-disk shape of a work list. Either the two parallel lists
// or the explicit Items list may be used; Items wins when both are present.
type Manifest struct {
	Narratives []string   `yaml:"narratives"`
	Images     []string   `yaml:"images"`
	Items      []WorkItem `yaml:"items"`
}

// Zip pairs narratives[i] with images[i]. The result is truncated to the
// shorter list; a warning is logged when the lengths differ.
func Zip(narratives, images []string) []WorkItem {
	count := min(len(narratives), len(images))
	if len(narratives) != len(images) {
		log.Warn().
			Int("narratives", len(narratives)).
			Int("images", len(images)).
			Int("dropped", max(len(narratives), len(images))-count).
			Msg("Narrative and image counts differ, extra entries are ignored")
	}

	items := make([]WorkItem, count)
	for i := 0; i < count; i++ {
		items[i] = WorkItem{Narrative: narratives[i], Image: images[i]}
	}
	return items
}

// Parse decodes a manifest document. JSON input is accepted since it is valid YAML.
func Parse(data []byte) ([]WorkItem, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return m.WorkItems()
}

// WorkItems flattens the manifest into its ordered work list.
func (m *Manifest) WorkItems() ([]WorkItem, error) {
	if len(m.Items) > 0 {
		for i, item := range m.Items {
			if item.Image == "" {
				return nil, fmt.Errorf("manifest item %d has no image", i+1)
			}
			if item.Audio != "" && item.Narrative != "" {
				return nil, fmt.Errorf("manifest item %d has both narrative and audio", i+1)
			}
		}
		return m.Items, nil
	}
	return Zip(m.Narratives, m.Images), nil
}

// Load reads and parses the manifest at path.
func Load(path string) ([]WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	items, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Debug().Str("path", path).Int("items", len(items)).Msg("Manifest loaded")
	return items, nil
}

// Default returns the embedded work list.
func Default() []WorkItem {
	items, err := Parse(defaultManifest)
	if err != nil {
		log.Fatal().Err(err).Msg("embedded manifest is malformed")
	}
	return items
}
