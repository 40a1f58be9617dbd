package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/IshaanNene/ReviewGoat/internal/extract"
)

// Preset is a known review site layout.
type Preset struct {
	Name string
	// Hosts are matched as substrings of the page hostname.
	Hosts []string
	// ContainerSelector finds the item container enclosing a picked node.
	ContainerSelector string
	ItemSelector      string
	Fields            extract.FieldSelectors
	NextSelector      string
}

// Presets holds the built-in site layouts keyed by name.
var Presets = map[string]Preset{
	"trustpilot": {
		Name:              "trustpilot",
		Hosts:             []string{"trustpilot.com"},
		ContainerSelector: `article[data-service-review-card-paper="true"]`,
		ItemSelector:      `section[data-nosnippet="false"] article[data-service-review-card-paper="true"]`,
		Fields: extract.FieldSelectors{
			User:    `span[data-consumer-name-typography]`,
			Date:    `[data-testid="review-badge-date"] span`,
			Rating:  `div[data-service-review-rating] img`,
			Title:   `h2[data-service-review-title-typography]`,
			Content: `p[data-service-review-text-typography]`,
		},
		NextSelector: `a[data-pagination-button-next-link="true"], a[data-pagination-button-next]`,
	},
	"amazon": {
		Name:              "amazon",
		Hosts:             []string{"amazon.com"},
		ContainerSelector: `li[data-hook="review"]`,
		ItemSelector:      `li[data-hook="review"]`,
		Fields: extract.FieldSelectors{
			User:    `.a-profile-name`,
			Date:    `[data-hook="review-date"]`,
			Rating:  `[data-hook="review-star-rating"]`,
			Title:   `[data-hook="review-title"] > span:last-of-type`,
			Content: `[data-hook="review-body"] > span`,
		},
		NextSelector: `.a-last a`,
	},
}

// PresetNames returns the built-in preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DetectPreset returns the preset whose host matches rawURL.
func DetectPreset(rawURL string) (Preset, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return Preset{}, false
	}
	host := strings.ToLower(u.Hostname())
	for _, name := range PresetNames() {
		p := Presets[name]
		for _, h := range p.Hosts {
			if strings.Contains(host, h) {
				return p, true
			}
		}
	}
	return Preset{}, false
}

// ResolvePreset picks the preset named by s.Preset, or detects one from
// s.URL when no name is set. "none" disables detection.
func (s *ScrapeConfig) ResolvePreset() (Preset, bool, error) {
	switch s.Preset {
	case "none":
		return Preset{}, false, nil
	case "":
		p, ok := DetectPreset(s.URL)
		return p, ok, nil
	}
	p, ok := Presets[s.Preset]
	if !ok {
		return Preset{}, false, fmt.Errorf("unknown preset %q (valid: %s)", s.Preset, strings.Join(PresetNames(), ", "))
	}
	return p, true, nil
}

// ApplyPreset fills every empty selector from p. Explicit values win.
func (s *ScrapeConfig) ApplyPreset(p Preset) {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&s.ItemSelector, p.ItemSelector)
	fill(&s.NextSelector, p.NextSelector)
	fill(&s.Fields.User, p.Fields.User)
	fill(&s.Fields.Date, p.Fields.Date)
	fill(&s.Fields.Rating, p.Fields.Rating)
	fill(&s.Fields.Title, p.Fields.Title)
	fill(&s.Fields.Content, p.Fields.Content)
}

// Prepare normalizes s and applies its preset, if any.
func (s *ScrapeConfig) Prepare() error {
	s.Normalize()
	p, ok, err := s.ResolvePreset()
	if err != nil {
		return err
	}
	if ok {
		s.ApplyPreset(p)
	}
	return nil
}
