// Package settings loads the site-wide SEO settings consumed by the analyzers and the meta resolver.
package settings

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/surerank/seo-analyzer/checks"
)

// Templates are the global title/description defaults for one entity kind.
type Templates struct {
	PageTitle       string `yaml:"page_title"`
	PageDescription string `yaml:"page_description"`
}

// Settings is the site configuration.
type Settings struct {
	Site struct {
		Name       string `yaml:"name"`
		Tagline    string `yaml:"tagline"`
		HomeURL    string `yaml:"home_url"`
		Separator  string `yaml:"separator"`
		Permalinks string `yaml:"permalink_structure"`
		// HomepagePostID is the post shown as the front page, 0 when the front page lists posts.
		HomepagePostID int64 `yaml:"homepage_post_id"`
	} `yaml:"site"`

	EnablePageLevelSEO   bool `yaml:"enable_page_level_seo"`
	DisableOpenGraphTags bool `yaml:"disable_open_graph_tags"`
	AutoImageAlt         bool `yaml:"auto_image_alt"`

	Thresholds checks.Thresholds `yaml:"thresholds"`

	PostDefaults Templates `yaml:"post_defaults"`
	TermDefaults Templates `yaml:"term_defaults"`
	HomeDefaults Templates `yaml:"home_defaults"`
}

// Default returns the settings used when no file is configured.
func Default() *Settings {
	s := &Settings{EnablePageLevelSEO: true}
	setDefaults(s)
	return s
}

// Load reads and validates a YAML settings file.
// Keys missing from the file fall back to their defaults, page-level SEO included.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
	}
	setDefaults(s)

	if err := validate(s); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}

	slog.Debug("Loaded settings", "path", path, "home_url", s.Site.HomeURL)
	return s, nil
}

func setDefaults(s *Settings) {
	if s.Site.Separator == "" {
		s.Site.Separator = "-"
	}
	if s.Site.Permalinks == "" {
		s.Site.Permalinks = "/%postname%/"
	}
	s.Site.HomeURL = strings.TrimRight(strings.TrimSpace(s.Site.HomeURL), "/")
	s.Thresholds = checks.NewLibrary(s.Thresholds).Thresholds

	if s.PostDefaults.PageTitle == "" {
		s.PostDefaults.PageTitle = "%title% %sep% %site_name%"
	}
	if s.PostDefaults.PageDescription == "" {
		s.PostDefaults.PageDescription = "%excerpt%"
	}
	if s.TermDefaults.PageTitle == "" {
		s.TermDefaults.PageTitle = "%term_title% %sep% %site_name%"
	}
	if s.TermDefaults.PageDescription == "" {
		s.TermDefaults.PageDescription = "%term_description%"
	}
	if s.HomeDefaults.PageTitle == "" {
		s.HomeDefaults.PageTitle = "%site_name% %sep% %tagline%"
	}
	if s.HomeDefaults.PageDescription == "" {
		s.HomeDefaults.PageDescription = "%tagline%"
	}
}

func validate(s *Settings) error {
	if s.Site.HomeURL != "" {
		u, err := url.Parse(s.Site.HomeURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("site home_url must be an absolute http(s) URL, got %q", s.Site.HomeURL)
		}
	}
	if !strings.HasPrefix(s.Site.Permalinks, "/") {
		return fmt.Errorf("permalink_structure must start with /")
	}
	if s.Site.HomepagePostID < 0 {
		return fmt.Errorf("homepage_post_id must be non-negative")
	}
	return nil
}

// Library returns the check library configured with the settings' thresholds.
func (s *Settings) Library() checks.Library {
	return checks.NewLibrary(s.Thresholds)
}

// HomeHost is the host of the configured home URL, or "".
func (s *Settings) HomeHost() string {
	u, err := url.Parse(s.Site.HomeURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
