// Package htmlsite implements YAML-driven definitions for trackers that
// only expose an HTML search page. One YAML file describes the login
// handshake, the search form, and the CSS selectors that carve releases
// out of the result table.
package htmlsite

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/trawler/trawler/internal/indexer"
	"github.com/trawler/trawler/internal/indexer/categories"
	"github.com/trawler/trawler/internal/indexer/parseutil"
	"github.com/trawler/trawler/internal/indexer/session"
	"github.com/trawler/trawler/internal/indexer/types"
)

// Spec is the parsed YAML definition file.
type Spec struct {
	Name         string  `yaml:"name"`
	BaseURL      string  `yaml:"baseUrl"`
	Protocol     string  `yaml:"protocol"` // torrent (default) or usenet
	Privacy      string  `yaml:"privacy"`  // public, semi-private, private
	RequestDelay float64 `yaml:"requestDelay"` // seconds between requests

	Login  *LoginBlock `yaml:"login"`
	Caps   CapsBlock   `yaml:"caps"`
	Search SearchBlock `yaml:"search"`

	Download *DownloadBlock `yaml:"download"`
}

// LoginBlock defines how to authenticate with the site.
type LoginBlock struct {
	Method        string            `yaml:"method"` // form, post, cookie
	Path          string            `yaml:"path"`
	FormSelector  string            `yaml:"formSelector"`
	Inputs        map[string]string `yaml:"inputs"`
	ErrorSelector string            `yaml:"errorSelector"`
	// CheckSelector detects a login page masquerading as search results.
	CheckSelector string        `yaml:"checkSelector"`
	Captcha       *CaptchaBlock `yaml:"captcha"`
}

// CaptchaBlock describes an image captcha on the login form.
type CaptchaBlock struct {
	Selector string `yaml:"selector"`
	Input    string `yaml:"input"`
}

// CapsBlock declares supported search modes and category mappings.
type CapsBlock struct {
	Modes            map[string][]string `yaml:"modes"` // search, tv-search, ... -> params
	PageSize         int                 `yaml:"pageSize"`
	CategoryMappings []CategoryMapping   `yaml:"categoryMappings"`
	// AllCategories makes an unfiltered query span every mapped site
	// category instead of none.
	AllCategories bool     `yaml:"allCategories"`
	Flags         []string `yaml:"flags"`
}

// CategoryMapping maps one site category key to a standard category ID.
type CategoryMapping struct {
	Key  string `yaml:"key"`
	Cat  int    `yaml:"cat"`
	Desc string `yaml:"desc"`
}

// SearchBlock defines the search request shape and the result selectors.
type SearchBlock struct {
	Path          string            `yaml:"path"`
	Method        string            `yaml:"method"` // get (default) or post
	Inputs        map[string]string `yaml:"inputs"` // values may use {{query}} and {{page}}
	CategoryParam string            `yaml:"categoryParam"`
	PageParam     string            `yaml:"pageParam"`
	PageStart     int               `yaml:"pageStart"`
	MaxPages      int               `yaml:"maxPages"`
	// OneCategoryPerRequest splits a multi-category query into one
	// sub-search per site category, for search forms that accept a
	// single category value.
	OneCategoryPerRequest bool `yaml:"oneCategoryPerRequest"`
	// KeywordStrip removes characters the site's search chokes on.
	KeywordStrip string `yaml:"keywordStrip"`

	Rows   RowsBlock        `yaml:"rows"`
	Fields map[string]Field `yaml:"fields"`

	// VolumeSignals list per-row freeleech markers in precedence order;
	// the first matching marker decides the download volume factor.
	VolumeSignals []VolumeSignal `yaml:"volumeSignals"`
}

// RowsBlock selects the result rows.
type RowsBlock struct {
	Selector string `yaml:"selector"`
	After    int    `yaml:"after"` // skip N leading rows (header rows)
}

// Field extracts one release attribute from a row.
type Field struct {
	Selector  string `yaml:"selector"`
	Attribute string `yaml:"attribute"`
	Pattern   string `yaml:"pattern"` // regexp; capture group 1 is the value
	Optional  bool   `yaml:"optional"`
	Default   string `yaml:"default"`
}

// VolumeSignal marks rows carrying a ratio modifier.
type VolumeSignal struct {
	Selector string  `yaml:"selector"`
	Marker   string  `yaml:"marker"`
	Factor   float64 `yaml:"factor"`
}

// DownloadBlock describes the extra hop from a detail page to the real
// payload link.
type DownloadBlock struct {
	Selector  string `yaml:"selector"`
	Attribute string `yaml:"attribute"` // defaults to href
}

// Parse reads a definition from YAML bytes and validates it.
func Parse(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse definition YAML: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// ParseFile reads a definition from a YAML file.
func ParseFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	return Parse(data)
}

func (s *Spec) validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("definition needs a name")
	case s.BaseURL == "":
		return fmt.Errorf("definition %q needs a baseUrl", s.Name)
	case s.Search.Path == "":
		return fmt.Errorf("definition %q needs a search path", s.Name)
	case s.Search.Rows.Selector == "":
		return fmt.Errorf("definition %q needs a rows selector", s.Name)
	case s.Search.Fields["title"].Selector == "":
		return fmt.Errorf("definition %q needs a title field", s.Name)
	}
	if s.Search.KeywordStrip != "" {
		if _, err := regexp.Compile(s.Search.KeywordStrip); err != nil {
			return fmt.Errorf("definition %q has an invalid keywordStrip pattern: %w", s.Name, err)
		}
	}
	for name, field := range s.Search.Fields {
		if field.Pattern == "" {
			continue
		}
		if _, err := regexp.Compile(field.Pattern); err != nil {
			return fmt.Errorf("definition %q field %q has an invalid pattern: %w", s.Name, name, err)
		}
	}
	return nil
}

// Fetch performs one HTTP request on behalf of a definition. Wired to
// the executor so definition traffic shares the indexer's rate budget.
type Fetch func(ctx context.Context, req *types.Request) (*types.Response, error)

// Site is a live definition: the parsed spec plus the user's settings.
// It implements the framework's Definition interface.
type Site struct {
	spec     *Spec
	settings map[string]string
	caps     *types.Capabilities
	fetch    Fetch
	strip    *regexp.Regexp
}

// New builds a Site from a parsed spec. Settings fill the {{name}}
// placeholders of the login inputs. The fetch function is used for
// download resolution and may be nil for search-only use.
func New(spec *Spec, settings map[string]string, fetch Fetch) (*Site, error) {
	mapper := categories.NewMapper()
	mapper.FallbackAll = spec.Caps.AllCategories
	for _, cm := range spec.Caps.CategoryMappings {
		mapper.AddMapping(cm.Key, categories.Lookup(cm.Cat), cm.Desc)
	}

	caps := &types.Capabilities{
		SearchParams:       spec.Caps.Modes["search"],
		TVSearchParams:     spec.Caps.Modes["tv-search"],
		MovieSearchParams:  spec.Caps.Modes["movie-search"],
		MusicSearchParams:  spec.Caps.Modes["music-search"],
		BookSearchParams:   spec.Caps.Modes["book-search"],
		SupportsPagination: spec.Search.PageParam != "" && spec.Caps.PageSize > 0,
		PageSize:           spec.Caps.PageSize,
		Flags:              spec.Caps.Flags,
		Categories:         mapper,
	}

	var strip *regexp.Regexp
	if spec.Search.KeywordStrip != "" {
		strip = regexp.MustCompile(spec.Search.KeywordStrip)
	}

	return &Site{
		spec:     spec,
		settings: settings,
		caps:     caps,
		fetch:    fetch,
		strip:    strip,
	}, nil
}

func (s *Site) Name() string                      { return s.spec.Name }
func (s *Site) Capabilities() *types.Capabilities { return s.caps }

func (s *Site) Protocol() types.Protocol {
	if s.spec.Protocol == string(types.ProtocolUsenet) {
		return types.ProtocolUsenet
	}
	return types.ProtocolTorrent
}

func (s *Site) Privacy() types.Privacy {
	switch s.spec.Privacy {
	case string(types.PrivacyPublic):
		return types.PrivacyPublic
	case string(types.PrivacySemiPrivate):
		return types.PrivacySemiPrivate
	default:
		return types.PrivacyPrivate
	}
}

func (s *Site) RequestGenerator() indexer.RequestGenerator {
	return &requestGenerator{site: s}
}

func (s *Site) Parser() indexer.ResponseParser {
	return &responseParser{site: s}
}

// SanitizeKeywords strips characters the site's search cannot digest.
func (s *Site) SanitizeKeywords(term string) string {
	if s.strip != nil {
		term = s.strip.ReplaceAllString(term, " ")
	}
	return strings.Join(strings.Fields(term), " ")
}

// LoginFlow builds the session flow for this site, nil when the site is
// public.
func (s *Site) LoginFlow() session.Flow {
	login := s.spec.Login
	if login == nil || login.Method == "" {
		return nil
	}

	inputs := make(map[string]string, len(login.Inputs))
	for key, val := range login.Inputs {
		inputs[key] = s.resolvePlaceholders(val)
	}

	switch login.Method {
	case "post":
		return &session.PostFlow{
			Path:          login.Path,
			Inputs:        inputs,
			ErrorSelector: login.ErrorSelector,
		}
	case "cookie":
		return &session.CookieFlow{Cookies: s.settings["cookie"]}
	default: // form
		form := &session.FormFlow{
			Path:          login.Path,
			FormSelector:  login.FormSelector,
			Inputs:        inputs,
			ErrorSelector: login.ErrorSelector,
		}
		if login.Captcha != nil {
			return &session.CaptchaFlow{
				Inner:             form,
				ChallengeSelector: login.Captcha.Selector,
				SolutionInput:     login.Captcha.Input,
			}
		}
		return form
	}
}

// LoginCheck detects search responses that are really login pages.
func (s *Site) LoginCheck() session.CheckFunc {
	if s.spec.Login == nil || s.spec.Login.CheckSelector == "" {
		return nil
	}
	return session.SelectorCheck(s.spec.Login.CheckSelector)
}

// VolumeOrder returns the freeleech precedence for this site, falling
// back to the shared default order.
func (s *Site) VolumeOrder() []parseutil.VolumeSignal {
	if len(s.spec.Search.VolumeSignals) == 0 {
		return parseutil.DefaultVolumeOrder
	}
	order := make([]parseutil.VolumeSignal, 0, len(s.spec.Search.VolumeSignals))
	for _, vs := range s.spec.Search.VolumeSignals {
		order = append(order, parseutil.VolumeSignal{Marker: vs.Marker, Factor: vs.Factor})
	}
	return order
}

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// resolvePlaceholders substitutes {{name}} markers from the settings.
func (s *Site) resolvePlaceholders(val string) string {
	return placeholderRe.ReplaceAllStringFunc(val, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		return s.settings[name]
	})
}
