package categories

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// mapping associates one site category key with one standard category.
type mapping struct {
	key  string
	desc string
	cat  Category
}

// Mapper holds the category mappings for a single indexer. Built once at
// definition construction and read-only afterwards; queried in both
// directions during request generation and response parsing.
type Mapper struct {
	mappings []mapping

	// FallbackAll makes MapStandardToSite return every registered site key
	// when the query carries no categories. Policy belongs to the indexer
	// definition, never to the taxonomy itself.
	FallbackAll bool
}

// NewMapper returns an empty Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// AddMapping registers one site-key to standard-category association.
// Calling it twice with identical arguments is a no-op. When desc is set, a
// 1:1 custom category for the site's own taxonomy is registered alongside the
// standard one, so searches can target the exact site category.
func (m *Mapper) AddMapping(siteKey string, cat Category, desc string) {
	m.add(mapping{key: siteKey, desc: desc, cat: cat})

	if desc == "" {
		return
	}

	// Custom categories need a stable ID across releases of a definition.
	// Numeric site keys map directly; string keys are hashed.
	m.add(mapping{key: siteKey, desc: desc, cat: Category{
		ID:   customCategoryID(siteKey),
		Name: desc,
	}})
}

func (m *Mapper) add(mp mapping) {
	for _, existing := range m.mappings {
		if existing.key == mp.key && existing.cat.ID == mp.cat.ID {
			return
		}
	}
	m.mappings = append(m.mappings, mp)
}

// MapStandardToSite resolves requested standard category IDs to site keys,
// deduplicated in first-registered order. A parent ID matches every mapping
// in its range. With no input categories the result is empty unless
// FallbackAll is set, in which case every site key is returned.
func (m *Mapper) MapStandardToSite(ids []int) []string {
	if len(ids) == 0 {
		if m.FallbackAll {
			return m.SiteKeys()
		}
		return nil
	}

	wanted := make(map[int]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var keys []string
	seen := make(map[string]bool)
	for _, mp := range m.mappings {
		if seen[mp.key] {
			continue
		}
		if wanted[mp.cat.ID] || wanted[ParentID(mp.cat.ID)] {
			keys = append(keys, mp.key)
			seen[mp.key] = true
		}
	}
	return keys
}

// MapSiteToStandard resolves one site category key to its standard
// categories. Unknown keys yield an empty result, never an error.
func (m *Mapper) MapSiteToStandard(siteKey string) []Category {
	if strings.TrimSpace(siteKey) == "" {
		return nil
	}

	var cats []Category
	for _, mp := range m.mappings {
		if strings.EqualFold(mp.key, siteKey) {
			cats = append(cats, mp.cat)
		}
	}
	return cats
}

// MapSiteDescriptionToStandard resolves a human-readable site category label
// to standard categories, for sites whose result markup exposes only the
// label and not a machine key.
func (m *Mapper) MapSiteDescriptionToStandard(desc string) []Category {
	if strings.TrimSpace(desc) == "" {
		return nil
	}

	var cats []Category
	for _, mp := range m.mappings {
		if mp.desc != "" && strings.EqualFold(mp.desc, desc) {
			cats = append(cats, mp.cat)
		}
	}
	return cats
}

// SiteKeys returns every registered site key in first-registered order.
func (m *Mapper) SiteKeys() []string {
	var keys []string
	seen := make(map[string]bool)
	for _, mp := range m.mappings {
		if !seen[mp.key] {
			keys = append(keys, mp.key)
			seen[mp.key] = true
		}
	}
	return keys
}

// StandardCategories returns the distinct standard (non-custom) categories
// this indexer maps to, in first-registered order.
func (m *Mapper) StandardCategories() []Category {
	var cats []Category
	seen := make(map[int]bool)
	for _, mp := range m.mappings {
		if mp.cat.ID >= CustomCategoryOffset || seen[mp.cat.ID] {
			continue
		}
		cats = append(cats, mp.cat)
		seen[mp.cat.ID] = true
	}
	return cats
}

// Len returns the number of distinct site keys registered.
func (m *Mapper) Len() int {
	return len(m.SiteKeys())
}

func customCategoryID(siteKey string) int {
	if n, err := strconv.Atoi(siteKey); err == nil && n >= 0 {
		return CustomCategoryOffset + n
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(siteKey))
	return CustomCategoryOffset + int(h.Sum32()%uint32(CustomCategoryOffset))
}
