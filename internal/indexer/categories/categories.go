// Package categories defines the standard release category tree and the
// per-indexer mapping between site-specific category keys and standard
// categories.
package categories

import "sort"

// Category is a node in the standard category tree.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Standard category IDs. Grouped by thousands: 2000s movies, 3000s audio,
// 4000s PC, 5000s TV, 6000s XXX, 7000s books, 8000s other. IDs at an even
// thousand are parent categories for their range.
const (
	Console        = 1000
	ConsoleNDS     = 1010
	ConsolePSP     = 1020
	ConsoleWii     = 1030
	Movies         = 2000
	MoviesForeign  = 2010
	MoviesOther    = 2020
	MoviesSD       = 2030
	MoviesHD       = 2040
	MoviesUHD      = 2045
	MoviesBluRay   = 2050
	Movies3D       = 2060
	MoviesDVD      = 2070
	MoviesWebDL    = 2080
	Audio          = 3000
	AudioMP3       = 3010
	AudioVideo     = 3020
	AudioAudiobook = 3030
	AudioLossless  = 3040
	AudioOther     = 3050
	AudioForeign   = 3060
	PC             = 4000
	PC0day         = 4010
	PCISO          = 4020
	PCMac          = 4030
	PCMobileOther  = 4040
	PCGames        = 4050
	TV             = 5000
	TVWebDL        = 5010
	TVForeign      = 5020
	TVSD           = 5030
	TVHD           = 5040
	TVUHD          = 5045
	TVOther        = 5050
	TVSport        = 5060
	TVAnime        = 5070
	TVDocumentary  = 5080
	XXX            = 6000
	XXXDVD         = 6010
	XXXImageSet    = 6060
	XXXOther       = 6070
	Books          = 7000
	BooksMags      = 7010
	BooksEBook     = 7020
	BooksComics    = 7030
	BooksTechnical = 7040
	BooksForeign   = 7060
	Other          = 8000
	OtherMisc      = 8010

	// Custom per-site categories (1:1 from a site description) start here,
	// outside every standard range.
	CustomCategoryOffset = 100000
)

var names = map[int]string{
	Console:        "Console",
	ConsoleNDS:     "Console/NDS",
	ConsolePSP:     "Console/PSP",
	ConsoleWii:     "Console/Wii",
	Movies:         "Movies",
	MoviesForeign:  "Movies/Foreign",
	MoviesOther:    "Movies/Other",
	MoviesSD:       "Movies/SD",
	MoviesHD:       "Movies/HD",
	MoviesUHD:      "Movies/UHD",
	MoviesBluRay:   "Movies/BluRay",
	Movies3D:       "Movies/3D",
	MoviesDVD:      "Movies/DVD",
	MoviesWebDL:    "Movies/WEB-DL",
	Audio:          "Audio",
	AudioMP3:       "Audio/MP3",
	AudioVideo:     "Audio/Video",
	AudioAudiobook: "Audio/Audiobook",
	AudioLossless:  "Audio/Lossless",
	AudioOther:     "Audio/Other",
	AudioForeign:   "Audio/Foreign",
	PC:             "PC",
	PC0day:         "PC/0day",
	PCISO:          "PC/ISO",
	PCMac:          "PC/Mac",
	PCMobileOther:  "PC/Mobile-Other",
	PCGames:        "PC/Games",
	TV:             "TV",
	TVWebDL:        "TV/WEB-DL",
	TVForeign:      "TV/Foreign",
	TVSD:           "TV/SD",
	TVHD:           "TV/HD",
	TVUHD:          "TV/UHD",
	TVOther:        "TV/Other",
	TVSport:        "TV/Sport",
	TVAnime:        "TV/Anime",
	TVDocumentary:  "TV/Documentary",
	XXX:            "XXX",
	XXXDVD:         "XXX/DVD",
	XXXImageSet:    "XXX/ImageSet",
	XXXOther:       "XXX/Other",
	Books:          "Books",
	BooksMags:      "Books/Mags",
	BooksEBook:     "Books/EBook",
	BooksComics:    "Books/Comics",
	BooksTechnical: "Books/Technical",
	BooksForeign:   "Books/Foreign",
	Other:          "Other",
	OtherMisc:      "Other/Misc",
}

// Lookup returns the standard category for an ID. Unknown IDs yield a
// category with an empty name so callers can still carry the raw ID through.
func Lookup(id int) Category {
	if name, ok := names[id]; ok {
		return Category{ID: id, Name: name}
	}
	return Category{ID: id}
}

// Name returns the human-readable name of a standard category ID.
func Name(id int) string {
	return Lookup(id).Name
}

// ParentID returns the parent category ID for a subcategory, or the ID itself
// when it already is a parent (or a custom category, which has no parent).
func ParentID(id int) int {
	if id >= CustomCategoryOffset {
		return id
	}
	return (id / 1000) * 1000
}

// IsParent reports whether the ID names a whole category range.
func IsParent(id int) bool {
	return id < CustomCategoryOffset && id%1000 == 0
}

// MovieCategories returns every standard movie category.
func MovieCategories() []int { return rangeIDs(Movies) }

// TVCategories returns every standard TV category.
func TVCategories() []int { return rangeIDs(TV) }

// AudioCategories returns every standard audio category.
func AudioCategories() []int { return rangeIDs(Audio) }

// BookCategories returns every standard book category.
func BookCategories() []int { return rangeIDs(Books) }

// All returns every standard category sorted by ID.
func All() []Category {
	cats := make([]Category, 0, len(names))
	for id, name := range names {
		cats = append(cats, Category{ID: id, Name: name})
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })
	return cats
}

func rangeIDs(parent int) []int {
	ids := []int{parent}
	for id := range names {
		if id != parent && ParentID(id) == parent {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
