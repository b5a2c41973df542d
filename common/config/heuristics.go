package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Heuristics holds the keyword lists the crawlers match page structure
// against. Only the data is configurable; the matching stays in code.
type Heuristics struct {
	// PaginationKeywords are looked up in id, class and aria-label values.
	PaginationKeywords []string `yaml:"pagination_keywords"`
	// TextKeywords are directional words and glyphs of pagination controls.
	TextKeywords []string `yaml:"text_keywords"`
	// MaxPageNumber bounds the bare integers accepted as page numbers.
	MaxPageNumber int `yaml:"max_page_number"`
	// VolatileAttributes change between loads and are ignored when matching containers.
	VolatileAttributes []string `yaml:"volatile_attributes"`
	VideoKeywords      []string `yaml:"video_keywords"`
	SkipExtensions     []string `yaml:"skip_extensions"`
	// BlockedDomains are job aggregators and social sites never treated as career pages.
	BlockedDomains []string `yaml:"blocked_domains"`
	// AttachmentExtensions mark job URLs that point at documents instead of pages.
	AttachmentExtensions []string `yaml:"attachment_extensions"`
}

func DefaultHeuristics() Heuristics {
	return Heuristics{
		PaginationKeywords: []string{"pagination", "pager", "page", "nav", "pagenav", "paginate", "pag"},
		TextKeywords: []string{
			"next", "prev", "previous", "first", "last",
			"page", "pagination", "pager", "pg", "pgn", "step",
			"weiter", "nächste", "zurück", "suivant", "précédent",
			"siguiente", "anterior", "volgende", "vorige", "successivo", "precedente",
			"التالي", "다음", "次へ", "下一页",
			">>", "<<", ">", "<", "»", "«", "›", "‹",
			"→", "←", "⇒", "⇐", "➜", "➝", "➞", "➡", "⬅", "⏩", "⏪",
		},
		MaxPageNumber:      199,
		VolatileAttributes: []string{"style", "data-ps", "au-target-id", "v-phw-setting"},
		VideoKeywords:      []string{"youtube", "vimeo", "dailymotion", "wistia", "player.", "video"},
		SkipExtensions:     []string{".js", ".css", ".jpg", ".jpeg", ".png", ".pdf"},
		BlockedDomains: []string{
			"linkedin.com", "indeed.com", "glassdoor.com", "monster.com",
			"facebook.com", "instagram.com", "twitter.com", "x.com", "tiktok.com",
			"youtube.com", "google.com", "apple.com", "wikipedia.org",
		},
		AttachmentExtensions: []string{".pdf", ".doc", ".docx", ".odt", ".rtf", ".ppt", ".pptx", ".xls", ".xlsx", ".zip"},
	}
}

// LoadHeuristics returns the defaults overridden by the YAML file at path.
// Lists present in the file replace the default list entirely.
func LoadHeuristics(path string) (Heuristics, error) {
	h := DefaultHeuristics()
	if path == "" {
		return h, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return h, fmt.Errorf("reading heuristics file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return h, fmt.Errorf("parsing heuristics file: %w", err)
	}
	return h, nil
}
