package categorization

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Tedsan/daily-topic/internal/core"
)

// Category is one topic bucket with its scoring keywords
type Category struct {
	Code     core.CategoryCode `yaml:"code"`
	Label    string            `yaml:"label"`
	Icon     string            `yaml:"icon"`
	Keywords []string          `yaml:"keywords"`
	Priority int               `yaml:"-"` // Position in core.PriorityOrder, lower wins ties
}

// Taxonomy is the ordered category table used by the classifier and the report.
type Taxonomy struct {
	categories []Category
	byCode     map[core.CategoryCode]int
}

// DefaultCategories returns the standard category set in priority order
func DefaultCategories() []Category {
	return []Category{
		{
			Code:     core.CategorySDV,
			Label:    "Software-Defined Vehicle",
			Icon:     "🚗",
			Keywords: []string{"SDV", "AUTOSAR", "Adaptive AUTOSAR", "車載ソフト", "Classic AUTOSAR"},
			Priority: 1,
		},
		{
			Code:  core.CategoryIIoT,
			Label: "Industrial IoT & Edge",
			Icon:  "🏭",
			Keywords: []string{
				"Industrial IoT", "IIoT", "スマートファクトリー", "Edge Computing",
				"エッジコンピューティング", "産業用IoT", "PLM",
			},
			Priority: 2,
		},
		{
			Code:  core.CategoryProtocols,
			Label: "Industrial Protocols",
			Icon:  "🔌",
			Keywords: []string{
				"MQTT", "OPC UA", "OPC UA FX", "open62541", "TSN", "openPLC", "ソフトウェアPLC",
			},
			Priority: 3,
		},
		{
			Code:  core.CategoryGenAITech,
			Label: "Generative AI Tech",
			Icon:  "🤖",
			Keywords: []string{
				"Gemini CLI", "Gemini", "Claude", "Claude Code", "OpenAI", "Anthropic", "Mistral AI", "DeepMind",
			},
			Priority: 4,
		},
		{
			Code:  core.CategoryGenAICases,
			Label: "Gen-AI Use Cases",
			Icon:  "💡",
			Keywords: []string{
				"生成AI 活用事例", "LLM ユースケース", "RAG", "AI agent", "導入事例", "Case Study", "LLM",
			},
			Priority: 5,
		},
		{
			Code:     core.CategoryOther,
			Label:    "Other",
			Icon:     "📌",
			Keywords: []string{"その他"},
			Priority: 6,
		},
	}
}

// NewTaxonomy builds a taxonomy from categories. Every code in core.PriorityOrder
// must be present exactly once; priorities are reassigned from that order.
func NewTaxonomy(categories []Category) (*Taxonomy, error) {
	given := make(map[core.CategoryCode]Category, len(categories))
	for _, cat := range categories {
		if _, dup := given[cat.Code]; dup {
			return nil, fmt.Errorf("duplicate category code %s", cat.Code)
		}
		if !isKnownCode(cat.Code) {
			return nil, fmt.Errorf("unknown category code %q", cat.Code)
		}
		given[cat.Code] = cat
	}

	t := &Taxonomy{byCode: make(map[core.CategoryCode]int, len(core.PriorityOrder))}
	for i, code := range core.PriorityOrder {
		cat, ok := given[code]
		if !ok {
			return nil, fmt.Errorf("missing category %s", code)
		}
		cat.Priority = i + 1
		t.byCode[code] = len(t.categories)
		t.categories = append(t.categories, cat)
	}
	return t, nil
}

// DefaultTaxonomy returns the built-in taxonomy
func DefaultTaxonomy() *Taxonomy {
	t, err := NewTaxonomy(DefaultCategories())
	if err != nil {
		panic(err)
	}
	return t
}

type taxonomyFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadTaxonomy reads a YAML override file. Entries replace the label, icon and
// keywords of the default category with the same code; omitted fields keep their defaults.
// An empty path returns the default taxonomy.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category file %s: %w", path, err)
	}

	var file taxonomyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse category file %s: %w", path, err)
	}

	categories := DefaultCategories()
	index := make(map[core.CategoryCode]int, len(categories))
	for i, cat := range categories {
		index[cat.Code] = i
	}

	for _, override := range file.Categories {
		i, ok := index[override.Code]
		if !ok {
			return nil, fmt.Errorf("unknown category code %q in %s", override.Code, path)
		}
		if override.Label != "" {
			categories[i].Label = override.Label
		}
		if override.Icon != "" {
			categories[i].Icon = override.Icon
		}
		if override.Keywords != nil {
			categories[i].Keywords = override.Keywords
		}
	}

	return NewTaxonomy(categories)
}

// Categories returns the categories in priority order
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	copy(out, t.categories)
	return out
}

// Get returns the category for code
func (t *Taxonomy) Get(code core.CategoryCode) (Category, bool) {
	i, ok := t.byCode[code]
	if !ok {
		return Category{}, false
	}
	return t.categories[i], true
}

// Label returns the label for code, or the code itself when unknown
func (t *Taxonomy) Label(code core.CategoryCode) string {
	if cat, ok := t.Get(code); ok {
		return cat.Label
	}
	return string(code)
}

// Scored returns the categories that take part in scoring, catch-all excluded
func (t *Taxonomy) Scored() []Category {
	scored := make([]Category, 0, len(t.categories)-1)
	for _, cat := range t.categories {
		if cat.Code == core.CategoryOther {
			continue
		}
		scored = append(scored, cat)
	}
	return scored
}

func isKnownCode(code core.CategoryCode) bool {
	for _, c := range core.PriorityOrder {
		if c == code {
			return true
		}
	}
	return false
}
