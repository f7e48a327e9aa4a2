// AngelaMos | 2026
// catalog.go

package permission

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/tier"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type TierEntry struct {
	ID          string   `koanf:"id"          validate:"required"`
	Name        string   `koanf:"name"        validate:"required"`
	Rank        int      `koanf:"rank"        validate:"min=0"`
	PriceCents  int64    `koanf:"price_cents" validate:"min=0"`
	TrustLevel  int      `koanf:"trust_level" validate:"min=0,max=5"`
	Permissions []string `koanf:"permissions" validate:"dive,required"`
	Datasets    []string `koanf:"datasets"    validate:"dive,required"`
}

type SkillEntry struct {
	ID          string   `koanf:"id"          validate:"required"`
	TrustLevel  int      `koanf:"trust_level" validate:"min=0,max=5"`
	Permissions []string `koanf:"permissions" validate:"dive,required"`
	Datasets    []string `koanf:"datasets"    validate:"dive,required"`
}

// Catalog is the single table mapping tier and skill ids to capability
// bundles. It also carries the tier order.
type Catalog struct {
	Tiers  []TierEntry  `koanf:"tiers"  validate:"required,min=1,dive"`
	Skills []SkillEntry `koanf:"skills" validate:"dive"`
}

// bytesProvider feeds an in-memory document to koanf.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) {
	return b, nil
}

func (b bytesProvider) Read() (map[string]any, error) {
	return nil, errors.New("bytes provider does not support Read()")
}

// LoadCatalog reads the catalog at path, or the embedded default when path
// is empty, and validates it.
func LoadCatalog(path string) (*Catalog, error) {
	var provider koanf.Provider = bytesProvider(defaultCatalog)
	if path != "" {
		provider = file.Provider(path)
	}
	return loadCatalog(provider)
}

// ParseCatalog parses and validates a YAML catalog document.
func ParseCatalog(doc []byte) (*Catalog, error) {
	return loadCatalog(bytesProvider(doc))
}

func loadCatalog(provider koanf.Provider) (*Catalog, error) {
	k := koanf.New(".")
	if err := k.Load(provider, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	c := &Catalog{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	return c, nil
}

func (c *Catalog) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%s: %w", core.FormatValidationError(err), core.ErrInvalidInput)
	}

	if _, err := c.Hierarchy(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Skills))
	for _, s := range c.Skills {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate skill %q: %w", s.ID, core.ErrInvalidInput)
		}
		seen[s.ID] = struct{}{}
	}

	return nil
}

func (c *Catalog) Hierarchy() (*tier.Hierarchy, error) {
	tiers := make([]tier.Tier, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		tiers = append(tiers, tier.Tier{
			ID:         t.ID,
			Name:       t.Name,
			Rank:       t.Rank,
			PriceCents: t.PriceCents,
		})
	}
	return tier.NewHierarchy(tiers)
}
