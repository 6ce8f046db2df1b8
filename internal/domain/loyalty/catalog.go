package loyalty

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed rewards.yaml
var defaultCatalogYAML []byte

// DiscountType is the effect a reward produces when redeemed
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
	DiscountFreeItem   DiscountType = "free_item"
)

// LocalizedText holds English and Arabic copies of a string
type LocalizedText struct {
	En string `json:"en" yaml:"en"`
	Ar string `json:"ar" yaml:"ar"`
}

// Reward is a catalog entry
type Reward struct {
	ID                 string          `json:"id"`
	Name               LocalizedText   `json:"name"`
	Description        LocalizedText   `json:"description"`
	PointsRequired     int             `json:"points_required"`
	DiscountType       DiscountType    `json:"discount_type"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	IsActive           bool            `json:"is_active"`
	ValidUntil         *time.Time      `json:"valid_until,omitempty"`
	ApplicableProducts []string        `json:"applicable_products,omitempty"`
}

// rewardFile mirrors rewards.yaml; decimals and dates stay strings until validated
type rewardFile struct {
	Rewards []struct {
		ID                 string        `yaml:"id"`
		Name               LocalizedText `yaml:"name"`
		Description        LocalizedText `yaml:"description"`
		PointsRequired     int           `yaml:"points_required"`
		DiscountType       DiscountType  `yaml:"discount_type"`
		DiscountValue      string        `yaml:"discount_value"`
		IsActive           bool          `yaml:"is_active"`
		ValidUntil         string        `yaml:"valid_until"`
		ApplicableProducts []string      `yaml:"applicable_products"`
	} `yaml:"rewards"`
}

// Catalog is the read-only set of redeemable rewards
type Catalog struct {
	rewards []Reward
	byID    map[string]int
	now     func() time.Time
}

// DefaultCatalog returns the catalog embedded in the binary
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalogYAML))
}

// LoadCatalogFile reads a catalog from path, or the embedded one when path is empty
func LoadCatalogFile(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog parses and validates a YAML catalog
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file rewardFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		rewards: make([]Reward, 0, len(file.Rewards)),
		byID:    make(map[string]int, len(file.Rewards)),
		now:     time.Now,
	}

	for _, raw := range file.Rewards {
		if raw.ID == "" {
			return nil, fmt.Errorf("catalog: reward without id")
		}
		if _, dup := c.byID[raw.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate reward %s", raw.ID)
		}
		if raw.PointsRequired <= 0 {
			return nil, fmt.Errorf("catalog: %s: points_required must be positive", raw.ID)
		}

		value, err := decimal.NewFromString(raw.DiscountValue)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: discount_value: %w", raw.ID, err)
		}

		switch raw.DiscountType {
		case DiscountFixed:
			if !value.IsPositive() {
				return nil, fmt.Errorf("catalog: %s: fixed discount must be positive", raw.ID)
			}
		case DiscountPercentage:
			if !value.IsPositive() || value.GreaterThan(decimal.NewFromInt(100)) {
				return nil, fmt.Errorf("catalog: %s: percentage must be in (0, 100]", raw.ID)
			}
		case DiscountFreeItem:
			if len(raw.ApplicableProducts) == 0 {
				return nil, fmt.Errorf("catalog: %s: free_item reward needs applicable_products", raw.ID)
			}
		default:
			return nil, fmt.Errorf("catalog: %s: unknown discount_type %q", raw.ID, raw.DiscountType)
		}

		reward := Reward{
			ID:                 raw.ID,
			Name:               raw.Name,
			Description:        raw.Description,
			PointsRequired:     raw.PointsRequired,
			DiscountType:       raw.DiscountType,
			DiscountValue:      value,
			IsActive:           raw.IsActive,
			ApplicableProducts: raw.ApplicableProducts,
		}
		if raw.ValidUntil != "" {
			until, err := time.Parse(time.RFC3339, raw.ValidUntil)
			if err != nil {
				return nil, fmt.Errorf("catalog: %s: valid_until: %w", raw.ID, err)
			}
			reward.ValidUntil = &until
		}

		c.byID[reward.ID] = len(c.rewards)
		c.rewards = append(c.rewards, reward)
	}

	sort.SliceStable(c.rewards, func(i, j int) bool {
		return c.rewards[i].PointsRequired < c.rewards[j].PointsRequired
	})
	for i, r := range c.rewards {
		c.byID[r.ID] = i
	}

	return c, nil
}

// WithClock returns a copy of the catalog that evaluates validity against now
func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	cp := *c
	cp.now = now
	return &cp
}

// All returns every reward, cheapest first
func (c *Catalog) All() []Reward {
	out := make([]Reward, len(c.rewards))
	copy(out, c.rewards)
	return out
}

// Get looks up a reward by id
func (c *Catalog) Get(id string) (Reward, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Reward{}, false
	}
	return c.rewards[i], true
}

// IsAvailable reports whether a reward can currently be redeemed by anyone
func (c *Catalog) IsAvailable(r Reward) bool {
	if !r.IsActive {
		return false
	}
	return r.ValidUntil == nil || c.now().Before(*r.ValidUntil)
}

// CanRedeemReward reports whether a balance of points can redeem r right now
func (c *Catalog) CanRedeemReward(points int, r Reward) bool {
	return c.IsAvailable(r) && points >= r.PointsRequired
}

// GetAvailableRewards returns the rewards a balance can redeem right now
func (c *Catalog) GetAvailableRewards(availablePoints int) []Reward {
	out := make([]Reward, 0, len(c.rewards))
	for _, r := range c.rewards {
		if c.CanRedeemReward(availablePoints, r) {
			out = append(out, r)
		}
	}
	return out
}
