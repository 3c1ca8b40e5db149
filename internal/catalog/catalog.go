// Package catalog holds the read-only reference data used by the safety
// workflow: lock colors, permit type definitions and PPE items.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/ukydev/workorder-safety/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// LockColor is a padlock color assigned to an energy type.
type LockColor struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Hex     string `json:"hex" yaml:"hex"`
	Purpose string `json:"purpose" yaml:"purpose"`
}

// PPEItem is a piece of personal protective equipment.
type PPEItem struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
}

// LockColorCatalog answers lock color lookups.
type LockColorCatalog interface {
	LockColor(id string) (LockColor, bool)
	LockColors() []LockColor
}

// PermitTypeCatalog answers permit type lookups.
type PermitTypeCatalog interface {
	PermitType(id string) (models.PermitType, bool)
	PermitTypes() []models.PermitType
}

// PPECatalog answers PPE lookups.
type PPECatalog interface {
	PPE(id string) (PPEItem, bool)
	PPEItems() []PPEItem
}

type document struct {
	LockColors  []LockColor         `yaml:"lock_colors"`
	PPE         []PPEItem           `yaml:"ppe"`
	PermitTypes []models.PermitType `yaml:"permit_types"`
}

// Catalog is an immutable set of reference data. It implements
// LockColorCatalog, PermitTypeCatalog and PPECatalog.
type Catalog struct {
	lockColors  []LockColor
	ppe         []PPEItem
	permitTypes []models.PermitType

	lockByID   map[string]int
	ppeByID    map[string]int
	permitByID map[string]int
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file. An empty path returns Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		lockColors:  doc.LockColors,
		ppe:         doc.PPE,
		permitTypes: doc.PermitTypes,
		lockByID:    make(map[string]int, len(doc.LockColors)),
		ppeByID:     make(map[string]int, len(doc.PPE)),
		permitByID:  make(map[string]int, len(doc.PermitTypes)),
	}
	for i, lc := range doc.LockColors {
		if lc.ID == "" {
			return nil, fmt.Errorf("lock color %d has no id", i)
		}
		if _, dup := c.lockByID[lc.ID]; dup {
			return nil, fmt.Errorf("duplicate lock color %q", lc.ID)
		}
		c.lockByID[lc.ID] = i
	}
	for i, p := range doc.PPE {
		if p.ID == "" {
			return nil, fmt.Errorf("ppe item %d has no id", i)
		}
		if _, dup := c.ppeByID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate ppe item %q", p.ID)
		}
		c.ppeByID[p.ID] = i
	}
	for i, pt := range doc.PermitTypes {
		if err := validatePermitType(pt); err != nil {
			return nil, err
		}
		if _, dup := c.permitByID[pt.ID]; dup {
			return nil, fmt.Errorf("duplicate permit type %q", pt.ID)
		}
		c.permitByID[pt.ID] = i
	}
	return c, nil
}

func validatePermitType(pt models.PermitType) error {
	if pt.ID == "" {
		return fmt.Errorf("permit type %q has no id", pt.Name)
	}
	if pt.ExpirationHours <= 0 {
		return fmt.Errorf("permit type %q: expiration_hours must be positive", pt.ID)
	}
	seen := make(map[string]bool, len(pt.FormFields))
	for _, f := range pt.FormFields {
		switch f.Type {
		case models.FieldText, models.FieldTextarea, models.FieldSelect, models.FieldCheckbox,
			models.FieldDate, models.FieldTime, models.FieldSignature:
		default:
			return fmt.Errorf("permit type %q field %q: unknown type %q", pt.ID, f.ID, f.Type)
		}
		if seen[f.ID] {
			return fmt.Errorf("permit type %q: duplicate field %q", pt.ID, f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}

func (c *Catalog) LockColor(id string) (LockColor, bool) {
	i, ok := c.lockByID[id]
	if !ok {
		return LockColor{}, false
	}
	return c.lockColors[i], true
}

func (c *Catalog) LockColors() []LockColor {
	return append([]LockColor(nil), c.lockColors...)
}

func (c *Catalog) PermitType(id string) (models.PermitType, bool) {
	i, ok := c.permitByID[id]
	if !ok {
		return models.PermitType{}, false
	}
	return c.permitTypes[i], true
}

func (c *Catalog) PermitTypes() []models.PermitType {
	return append([]models.PermitType(nil), c.permitTypes...)
}

func (c *Catalog) PPE(id string) (PPEItem, bool) {
	i, ok := c.ppeByID[id]
	if !ok {
		return PPEItem{}, false
	}
	return c.ppe[i], true
}

func (c *Catalog) PPEItems() []PPEItem {
	return append([]PPEItem(nil), c.ppe...)
}
