package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stars-imagegen-bot/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

const payloadPrefix = "topup:"

type PackagesConfig struct {
	Packages []models.TopUpPackage `yaml:"packages"`
}

// DefaultPackages is used when no packages file is present.
var DefaultPackages = []models.TopUpPackage{
	{Id: "small", Title: "10 images", Credits: 10, Stars: 50},
	{Id: "medium", Title: "30 images", Credits: 30, Stars: 125},
	{Id: "large", Title: "100 images", Credits: 100, Stars: 350},
}

func LoadPackages(packagesFile string) ([]models.TopUpPackage, error) {
	var packagesPath string
	if filepath.IsAbs(packagesFile) {
		packagesPath = packagesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		packagesPath = filepath.Join(wd, packagesFile)
	}

	data, err := os.ReadFile(packagesPath)
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Warn("Packages file not found, using defaults", zap.String("file", packagesFile))
		return DefaultPackages, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", packagesFile, err)
	}

	var config PackagesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", packagesFile, err)
	}

	if len(config.Packages) == 0 {
		return nil, fmt.Errorf("%s defines no packages", packagesFile)
	}

	seen := make(map[string]bool, len(config.Packages))
	for i, pkg := range config.Packages {
		if pkg.Id == "" {
			return nil, fmt.Errorf("package at index %d missing id", i)
		}
		if strings.ContainsAny(pkg.Id, " :") {
			return nil, fmt.Errorf("package %q id must not contain spaces or colons", pkg.Id)
		}
		if seen[pkg.Id] {
			return nil, fmt.Errorf("package %q defined twice", pkg.Id)
		}
		if pkg.Credits <= 0 {
			return nil, fmt.Errorf("package %q must grant a positive number of credits", pkg.Id)
		}
		if pkg.Stars <= 0 {
			return nil, fmt.Errorf("package %q must cost a positive number of stars", pkg.Id)
		}
		if pkg.Title == "" {
			config.Packages[i].Title = fmt.Sprintf("%d images", pkg.Credits)
		}
		seen[pkg.Id] = true
	}

	return config.Packages, nil
}

// Catalog resolves invoice payloads to top-up packages.
type Catalog struct {
	packages []models.TopUpPackage
	byId     map[string]models.TopUpPackage
}

func NewCatalog(packages []models.TopUpPackage) *Catalog {
	byId := make(map[string]models.TopUpPackage, len(packages))
	for _, pkg := range packages {
		byId[pkg.Id] = pkg
	}
	return &Catalog{packages: packages, byId: byId}
}

func (c *Catalog) All() []models.TopUpPackage {
	return c.packages
}

func (c *Catalog) Lookup(id string) (models.TopUpPackage, bool) {
	pkg, ok := c.byId[id]
	return pkg, ok
}

// Payload is the invoice payload that identifies pkg in payment callbacks.
func Payload(pkg models.TopUpPackage) string {
	return payloadPrefix + pkg.Id
}

// Resolve maps an invoice payload back to its package.
func (c *Catalog) Resolve(payload string) (models.TopUpPackage, bool) {
	id, ok := strings.CutPrefix(payload, payloadPrefix)
	if !ok {
		return models.TopUpPackage{}, false
	}
	return c.Lookup(id)
}

// StarsPerCredit is the effective price of one credit in the package.
func StarsPerCredit(pkg models.TopUpPackage) decimal.Decimal {
	if pkg.Credits == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(pkg.Stars)).Div(decimal.NewFromInt(pkg.Credits))
}
