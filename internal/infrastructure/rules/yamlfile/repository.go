package yamlfile

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

// Document is the on-disk layout of a rule file.
type Document struct {
	// Version overrides the file-stat based version when set.
	Version    string                  `yaml:"version,omitempty"`
	Types      []domain.TypeRules      `yaml:"types"`
	Extraction []domain.ExtractionRule `yaml:"extraction"`
}

// Repository serves rules from a YAML file. The file is re-read on every
// load so edits are picked up once the rule cache expires.
type Repository struct {
	path string
}

func New(path string) *Repository {
	return &Repository{path: path}
}

func (r *Repository) LoadClassificationRules(ctx context.Context) (domain.RuleSet, error) {
	doc, err := r.read(ctx)
	if err != nil {
		return domain.RuleSet{}, err
	}
	return domain.RuleSet{Types: doc.Types}, nil
}

func (r *Repository) LoadExtractionRules(ctx context.Context, documentTypeID string) ([]domain.ExtractionRule, error) {
	doc, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ExtractionRule, 0)
	for _, rule := range doc.Extraction {
		if rule.DocumentTypeID == documentTypeID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *Repository) ConfigVersion(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(r.path)
	if err != nil {
		return "", fmt.Errorf("stat rules file: %w", err)
	}
	doc, err := r.read(ctx)
	if err != nil {
		return "", err
	}
	if doc.Version != "" {
		return doc.Version, nil
	}
	return strconv.FormatInt(info.ModTime().UnixNano(), 10) + "-" + strconv.FormatInt(info.Size(), 10), nil
}

func (r *Repository) read(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return Document{}, fmt.Errorf("read rules file: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, domain.WrapError(domain.ErrInvalidInput, "parse rules file", err)
	}
	return doc, nil
}
