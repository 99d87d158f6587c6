package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/resilience"
)

// RuleRepository reads the rule tables maintained by the administration UI.
// Reads go through the resilience executor when one is configured.
type RuleRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewRuleRepository(db *sql.DB, executor *resilience.Executor) *RuleRepository {
	return &RuleRepository{db: db, executor: executor}
}

func (r *RuleRepository) LoadClassificationRules(ctx context.Context) (domain.RuleSet, error) {
	return resilience.Call(ctx, r.executor, "postgres.rules.classification", r.loadClassificationRules, classifyPostgresError)
}

func (r *RuleRepository) LoadExtractionRules(ctx context.Context, documentTypeID string) ([]domain.ExtractionRule, error) {
	return resilience.Call(ctx, r.executor, "postgres.rules.extraction", func(ctx context.Context) ([]domain.ExtractionRule, error) {
		return r.loadExtractionRules(ctx, documentTypeID)
	}, classifyPostgresError)
}

func (r *RuleRepository) ConfigVersion(ctx context.Context) (string, error) {
	return resilience.Call(ctx, r.executor, "postgres.rules.version", r.configVersion, classifyPostgresError)
}

func (r *RuleRepository) configVersion(ctx context.Context) (string, error) {
	var version string
	err := r.db.QueryRowContext(ctx, `SELECT version FROM rule_config WHERE id = 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read rule config version: %w", err)
	}
	return version, nil
}

func (r *RuleRepository) loadClassificationRules(ctx context.Context) (domain.RuleSet, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, code, label, active, auto_assign_threshold
FROM document_types
ORDER BY code
`)
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("list document types: %w", err)
	}
	defer rows.Close()

	set := domain.RuleSet{Types: make([]domain.TypeRules, 0)}
	index := make(map[string]int)
	for rows.Next() {
		var t domain.DocumentType
		if err := rows.Scan(&t.ID, &t.Code, &t.Label, &t.Active, &t.AutoAssignThreshold); err != nil {
			return domain.RuleSet{}, fmt.Errorf("scan document type: %w", err)
		}
		index[t.ID] = len(set.Types)
		set.Types = append(set.Types, domain.TypeRules{Type: t})
	}
	if err := rows.Err(); err != nil {
		return domain.RuleSet{}, fmt.Errorf("iterate document types: %w", err)
	}

	if err := r.loadKeywords(ctx, &set, index); err != nil {
		return domain.RuleSet{}, err
	}
	if err := r.loadSignals(ctx, &set, index); err != nil {
		return domain.RuleSet{}, err
	}
	return set, nil
}

func (r *RuleRepository) loadKeywords(ctx context.Context, set *domain.RuleSet, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_type_id, keyword, weight, context
FROM keyword_rules
ORDER BY document_type_id, id
`)
	if err != nil {
		return fmt.Errorf("list keyword rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rule domain.KeywordRule
		var typeID, hint string
		if err := rows.Scan(&rule.ID, &typeID, &rule.Keyword, &rule.Weight, &hint); err != nil {
			return fmt.Errorf("scan keyword rule: %w", err)
		}
		rule.Context = domain.KeywordContext(hint)
		if i, ok := index[typeID]; ok {
			set.Types[i].Keywords = append(set.Types[i].Keywords, rule)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate keyword rules: %w", err)
	}
	return nil
}

func (r *RuleRepository) loadSignals(ctx context.Context, set *domain.RuleSet, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_type_id, pattern, flags, weight, label
FROM signal_rules
ORDER BY document_type_id, id
`)
	if err != nil {
		return fmt.Errorf("list signal rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rule domain.SignalRule
		var typeID string
		if err := rows.Scan(&rule.ID, &typeID, &rule.Pattern, &rule.Flags, &rule.Weight, &rule.Label); err != nil {
			return fmt.Errorf("scan signal rule: %w", err)
		}
		if i, ok := index[typeID]; ok {
			set.Types[i].Signals = append(set.Types[i].Signals, rule)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate signal rules: %w", err)
	}
	return nil
}

func (r *RuleRepository) loadExtractionRules(ctx context.Context, documentTypeID string) ([]domain.ExtractionRule, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_type_id, field_name, pattern, priority, post_process
FROM extraction_rules
WHERE document_type_id = $1
ORDER BY priority, id
`, documentTypeID)
	if err != nil {
		return nil, fmt.Errorf("list extraction rules: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ExtractionRule, 0)
	for rows.Next() {
		var rule domain.ExtractionRule
		var postProcess string
		if err := rows.Scan(&rule.ID, &rule.DocumentTypeID, &rule.FieldName, &rule.Pattern, &rule.Priority, &postProcess); err != nil {
			return nil, fmt.Errorf("scan extraction rule: %w", err)
		}
		rule.PostProcess = domain.PostProcessKind(postProcess)
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extraction rules: %w", err)
	}
	return out, nil
}

// classifyPostgresError retries connection level failures only; query and
// constraint errors are permanent.
var classifyPostgresError = resilience.TransientClassifier(func(err error) bool {
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception, 57P01: admin shutdown
		return len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code == "57P01")
	}
	return false
})
