package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/picoscan/internal/types"
)

// SaveScan stores a scan result and its findings in one transaction and
// returns the scan's ID. The result's ScanID must be a UUID.
func (db *DB) SaveScan(ctx context.Context, result *types.ScanResult, rulesSource string) (uuid.UUID, error) {
	id, err := uuid.Parse(result.ScanID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid scan id %q: %w", result.ScanID, err)
	}

	content, err := json.Marshal(result)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal scan result: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status, used, findings := summarize(result)
	_, err = tx.Exec(ctx,
		`INSERT INTO scans (id, root, rules_source, app_package, status, sdk_count, used_sdk_count, finding_count, result)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, result.Root, rulesSource, appPackage(result), status, len(result.SDKResults), used, findings, content,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save scan: %w", err)
	}

	rows := findingRows(id, result.Findings())
	if len(rows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"scan_findings"},
			[]string{"scan_id", "position", "sdk_id", "pvp_id", "law", "severity", "triggering_rule", "evidence_summary"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to save findings: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit scan: %w", err)
	}
	return id, nil
}

func findingRows(scanID uuid.UUID, findings []types.PVPFinding) [][]any {
	rows := make([][]any, 0, len(findings))
	for i, f := range findings {
		rows = append(rows, []any{scanID, i, f.SDKID, f.PVPID, f.Law, string(f.Severity), f.TriggeringRule, f.EvidenceSummary})
	}
	return rows
}

// GetScan retrieves a stored scan result, or nil if it does not exist
func (db *DB) GetScan(ctx context.Context, id uuid.UUID) (*types.ScanResult, error) {
	var content []byte
	err := db.pool.QueryRow(ctx, `SELECT result FROM scans WHERE id = $1`, id).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}

	var result types.ScanResult
	if err := json.Unmarshal(content, &result); err != nil {
		return nil, fmt.Errorf("failed to decode stored scan %s: %w", id, err)
	}
	return &result, nil
}

// ListScans retrieves recent scans, newest first, with optional filters
func (db *DB) ListScans(ctx context.Context, filters ScanFilters) ([]ScanSummary, error) {
	query, args := buildListQuery(filters)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []ScanSummary
	for rows.Next() {
		var s ScanSummary
		if err := rows.Scan(&s.ID, &s.Root, &s.RulesSource, &s.AppPackage, &s.Status,
			&s.SDKCount, &s.UsedSDKCount, &s.FindingCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return scans, nil
}

func buildListQuery(filters ScanFilters) (string, []any) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}

	query := `SELECT id, root, rules_source, app_package, status, sdk_count, used_sdk_count, finding_count, created_at
		FROM scans WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.AppPackage != "" {
		query += fmt.Sprintf(" AND app_package ILIKE $%d", argNum)
		args = append(args, "%"+filters.AppPackage+"%")
		argNum++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)
	return query, args
}

// ListFindings retrieves the findings of one scan in result order
func (db *DB) ListFindings(ctx context.Context, scanID uuid.UUID) ([]StoredFinding, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT sdk_id, pvp_id, law, severity, triggering_rule, evidence_summary
		 FROM scan_findings WHERE scan_id = $1 ORDER BY position`,
		scanID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	var findings []StoredFinding
	for rows.Next() {
		f := StoredFinding{ScanID: scanID}
		var severity string
		if err := rows.Scan(&f.SDKID, &f.PVPID, &f.Law, &severity, &f.TriggeringRule, &f.EvidenceSummary); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.Severity = types.Severity(severity)
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	return findings, nil
}

// DeleteScan removes a scan and its findings. It reports whether a scan was deleted.
func (db *DB) DeleteScan(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete scan: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
