package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"meeting-insights-go/internal/store/migrations"
	"meeting-insights-go/internal/types"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &PostgresStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)`); err != nil {
		return err
	}
	files, err := listMigrationFiles(migrations.Files)
	if err != nil {
		return err
	}
	for _, file := range files {
		applied, err := p.isMigrationApplied(ctx, file)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := p.applyMigration(ctx, file); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStore) isMigrationApplied(ctx context.Context, version string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) applyMigration(ctx context.Context, file string) error {
	sqlBytes, err := migrations.Files.ReadFile(file)
	if err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("apply migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`, file, time.Now().UTC()); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	return tx.Commit()
}

func listMigrationFiles(migFS fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migFS, ".")
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

const meetingColumns = `id, owner_id, title, category, status, audio_path, audio_size_bytes, audio_duration_seconds,
	transcript_text, transcript_confidence, transcript_language, nlp_features, summary, error_message,
	retention_deadline, audio_deleted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (types.Meeting, error) {
	var (
		m                                 types.Meeting
		status                            string
		audioPath, transcript, errMsg     sql.NullString
		confidence                        sql.NullFloat64
		nlpRaw, summaryRaw                []byte
		retentionDeadline, audioDeletedAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.OwnerID, &m.Title, &m.Category, &status, &audioPath, &m.AudioSizeBytes,
		&m.AudioDurationSeconds, &transcript, &confidence, &m.TranscriptLanguage, &nlpRaw, &summaryRaw, &errMsg,
		&retentionDeadline, &audioDeletedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return types.Meeting{}, err
	}
	st, err := types.ParseStatus(status)
	if err != nil {
		return types.Meeting{}, err
	}
	m.Status = st
	m.AudioPath = nullString(audioPath)
	m.TranscriptText = nullString(transcript)
	m.ErrorMessage = nullString(errMsg)
	if confidence.Valid {
		m.TranscriptConfidence = &confidence.Float64
	}
	if retentionDeadline.Valid {
		t := retentionDeadline.Time.UTC()
		m.RetentionDeadline = &t
	}
	if audioDeletedAt.Valid {
		t := audioDeletedAt.Time.UTC()
		m.AudioDeletedAt = &t
	}
	if len(nlpRaw) > 0 {
		var f types.LinguisticFeatures
		if err := json.Unmarshal(nlpRaw, &f); err != nil {
			return types.Meeting{}, fmt.Errorf("decode nlp_features: %w", err)
		}
		m.NLPFeatures = &f
	}
	if len(summaryRaw) > 0 {
		var s types.Summary
		if err := json.Unmarshal(summaryRaw, &s); err != nil {
			return types.Meeting{}, fmt.Errorf("decode summary: %w", err)
		}
		m.Summary = &s
	}
	return m, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func jsonValue(v any, isNil bool) (any, error) {
	if isNil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *PostgresStore) CreateMeeting(ctx context.Context, nm types.NewMeeting) (types.Meeting, error) {
	nm, err := validateNew(nm)
	if err != nil {
		return types.Meeting{}, err
	}
	now := time.Now().UTC()
	m := types.Meeting{
		ID:        uuid.NewString(),
		OwnerID:   nm.OwnerID,
		Title:     nm.Title,
		Category:  nm.Category,
		Status:    types.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO meetings (id, owner_id, title, category, status, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.OwnerID, m.Title, m.Category, string(m.Status), m.CreatedAt, m.UpdatedAt,
	); err != nil {
		return types.Meeting{}, err
	}
	return m, nil
}

// UpdateMeetingStatus locks the row, validates the transition with the same
// rules as the memory store and rewrites the mutable columns.
func (p *PostgresStore) UpdateMeetingStatus(ctx context.Context, id string, status types.MeetingStatus, upd *types.MeetingUpdate) (types.Meeting, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Meeting{}, err
	}
	defer func() { _ = tx.Rollback() }()

	m, err := scanMeeting(tx.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Meeting{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.Meeting{}, err
	}
	if err := applyStatus(&m, status, upd, time.Now().UTC()); err != nil {
		return types.Meeting{}, err
	}

	nlp, err := jsonValue(m.NLPFeatures, m.NLPFeatures == nil)
	if err != nil {
		return types.Meeting{}, err
	}
	summary, err := jsonValue(m.Summary, m.Summary == nil)
	if err != nil {
		return types.Meeting{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE meetings SET status=$2, audio_path=$3, audio_size_bytes=$4, audio_duration_seconds=$5,
		 transcript_text=$6, transcript_confidence=$7, transcript_language=$8, nlp_features=$9, summary=$10,
		 error_message=$11, retention_deadline=$12, updated_at=$13 WHERE id=$1`,
		m.ID, string(m.Status), m.AudioPath, m.AudioSizeBytes, m.AudioDurationSeconds,
		m.TranscriptText, m.TranscriptConfidence, m.TranscriptLanguage, nlp, summary,
		m.ErrorMessage, m.RetentionDeadline, m.UpdatedAt,
	); err != nil {
		return types.Meeting{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.Meeting{}, err
	}
	return m, nil
}

func (p *PostgresStore) GetMeeting(ctx context.Context, id string) (types.Meeting, error) {
	m, err := scanMeeting(p.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Meeting{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, err
}

func (p *PostgresStore) ListMeetings(ctx context.Context, ownerID string) ([]types.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC`
	return p.queryMeetings(ctx, query, args...)
}

func (p *PostgresStore) ListRetentionDue(ctx context.Context, now time.Time, after RetentionCursor, limit int) ([]types.Meeting, error) {
	// LIMIT NULL returns every row
	var lim any
	if limit > 0 {
		lim = limit
	}
	return p.queryMeetings(ctx,
		`SELECT `+meetingColumns+` FROM meetings
		 WHERE status = 'COMPLETED' AND audio_path IS NOT NULL AND audio_deleted_at IS NULL
		   AND retention_deadline IS NOT NULL AND retention_deadline <= $1
		   AND (retention_deadline, id) > ($2, $3)
		 ORDER BY retention_deadline ASC, id ASC LIMIT $4`, now, after.Deadline, after.ID, lim)
}

func (p *PostgresStore) queryMeetings(ctx context.Context, query string, args ...any) ([]types.Meeting, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.Meeting, 0)
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SetRetentionDeadline(ctx context.Context, id string, deadline *time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE meetings SET retention_deadline=$2, updated_at=$3 WHERE id=$1 AND status='COMPLETED'`,
		id, deadline, time.Now().UTC())
	if err != nil {
		return err
	}
	return p.expectRow(ctx, res, id)
}

func (p *PostgresStore) ClearAudio(ctx context.Context, id string, deletedAt time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE meetings SET audio_path=NULL, audio_deleted_at=$2, updated_at=$3 WHERE id=$1`,
		id, deletedAt, time.Now().UTC())
	if err != nil {
		return err
	}
	return p.expectRow(ctx, res, id)
}

// expectRow distinguishes a missing meeting from a row that exists but did
// not match the update's status guard.
func (p *PostgresStore) expectRow(ctx context.Context, res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM meetings WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: retention applies to completed meetings only", ErrInvalidUpdate)
}

func (p *PostgresStore) RetentionDays(ctx context.Context, ownerID string) (*int, bool, error) {
	var days sql.NullInt64
	err := p.db.QueryRowContext(ctx, `SELECT retention_days FROM owner_settings WHERE owner_id=$1`, ownerID).Scan(&days)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !days.Valid {
		return nil, true, nil
	}
	d := int(days.Int64)
	return &d, true, nil
}

func (p *PostgresStore) SetRetentionDays(ctx context.Context, ownerID string, days *int) error {
	if err := validateDays(days); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO owner_settings (owner_id, retention_days, updated_at) VALUES ($1,$2,$3)
		 ON CONFLICT (owner_id) DO UPDATE SET retention_days = EXCLUDED.retention_days, updated_at = EXCLUDED.updated_at`,
		ownerID, days, time.Now().UTC())
	return err
}
