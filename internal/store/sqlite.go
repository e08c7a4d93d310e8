package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/terralens/audit-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS detections (
	id            TEXT PRIMARY KEY,
	lat           REAL NOT NULL,
	lng           REAL NOT NULL,
	detected_at   DATETIME NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	confidence    REAL NOT NULL DEFAULT 0,
	verdict       TEXT NOT NULL,
	scene         TEXT NOT NULL,
	evidence_hash TEXT NOT NULL UNIQUE,
	evidence      TEXT NOT NULL,
	tx_hash       TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_detections_status ON detections(status);
CREATE INDEX IF NOT EXISTS idx_detections_detected_at ON detections(detected_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertDetection(ctx context.Context, det *model.Detection) error {
	if det.CreatedAt.IsZero() {
		det.CreatedAt = time.Now().UTC()
	}

	verdictJSON, sceneJSON, evidenceJSON, err := marshalDetection(det)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal detection")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO detections (id, lat, lng, detected_at, status, confidence, verdict, scene, evidence_hash, evidence, tx_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		det.ID, det.Lat, det.Lng, det.DetectedAt.UTC(), string(det.Status), det.Confidence,
		verdictJSON, sceneJSON, det.Evidence.Hash, evidenceJSON, det.TxHash, det.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert detection %s", det.ID)
}

func (s *SQLiteStore) InsertDetections(ctx context.Context, dets []model.Detection) (int64, error) {
	if len(dets) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	var n int64
	for i := range dets {
		det := &dets[i]
		if det.CreatedAt.IsZero() {
			det.CreatedAt = time.Now().UTC()
		}
		verdictJSON, sceneJSON, evidenceJSON, err := marshalDetection(det)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal detection")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO detections (id, lat, lng, detected_at, status, confidence, verdict, scene, evidence_hash, evidence, tx_hash, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			det.ID, det.Lat, det.Lng, det.DetectedAt.UTC(), string(det.Status), det.Confidence,
			verdictJSON, sceneJSON, det.Evidence.Hash, evidenceJSON, det.TxHash, det.CreatedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert detection %s", det.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return n, nil
}

const sqliteDetectionColumns = `id, lat, lng, detected_at, status, confidence, verdict, scene, evidence, tx_hash, created_at`

func (s *SQLiteStore) GetDetection(ctx context.Context, id string) (*model.Detection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteDetectionColumns+` FROM detections WHERE id = ?`, id)

	det, err := scanSQLiteDetection(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get detection %s", id)
	}
	return det, nil
}

func (s *SQLiteStore) GetDetectionByHash(ctx context.Context, hash string) (*model.Detection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteDetectionColumns+` FROM detections WHERE evidence_hash = ?`, hash)

	det, err := scanSQLiteDetection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get detection by hash %s", hash)
	}
	return det, nil
}

func (s *SQLiteStore) ListDetections(ctx context.Context, filter DetectionFilter) ([]model.Detection, error) {
	query := `SELECT ` + sqliteDetectionColumns + ` FROM detections WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND detected_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY detected_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list detections")
	}
	defer rows.Close()

	var out []model.Detection
	for rows.Next() {
		det, err := scanSQLiteDetection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan detection")
		}
		out = append(out, *det)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list detections")
}

func (s *SQLiteStore) MarkAnchored(ctx context.Context, id, txHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE detections SET tx_hash = ?, status = ? WHERE id = ?`,
		txHash, string(model.StatusVerified), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark anchored %s", id)
	}
	return checkRowsAffected(res, "detection", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDetection(row rowScanner) (*model.Detection, error) {
	var det model.Detection
	var status string
	var verdictJSON, sceneJSON, evidenceJSON []byte
	var txHash sql.NullString

	err := row.Scan(&det.ID, &det.Lat, &det.Lng, &det.DetectedAt, &status, &det.Confidence,
		&verdictJSON, &sceneJSON, &evidenceJSON, &txHash, &det.CreatedAt)
	if err != nil {
		return nil, err
	}

	det.Status = model.DetectionStatus(status)
	det.TxHash = txHash.String
	if err := unmarshalDetection(&det, verdictJSON, sceneJSON, evidenceJSON); err != nil {
		return nil, err
	}
	return &det, nil
}

func marshalDetection(det *model.Detection) (verdict, scene, evidence string, err error) {
	v, err := json.Marshal(det.Verdict)
	if err != nil {
		return "", "", "", err
	}
	sc, err := json.Marshal(det.Scene)
	if err != nil {
		return "", "", "", err
	}
	ev, err := json.Marshal(det.Evidence)
	if err != nil {
		return "", "", "", err
	}
	return string(v), string(sc), string(ev), nil
}

func unmarshalDetection(det *model.Detection, verdictJSON, sceneJSON, evidenceJSON []byte) error {
	if err := json.Unmarshal(verdictJSON, &det.Verdict); err != nil {
		return fmt.Errorf("verdict: %w", err)
	}
	if err := json.Unmarshal(sceneJSON, &det.Scene); err != nil {
		return fmt.Errorf("scene: %w", err)
	}
	if err := json.Unmarshal(evidenceJSON, &det.Evidence); err != nil {
		return fmt.Errorf("evidence: %w", err)
	}
	return nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", entity, id)
	}
	return nil
}
