package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/terralens/audit-cli/internal/db"
	"github.com/terralens/audit-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"insert_detection":      `INSERT INTO detections (id, lat, lng, detected_at, status, confidence, verdict, scene, evidence_hash, evidence, tx_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
	"get_detection":         `SELECT id, lat, lng, detected_at, status, confidence, verdict, scene, evidence, tx_hash, created_at FROM detections WHERE id = $1`,
	"get_detection_by_hash": `SELECT id, lat, lng, detected_at, status, confidence, verdict, scene, evidence, tx_hash, created_at FROM detections WHERE evidence_hash = $1`,
	"mark_anchored":         `UPDATE detections SET tx_hash = $1, status = $2 WHERE id = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS detections (
	id            TEXT PRIMARY KEY,
	lat           DOUBLE PRECISION NOT NULL,
	lng           DOUBLE PRECISION NOT NULL,
	detected_at   TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	verdict       JSONB NOT NULL,
	scene         JSONB NOT NULL,
	evidence_hash TEXT NOT NULL UNIQUE,
	evidence      JSONB NOT NULL,
	tx_hash       TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_detections_status ON detections(status);
CREATE INDEX IF NOT EXISTS idx_detections_detected_at ON detections(detected_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertDetection(ctx context.Context, det *model.Detection) error {
	if det.CreatedAt.IsZero() {
		det.CreatedAt = time.Now().UTC()
	}

	verdictJSON, sceneJSON, evidenceJSON, err := marshalDetection(det)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal detection")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO detections (id, lat, lng, detected_at, status, confidence, verdict, scene, evidence_hash, evidence, tx_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		det.ID, det.Lat, det.Lng, det.DetectedAt.UTC(), string(det.Status), det.Confidence,
		verdictJSON, sceneJSON, det.Evidence.Hash, evidenceJSON, nullable(det.TxHash), det.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert detection %s", det.ID)
}

// InsertDetections bulk-loads a batch through the COPY protocol. Hotspot
// sweeps produce dozens of detections at once; row-at-a-time inserts are
// noticeably slower there.
func (s *PostgresStore) InsertDetections(ctx context.Context, dets []model.Detection) (int64, error) {
	if len(dets) == 0 {
		return 0, nil
	}

	columns := []string{"id", "lat", "lng", "detected_at", "status", "confidence", "verdict", "scene", "evidence_hash", "evidence", "tx_hash", "created_at"}
	rows := make([][]any, 0, len(dets))
	for i := range dets {
		det := &dets[i]
		if det.CreatedAt.IsZero() {
			det.CreatedAt = time.Now().UTC()
		}
		verdictJSON, sceneJSON, evidenceJSON, err := marshalDetection(det)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal detection")
		}
		rows = append(rows, []any{
			det.ID, det.Lat, det.Lng, det.DetectedAt.UTC(), string(det.Status), det.Confidence,
			[]byte(verdictJSON), []byte(sceneJSON), det.Evidence.Hash, []byte(evidenceJSON),
			nullable(det.TxHash), det.CreatedAt,
		})
	}

	return db.CopyFrom(ctx, s.pool, "detections", columns, rows)
}

func (s *PostgresStore) GetDetection(ctx context.Context, id string) (*model.Detection, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, lat, lng, detected_at, status, confidence, verdict, scene, evidence, tx_hash, created_at FROM detections WHERE id = $1`,
		id,
	)
	det, err := scanPostgresDetection(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get detection %s", id)
	}
	return det, nil
}

func (s *PostgresStore) GetDetectionByHash(ctx context.Context, hash string) (*model.Detection, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, lat, lng, detected_at, status, confidence, verdict, scene, evidence, tx_hash, created_at FROM detections WHERE evidence_hash = $1`,
		hash,
	)
	det, err := scanPostgresDetection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get detection by hash %s", hash)
	}
	return det, nil
}

func (s *PostgresStore) ListDetections(ctx context.Context, filter DetectionFilter) ([]model.Detection, error) {
	query := `SELECT id, lat, lng, detected_at, status, confidence, verdict, scene, evidence, tx_hash, created_at FROM detections WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND detected_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY detected_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list detections")
	}
	defer rows.Close()

	var out []model.Detection
	for rows.Next() {
		det, err := scanPostgresDetection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan detection")
		}
		out = append(out, *det)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list detections")
}

func (s *PostgresStore) MarkAnchored(ctx context.Context, id, txHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE detections SET tx_hash = $1, status = $2 WHERE id = $3`,
		txHash, string(model.StatusVerified), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark anchored %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: detection %s not found", id)
	}
	return nil
}

func scanPostgresDetection(row pgx.Row) (*model.Detection, error) {
	var det model.Detection
	var status string
	var verdictJSON, sceneJSON, evidenceJSON []byte
	var txHash *string

	err := row.Scan(&det.ID, &det.Lat, &det.Lng, &det.DetectedAt, &status, &det.Confidence,
		&verdictJSON, &sceneJSON, &evidenceJSON, &txHash, &det.CreatedAt)
	if err != nil {
		return nil, err
	}

	det.Status = model.DetectionStatus(status)
	if txHash != nil {
		det.TxHash = *txHash
	}
	if err := unmarshalDetection(&det, verdictJSON, sceneJSON, evidenceJSON); err != nil {
		return nil, err
	}
	return &det, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
