package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/resilience"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// PostgresStore keeps itineraries in a Postgres table, one row per
// session. The schema is created on connect.
type PostgresStore struct {
	db     *sql.DB
	logger core.Logger
}

var _ ItineraryStore = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn, retrying the initial ping, and
// ensures the itineraries table exists.
func NewPostgresStore(ctx context.Context, dsn string, logger core.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn not configured: %w", core.ErrMissingConfiguration)
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/storage")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		return db.PingContext(ctx)
	}); err != nil {
		_ = db.Close()
		logger.Error("Failed to connect to postgres", map[string]interface{}{
			"operation": "storage_connect",
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("failed to connect to postgres: %w", core.ErrConnectionFailed)
	}

	store := &PostgresStore{db: db, logger: logger}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("Itinerary store connected", map[string]interface{}{
		"operation": "storage_connect",
		"backend":   "postgres",
	})
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS itineraries (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL UNIQUE,
    destination TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    plan JSONB NOT NULL DEFAULT 'null',
    creative_assets JSONB NOT NULL DEFAULT 'null',
    poster_url TEXT NOT NULL DEFAULT '',
    video_url TEXT NOT NULL DEFAULT '',
    media_status TEXT NOT NULL DEFAULT 'pending',
    media_task_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_itineraries_media_task_id ON itineraries (media_task_id);`)
	return err
}

// Save inserts or replaces the session's itinerary as one record.
func (s *PostgresStore) Save(ctx context.Context, itin *Itinerary) error {
	if itin.SessionID == "" {
		return fmt.Errorf("itinerary session id is required")
	}
	itin.MediaStatus = defaultMediaStatus(itin)

	planJSON, err := json.Marshal(itin.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	assetsJSON, err := json.Marshal(itin.CreativeAssets)
	if err != nil {
		return fmt.Errorf("failed to marshal creative assets: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
INSERT INTO itineraries (
  session_id, destination, summary, plan, creative_assets,
  poster_url, video_url, media_status, media_task_id, created_at, updated_at
) VALUES (
  $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()
)
ON CONFLICT (session_id) DO UPDATE SET
  destination = EXCLUDED.destination,
  summary = EXCLUDED.summary,
  plan = EXCLUDED.plan,
  creative_assets = EXCLUDED.creative_assets,
  poster_url = EXCLUDED.poster_url,
  video_url = EXCLUDED.video_url,
  media_status = EXCLUDED.media_status,
  media_task_id = EXCLUDED.media_task_id,
  updated_at = NOW()
RETURNING id, created_at, updated_at;
`,
		itin.SessionID, itin.Destination, itin.Summary, planJSON, assetsJSON,
		itin.PosterURL, itin.VideoURL, itin.MediaStatus, itin.MediaTaskID,
	).Scan(&itin.ID, &itin.CreatedAt, &itin.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save itinerary for session %s: %w", itin.SessionID, err)
	}

	s.logger.Info("Itinerary saved", map[string]interface{}{
		"operation":    "storage_save",
		"session_id":   itin.SessionID,
		"destination":  itin.Destination,
		"media_status": itin.MediaStatus,
	})
	telemetry.Counter("storage.itineraries.saved",
		"module", telemetry.ModuleStorage,
		"backend", "postgres")
	return nil
}

// GetBySession returns the session's itinerary or core.ErrPlanNotFound.
func (s *PostgresStore) GetBySession(ctx context.Context, sessionID string) (*Itinerary, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, session_id, destination, summary, plan, creative_assets,
       poster_url, video_url, media_status, media_task_id, created_at, updated_at
FROM itineraries WHERE session_id = $1`, sessionID)

	var itin Itinerary
	var planB, assetsB []byte
	err := row.Scan(&itin.ID, &itin.SessionID, &itin.Destination, &itin.Summary, &planB, &assetsB,
		&itin.PosterURL, &itin.VideoURL, &itin.MediaStatus, &itin.MediaTaskID, &itin.CreatedAt, &itin.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no itinerary for session %s: %w", sessionID, core.ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load itinerary for session %s: %w", sessionID, err)
	}

	if len(planB) > 0 && string(planB) != "null" {
		if err := json.Unmarshal(planB, &itin.Plan); err != nil {
			return nil, fmt.Errorf("failed to parse stored plan: %w", err)
		}
	}
	if len(assetsB) > 0 && string(assetsB) != "null" {
		if err := json.Unmarshal(assetsB, &itin.CreativeAssets); err != nil {
			return nil, fmt.Errorf("failed to parse stored creative assets: %w", err)
		}
	}
	return &itin, nil
}

// AttachMediaByTask marks the itinerary carrying taskID completed and
// stores the asset URLs. No matching row is a success: the itinerary
// was never saved, or the attach already ran for a redelivered task
// with the same result.
func (s *PostgresStore) AttachMediaByTask(ctx context.Context, taskID string, media MediaAttachment) error {
	assetsJSON, err := json.Marshal(media.Assets)
	if err != nil {
		return fmt.Errorf("failed to marshal media assets: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
UPDATE itineraries SET
  poster_url = $2,
  video_url = $3,
  media_status = $4,
  creative_assets = $5,
  updated_at = NOW()
WHERE media_task_id = $1`,
		taskID, media.PosterURL, media.VideoURL, MediaCompleted, assetsJSON)
	if err != nil {
		return fmt.Errorf("failed to attach media for task %s: %w", taskID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		s.logger.Debug("No itinerary found for media task", map[string]interface{}{
			"operation": "storage_attach_media",
			"task_id":   taskID,
		})
		return nil
	}

	s.logger.Info("Media attached to itinerary", map[string]interface{}{
		"operation": "storage_attach_media",
		"task_id":   taskID,
		"rows":      rows,
	})
	telemetry.Counter("storage.media.attached",
		"module", telemetry.ModuleStorage,
		"backend", "postgres")
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
