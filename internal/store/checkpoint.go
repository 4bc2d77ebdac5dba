package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/soyeahso/botrelay/internal/pipeline"
)

// Checkpoints is a pipeline.CheckpointStore backed by SQLite.
type Checkpoints struct {
	db *DB
}

// NewCheckpoints creates a checkpoint store using the given database.
func NewCheckpoints(db *DB) *Checkpoints {
	return &Checkpoints{db: db}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func (c *Checkpoints) CreateInstance(ctx context.Context, inst *pipeline.Instance) error {
	_, err := c.db.sql.ExecContext(ctx,
		`INSERT INTO pipeline_instances (id, status, input, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		inst.ID, string(inst.Status), string(inst.Input), inst.Error,
		formatTime(inst.CreatedAt), formatTime(inst.UpdatedAt),
	)
	return errors.Wrapf(err, "creating pipeline instance %s", inst.ID)
}

func (c *Checkpoints) GetInstance(ctx context.Context, id string) (*pipeline.Instance, error) {
	row := c.db.sql.QueryRowContext(ctx,
		`SELECT id, status, input, error, created_at, updated_at
		 FROM pipeline_instances WHERE id = ?`, id,
	)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.ErrInstanceNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading pipeline instance %s", id)
	}
	return inst, nil
}

func (c *Checkpoints) UpdateStatus(ctx context.Context, id string, status pipeline.Status, errMsg string) error {
	res, err := c.db.sql.ExecContext(ctx,
		`UPDATE pipeline_instances SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, formatTime(time.Now()), id,
	)
	if err != nil {
		return errors.Wrapf(err, "updating pipeline instance %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pipeline.ErrInstanceNotFound
	}
	return nil
}

func (c *Checkpoints) ListInstances(ctx context.Context, activeOnly bool) ([]*pipeline.Instance, error) {
	query := `SELECT id, status, input, error, created_at, updated_at FROM pipeline_instances`
	var args []any
	if activeOnly {
		query += ` WHERE status NOT IN (?, ?, ?)`
		args = append(args, string(pipeline.StatusComplete), string(pipeline.StatusAborted), string(pipeline.StatusFailed))
	}
	query += ` ORDER BY created_at`

	rows, err := c.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing pipeline instances")
	}
	defer rows.Close()

	var out []*pipeline.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning pipeline instance")
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (c *Checkpoints) SaveStep(ctx context.Context, rec pipeline.StepRecord) error {
	outcome := 0
	if rec.Outcome {
		outcome = 1
	}
	_, err := c.db.sql.ExecContext(ctx,
		`INSERT INTO pipeline_steps (instance_id, name, status, outcome, error, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(instance_id, name) DO UPDATE SET
		   status = excluded.status,
		   outcome = excluded.outcome,
		   error = excluded.error,
		   completed_at = excluded.completed_at`,
		rec.InstanceID, rec.Name, string(rec.Status), outcome, rec.Error, formatTime(rec.CompletedAt),
	)
	return errors.Wrapf(err, "saving step %s/%s", rec.InstanceID, rec.Name)
}

func (c *Checkpoints) Steps(ctx context.Context, instanceID string) ([]pipeline.StepRecord, error) {
	rows, err := c.db.sql.QueryContext(ctx,
		`SELECT instance_id, name, status, outcome, error, completed_at
		 FROM pipeline_steps WHERE instance_id = ? ORDER BY completed_at, name`, instanceID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "loading steps")
	}
	defer rows.Close()

	var out []pipeline.StepRecord
	for rows.Next() {
		var rec pipeline.StepRecord
		var status, completed string
		var outcome int
		if err := rows.Scan(&rec.InstanceID, &rec.Name, &status, &outcome, &rec.Error, &completed); err != nil {
			return nil, errors.Wrap(err, "scanning step")
		}
		rec.Status = pipeline.StepStatus(status)
		rec.Outcome = outcome == 1
		rec.CompletedAt = parseTime(completed)
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(s scanner) (*pipeline.Instance, error) {
	var inst pipeline.Instance
	var status, input, created, updated string
	if err := s.Scan(&inst.ID, &status, &input, &inst.Error, &created, &updated); err != nil {
		return nil, err
	}
	inst.Status = pipeline.Status(status)
	inst.Input = []byte(input)
	inst.CreatedAt = parseTime(created)
	inst.UpdatedAt = parseTime(updated)
	return &inst, nil
}

// Purge deletes finished instances last updated before cutoff, along with
// their steps. It returns the number of instances removed.
func (c *Checkpoints) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.sql.ExecContext(ctx,
		`DELETE FROM pipeline_instances WHERE status IN (?, ?, ?) AND updated_at < ?`,
		string(pipeline.StatusComplete), string(pipeline.StatusAborted), string(pipeline.StatusFailed),
		formatTime(cutoff),
	)
	if err != nil {
		return 0, errors.Wrap(err, "purging pipeline instances")
	}
	return res.RowsAffected()
}
