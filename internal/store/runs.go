package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

type Run struct {
	ID         string     `json:"id"`
	Team       string     `json:"team"`
	Seed       int64      `json:"seed"`
	Members    []string   `json:"members"`
	Status     string     `json:"status"`
	Ticks      int64      `json:"ticks"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*Run, error) {
	r := &Run{}
	var members string
	err := scanner.Scan(&r.ID, &r.Team, &r.Seed, &members, &r.Status, &r.Ticks, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(members), &r.Members); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	return r, nil
}

const runColumns = `id, team, seed, members, status, ticks, started_at, finished_at`

func (s *Store) CreateRun(r *Run) error {
	if r.Status == "" {
		r.Status = RunRunning
	}
	members, err := json.Marshal(r.Members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO runs (id, team, seed, members, status)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Team, r.Seed, string(members), r.Status)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun closes a run with its final status and tick count.
func (s *Store) FinishRun(id, status string, ticks int64) error {
	res, err := s.db.Exec(`
		UPDATE runs
		SET status = ?, ticks = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?`, status, ticks, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: not found", id)
	}
	return nil
}

func (s *Store) UpdateRunTicks(id string, ticks int64) error {
	_, err := s.db.Exec(`UPDATE runs SET ticks = ? WHERE id = ?`, ticks, id)
	if err != nil {
		return fmt.Errorf("update run ticks: %w", err)
	}
	return nil
}

func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// LatestRun returns the most recently started run of team, or nil.
func (s *Store) LatestRun(team string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE team = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`, team)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
