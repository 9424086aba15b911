// Package events records and publishes terminal outcomes.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voiceui/internal/domain"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Journal persists outcomes to the outcomes table.
type Journal struct {
	DB     *sql.DB
	Logger zerolog.Logger
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Session string
	Path    domain.Path
	Status  domain.Status
	Limit   int
}

// Record is a journaled outcome with the session it was produced in.
type Record struct {
	Seq     int64  `json:"seq"`
	Session string `json:"session,omitempty"`
	Error   string `json:"error,omitempty"`
	domain.Outcome
}

func (j Journal) Append(ctx context.Context, session string, o domain.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	var errText any
	if o.Err != nil {
		errText = o.Err.Error()
	}
	_, err = j.DB.ExecContext(ctx, `INSERT INTO outcomes(id,session_id,ts,command,path,status,result,error,payload_json) VALUES (?,?,?,?,?,?,?,?,?)`,
		o.ID, nullable(session), o.At.UTC().Format(time.RFC3339Nano), o.Command, string(o.Path), string(o.Status), o.Result, errText, string(data))
	if err != nil {
		return fmt.Errorf("insert outcome %s: %w", o.ID, err)
	}
	return nil
}

// List returns outcomes newest first.
func (j Journal) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Session != "" {
		where = append(where, "session_id=?")
		args = append(args, f.Session)
	}
	if f.Path != "" {
		where = append(where, "path=?")
		args = append(args, string(f.Path))
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(f.Status))
	}
	q := `SELECT seq, session_id, error, payload_json FROM outcomes`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)
	return j.query(ctx, q, args...)
}

// After returns up to limit outcomes journaled after seq, oldest first.
func (j Journal) After(ctx context.Context, seq int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return j.query(ctx, `SELECT seq, session_id, error, payload_json FROM outcomes WHERE seq > ? ORDER BY seq ASC LIMIT ?`, seq, limit)
}

// LatestSeq returns the newest sequence number, 0 when empty.
func (j Journal) LatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := j.DB.QueryRowContext(ctx, `SELECT MAX(seq) FROM outcomes`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

func (j Journal) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := j.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			session, errText sql.NullString
			payload          string
			rec              Record
		)
		if err := rows.Scan(&rec.Seq, &session, &errText, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Outcome); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		rec.Session = session.String
		if errText.Valid {
			rec.Error = errText.String
			rec.Outcome.Err = errors.New(errText.String)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// For returns an observer that journals outcomes under session. Write
// failures are logged and otherwise ignored.
func (j Journal) For(session string) domain.Observer {
	return domain.ObserverFunc(func(o domain.Outcome) {
		if err := j.Append(context.Background(), session, o); err != nil {
			j.Logger.Error().Err(err).Str("session", session).Msg("journal outcome")
		}
	})
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
