package migrate

import (
	"testing"

	"voiceui/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if v, err := Version(conn); err != nil || v != 0 {
		t.Fatalf("expected version 0 before migrating, got %d, %v", v, err)
	}
	latest, err := Latest()
	if err != nil || latest < 1 {
		t.Fatalf("latest: %d, %v", latest, err)
	}
	for i := 0; i < 2; i++ {
		if err := Migrate(conn); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}
	v, err := Version(conn)
	if err != nil || v != latest {
		t.Fatalf("expected version %d, got %d, %v", latest, v, err)
	}
	if _, err := conn.Exec(`INSERT INTO outcomes(id, session_id, ts, command, path, status, result, error, payload_json) VALUES ('a', '', '2024-01-01T00:00:00Z', 'x', 'static', 'success', 'ok', '', '{}')`); err != nil {
		t.Fatalf("outcomes table missing: %v", err)
	}
}
