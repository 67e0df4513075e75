package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the single-file durable journal. All writes use
// transactions; SQLite's WAL mode lets readers proceed alongside the one
// writer, satisfying the "store must support multiple readers and a
// writer" requirement without an external database process.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writers beyond what SQLite itself guarantees
}

const schemaVersion = 1

// Open opens (creating if absent) the SQLite file at path, applies pragmas,
// and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping store: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS requests (
		id              TEXT PRIMARY KEY,
		kind            TEXT NOT NULL,
		fingerprint     TEXT NOT NULL DEFAULT '',
		received_at     TEXT NOT NULL,
		body            BLOB NOT NULL,
		headers         TEXT NOT NULL DEFAULT '{}',
		method          TEXT NOT NULL,
		path            TEXT NOT NULL,
		target          TEXT NOT NULL,
		state           TEXT NOT NULL,
		attempts        INTEGER NOT NULL DEFAULT 0,
		last_attempt_at TEXT,
		last_error      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS requests_state_target ON requests(target, state, received_at)`,
	`CREATE INDEX IF NOT EXISTS requests_fingerprint ON requests(fingerprint)`,
	`CREATE TABLE IF NOT EXISTS responses (
		id           TEXT PRIMARY KEY,
		request_id   TEXT NOT NULL REFERENCES requests(id),
		received_at  TEXT NOT NULL,
		status       INTEGER NOT NULL,
		body         BLOB NOT NULL,
		headers      TEXT NOT NULL DEFAULT '{}',
		is_cacheable INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS responses_request_id ON responses(request_id)`,
	`CREATE TABLE IF NOT EXISTS cache_entries (
		fingerprint TEXT PRIMARY KEY,
		response_id TEXT NOT NULL REFERENCES responses(id),
		updated_at  TEXT NOT NULL
	)`,
}

func (s *Store) migrate() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_meta`).Scan(&count); err != nil {
		return fmt.Errorf("read schema_meta: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec(`INSERT INTO schema_meta(version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("seed schema_meta: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeHeaders(h map[string]string) (string, error) {
	if h == nil {
		h = map[string]string{}
	}
	b, err := json.Marshal(h)
	return string(b), err
}

func decodeHeaders(s string) map[string]string {
	h := map[string]string{}
	if s == "" {
		return h
	}
	_ = json.Unmarshal([]byte(s), &h)
	return h
}

// SaveRequest journals req. Called before the client response is sent
// (except in passthrough mode), so a crash afterward still leaves the
// request recoverable as PENDING.
func (s *Store) SaveRequest(ctx context.Context, req *StoredRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	headers, err := encodeHeaders(req.Headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO requests (id, kind, fingerprint, received_at, body, headers, method, path, target, state, attempts, last_attempt_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, string(req.Kind), req.Fingerprint, req.ReceivedAt.UTC().Format(time.RFC3339Nano),
		req.Body, headers, req.Method, req.Path, string(req.Target), string(req.State),
		req.Attempts, nullableTime(req.LastAttemptAt), req.LastError,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// GetRequest fetches one StoredRequest by id.
func (s *Store) GetRequest(ctx context.Context, id string) (*StoredRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, fingerprint, received_at, body, headers, method, path, target, state, attempts, last_attempt_at, last_error
		FROM requests WHERE id = ?`, id)
	return scanRequest(row)
}

func scanRequest(row *sql.Row) (*StoredRequest, error) {
	var (
		r               StoredRequest
		kind, target, st string
		receivedAt      string
		headers         string
		lastAttemptAt   sql.NullString
	)
	if err := row.Scan(&r.ID, &kind, &r.Fingerprint, &receivedAt, &r.Body, &headers,
		&r.Method, &r.Path, &target, &st, &r.Attempts, &lastAttemptAt, &r.LastError); err != nil {
		return nil, err
	}
	r.Kind = Kind(kind)
	r.Target = Target(target)
	r.State = State(st)
	r.Headers = decodeHeaders(headers)
	r.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
	if lastAttemptAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastAttemptAt.String)
		r.LastAttemptAt = &t
	}
	return &r, nil
}

// UpdateRequestState transitions req's state and retry bookkeeping.
func (s *Store) UpdateRequestState(ctx context.Context, id string, state State, attempts int, lastAttemptAt *time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET state = ?, attempts = ?, last_attempt_at = ?, last_error = ? WHERE id = ?`,
		string(state), attempts, nullableTime(lastAttemptAt), lastError, id,
	)
	return err
}

// ListPending returns PENDING requests addressed to target in FIFO order of
// received timestamp, forming the Forwarder's work set.
func (s *Store) ListPending(ctx context.Context, target Target) ([]*StoredRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, fingerprint, received_at, body, headers, method, path, target, state, attempts, last_attempt_at, last_error
		FROM requests WHERE target = ? AND state = ? ORDER BY received_at ASC`,
		string(target), string(StatePending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StoredRequest
	for rows.Next() {
		var (
			r                StoredRequest
			kind, tgt, st    string
			receivedAt       string
			headers          string
			lastAttemptAt    sql.NullString
		)
		if err := rows.Scan(&r.ID, &kind, &r.Fingerprint, &receivedAt, &r.Body, &headers,
			&r.Method, &r.Path, &tgt, &st, &r.Attempts, &lastAttemptAt, &r.LastError); err != nil {
			return nil, err
		}
		r.Kind = Kind(kind)
		r.Target = Target(tgt)
		r.State = State(st)
		r.Headers = decodeHeaders(headers)
		r.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
		if lastAttemptAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, lastAttemptAt.String)
			r.LastAttemptAt = &t
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// CountPending returns the number of PENDING requests per target, for the
// status endpoint.
func (s *Store) CountPending(ctx context.Context, target Target) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE target = ? AND state = ?`,
		string(target), string(StatePending)).Scan(&n)
	return n, err
}

// LastForwardedAt returns the most recent last_attempt_at among FORWARDED
// requests for target (the time of the latest forward), if any.
func (s *Store) LastForwardedAt(ctx context.Context, target Target) (time.Time, bool, error) {
	var lastAttemptAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(last_attempt_at) FROM requests WHERE target = ? AND state = ?`,
		string(target), string(StateForwarded)).Scan(&lastAttemptAt)
	if err != nil {
		return time.Time{}, false, err
	}
	if !lastAttemptAt.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, lastAttemptAt.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// SaveResponse journals a response as a single write of its own; it does
// not share a transaction with the cache or request-state updates the
// caller performs alongside it.
func (s *Store) SaveResponse(ctx context.Context, resp *StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	headers, err := encodeHeaders(resp.Headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO responses (id, request_id, received_at, status, body, headers, is_cacheable)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		resp.ID, resp.RequestID, resp.ReceivedAt.UTC().Format(time.RFC3339Nano),
		resp.Status, resp.Body, headers, boolToInt(resp.IsCacheable),
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetResponseByRequestID fetches the response belonging to requestID, if
// one has been journaled.
func (s *Store) GetResponseByRequestID(ctx context.Context, requestID string) (*StoredResponse, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, received_at, status, body, headers, is_cacheable FROM responses WHERE request_id = ?`, requestID)
	return scanResponse(row)
}

// ListForwarded returns every request currently in the FORWARDED state,
// used to export their responses for a sneaker-net round trip.
func (s *Store) ListForwarded(ctx context.Context) ([]*StoredRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, fingerprint, received_at, body, headers, method, path, target, state, attempts, last_attempt_at, last_error
		FROM requests WHERE state = ? ORDER BY received_at ASC`, string(StateForwarded))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StoredRequest
	for rows.Next() {
		var (
			r             StoredRequest
			kind, tgt, st string
			receivedAt    string
			headers       string
			lastAttemptAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &kind, &r.Fingerprint, &receivedAt, &r.Body, &headers,
			&r.Method, &r.Path, &tgt, &st, &r.Attempts, &lastAttemptAt, &r.LastError); err != nil {
			return nil, err
		}
		r.Kind = Kind(kind)
		r.Target = Target(tgt)
		r.State = State(st)
		r.Headers = decodeHeaders(headers)
		r.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
		if lastAttemptAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, lastAttemptAt.String)
			r.LastAttemptAt = &t
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// GetResponse fetches a StoredResponse by id.
func (s *Store) GetResponse(ctx context.Context, id string) (*StoredResponse, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, received_at, status, body, headers, is_cacheable FROM responses WHERE id = ?`, id)
	return scanResponse(row)
}

func scanResponse(row *sql.Row) (*StoredResponse, error) {
	var (
		r          StoredResponse
		receivedAt string
		headers    string
		cacheable  int
	)
	if err := row.Scan(&r.ID, &r.RequestID, &receivedAt, &r.Status, &r.Body, &headers, &cacheable); err != nil {
		return nil, err
	}
	r.Headers = decodeHeaders(headers)
	r.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
	r.IsCacheable = cacheable != 0
	return &r, nil
}

// CacheLookup returns the most recently stored cacheable response for
// fingerprint, if any.
func (s *Store) CacheLookup(ctx context.Context, fingerprint string) (*StoredResponse, bool, error) {
	var responseID string
	err := s.db.QueryRowContext(ctx, `SELECT response_id FROM cache_entries WHERE fingerprint = ?`, fingerprint).Scan(&responseID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	resp, err := s.GetResponse(ctx, responseID)
	if err != nil {
		return nil, false, err
	}
	return resp, true, nil
}

// CacheStore upserts the cache entry for fingerprint to point at
// responseID, making it the response future lookups return. Writes to a
// single fingerprint's cache entry are serialized by s.mu, so the last
// writer wins by call order.
func (s *Store) CacheStore(ctx context.Context, fingerprint, responseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (fingerprint, response_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET response_id = excluded.response_id, updated_at = excluded.updated_at`,
		fingerprint, responseID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// CacheInvalidate removes the cache entry for fingerprint, called after a
// successful deactivation.
func (s *Store) CacheInvalidate(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE fingerprint = ?`, fingerprint)
	return err
}

// ClearRequests truncates the requests table (and, transitively via FK,
// nothing — responses/cache are cleared separately). Used by the `clear`
// CLI subcommand.
func (s *Store) ClearRequests(ctx context.Context, olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if olderThan <= 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM requests`)
		return err
	}
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE received_at < ?`, cutoff)
	return err
}

// ClearResponses truncates the responses table.
func (s *Store) ClearResponses(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM responses`)
	return err
}

// ClearAll truncates requests, responses, and cache entries.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, table := range []string{"cache_entries", "responses", "requests"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	return nil
}
