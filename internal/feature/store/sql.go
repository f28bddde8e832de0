// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/persistence/postgres"
	"github.com/ManuGH/fem/internal/persistence/sqlite"
)

// Dialect selects the SQL flavour of an SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// maxInParams bounds the size of generated IN (...) lists.
const maxInParams = 500

const requestColumns = `id, kind, request_id, request_owner, request_date_ns, registration_ns, last_update_ns,
	state, step, priority, errors_json, last_error_step, group_ids_json, payload_json`

const entityColumns = `urn, provider_id, version, previous_version_urn, model, session, session_owner,
	feature_json, creation_ns, last_update_ns, disseminations_json`

// SQLStore implements Store on database/sql.
type SQLStore struct {
	DB      *sql.DB
	dialect Dialect
	opts    options
}

// OpenSQLite opens (and migrates) a SQLite-backed store at path.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	issues, err := sqlite.VerifyIntegrity(ctx, db, "quick")
	if err == nil && len(issues) > 0 {
		err = fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(issues, "; "))
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite store %s: %w", path, err)
	}
	s, err := NewSQLStore(ctx, db, DialectSQLite, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres opens (and migrates) a PostgreSQL-backed store.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*SQLStore, error) {
	db, err := postgres.Open(ctx, dsn, postgres.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s, err := NewSQLStore(ctx, db, DialectPostgres, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and applies the schema.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*SQLStore, error) {
	s := &SQLStore{DB: db, dialect: dialect, opts: buildOptions(opts)}
	var err error
	switch dialect {
	case DialectSQLite:
		err = sqlite.Migrate(ctx, db, sqliteMigrations)
	case DialectPostgres:
		err = postgres.Migrate(ctx, db, postgresMigrations)
	default:
		return nil, fmt.Errorf("unknown sql dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("feature store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.DB.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// rebind rewrites ? placeholders into $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *SQLStore) isUnique(err error) bool {
	if s.dialect == DialectPostgres {
		return postgres.IsUniqueViolation(err)
	}
	return sqlite.IsUniqueViolation(err)
}

func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?,", n), ",") + ")"
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func toNS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNS(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc rowScanner) (*model.Request, error) {
	var (
		r                         model.Request
		kind, state, step, lastEr string
		reqNS, regNS, updNS       int64
		prio                      int
		errsJSON, groupsJSON      string
		payloadJSON               string
	)
	if err := sc.Scan(&r.ID, &kind, &r.RequestID, &r.RequestOwner, &reqNS, &regNS, &updNS,
		&state, &step, &prio, &errsJSON, &lastEr, &groupsJSON, &payloadJSON); err != nil {
		return nil, err
	}
	r.RequestDate = fromNS(reqNS)
	r.RegistrationDate = fromNS(regNS)
	r.LastUpdate = fromNS(updNS)
	r.State = model.State(state)
	r.Step = model.Step(step)
	r.LastErrorStep = model.Step(lastEr)
	r.Priority = model.Priority(prio)
	if err := json.Unmarshal([]byte(errsJSON), &r.Errors); err != nil {
		return nil, fmt.Errorf("decode errors of request %d: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(groupsJSON), &r.GroupIDs); err != nil {
		return nil, fmt.Errorf("decode group ids of request %d: %w", r.ID, err)
	}
	if len(r.Errors) == 0 {
		r.Errors = nil
	}
	if len(r.GroupIDs) == 0 {
		r.GroupIDs = nil
	}
	p, err := model.DecodePayload(model.Kind(kind), []byte(payloadJSON))
	if err != nil {
		return nil, err
	}
	r.Payload = p
	return &r, nil
}

func (s *SQLStore) queryRequests(ctx context.Context, query string, args ...any) ([]*model.Request, error) {
	rows, err := s.DB.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type encodedRequest struct {
	errors  string
	groups  string
	payload string
}

func encodeRequest(r *model.Request) (encodedRequest, error) {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	groups := r.GroupIDs
	if groups == nil {
		groups = []string{}
	}
	eb, err := json.Marshal(errs)
	if err != nil {
		return encodedRequest{}, err
	}
	gb, err := json.Marshal(groups)
	if err != nil {
		return encodedRequest{}, err
	}
	pb, err := model.EncodePayload(r.Payload)
	if err != nil {
		return encodedRequest{}, fmt.Errorf("encode payload of %s: %w", r.RequestID, err)
	}
	return encodedRequest{errors: string(eb), groups: string(gb), payload: string(pb)}, nil
}

func (s *SQLStore) replaceGroups(ctx context.Context, tx *sql.Tx, id int64, groups []string) error {
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM request_groups WHERE request_pk = ?`), id); err != nil {
		return err
	}
	for _, g := range groups {
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO request_groups (group_id, request_pk) VALUES (?, ?)
			ON CONFLICT (group_id, request_pk) DO NOTHING`), g, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) InsertRequests(ctx context.Context, reqs []*model.Request) error {
	if len(reqs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.opts.now()
	ids := make([]int64, len(reqs))
	regs := make([]time.Time, len(reqs))
	for i, r := range reqs {
		enc, err := encodeRequest(r)
		if err != nil {
			return err
		}
		regs[i] = r.RegistrationDate
		if regs[i].IsZero() {
			regs[i] = now
		}
		err = tx.QueryRowContext(ctx, s.rebind(`INSERT INTO feature_requests (
			kind, request_id, request_owner, request_date_ns, registration_ns, last_update_ns,
			state, step, priority, provider_id, urn, errors_json, last_error_step, group_ids_json, payload_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			string(r.Kind()), r.RequestID, r.RequestOwner, toNS(r.RequestDate), toNS(regs[i]), toNS(now),
			string(r.State), string(r.Step), int(r.Priority), r.ProviderID(), r.URN(),
			enc.errors, string(r.LastErrorStep), enc.groups, enc.payload,
		).Scan(&ids[i])
		if err != nil {
			if s.isUnique(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateRequestID, r.RequestID)
			}
			return fmt.Errorf("insert request %s: %w", r.RequestID, err)
		}
		if err := s.replaceGroups(ctx, tx, ids[i], r.GroupIDs); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for i, r := range reqs {
		r.ID = ids[i]
		r.RegistrationDate = regs[i]
		r.LastUpdate = now
	}
	return nil
}

func (s *SQLStore) ExistingRequestIDs(ctx context.Context, kind model.Kind, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, part := range chunk(ids, maxInParams) {
		args := make([]any, 0, len(part)+1)
		args = append(args, string(kind))
		for _, id := range part {
			args = append(args, id)
		}
		rows, err := s.DB.QueryContext(ctx, s.rebind(
			`SELECT request_id FROM feature_requests WHERE kind = ? AND request_id IN `+placeholders(len(part))), args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			out[id] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) GetRequests(ctx context.Context, ids []int64) ([]*model.Request, error) {
	var out []*model.Request
	for _, part := range chunk(ids, maxInParams) {
		args := make([]any, len(part))
		for i, id := range part {
			args[i] = id
		}
		got, err := s.queryRequests(ctx, `SELECT `+requestColumns+` FROM feature_requests WHERE id IN `+placeholders(len(part)), args...)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	sortRequests(out)
	return out, nil
}

func (s *SQLStore) FindRequests(ctx context.Context, q RequestQuery) ([]*model.Request, error) {
	var (
		where []string
		args  []any
	)
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if len(q.Steps) > 0 {
		where = append(where, "step IN "+placeholders(len(q.Steps)))
		for _, st := range q.Steps {
			args = append(args, string(st))
		}
	}
	if len(q.States) > 0 {
		where = append(where, "state IN "+placeholders(len(q.States)))
		for _, st := range q.States {
			args = append(args, string(st))
		}
	}
	if !q.RegisteredBefore.IsZero() {
		where = append(where, "registration_ns < ?")
		args = append(args, toNS(q.RegisteredBefore))
	}
	if !q.UpdatedBefore.IsZero() {
		where = append(where, "last_update_ns < ?")
		args = append(args, toNS(q.UpdatedBefore))
	}

	query := `SELECT ` + requestColumns + ` FROM feature_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY priority ASC, registration_ns ASC, id ASC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	return s.queryRequests(ctx, query, args...)
}

func (s *SQLStore) FindByURNs(ctx context.Context, kind model.Kind, urns []string, steps []model.Step) ([]*model.Request, error) {
	var out []*model.Request
	for _, part := range chunk(urns, maxInParams) {
		args := []any{string(kind)}
		for _, u := range part {
			args = append(args, u)
		}
		query := `SELECT ` + requestColumns + ` FROM feature_requests WHERE kind = ? AND urn IN ` + placeholders(len(part))
		if len(steps) > 0 {
			query += ` AND step IN ` + placeholders(len(steps))
			for _, st := range steps {
				args = append(args, string(st))
			}
		}
		got, err := s.queryRequests(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	sortRequests(out)
	return out, nil
}

func (s *SQLStore) FindByGroupIDs(ctx context.Context, groupIDs []string) ([]*model.Request, error) {
	var out []*model.Request
	seen := make(map[int64]struct{})
	for _, part := range chunk(groupIDs, maxInParams) {
		args := make([]any, len(part))
		for i, g := range part {
			args[i] = g
		}
		got, err := s.queryRequests(ctx, `SELECT `+requestColumns+` FROM feature_requests
			WHERE id IN (SELECT request_pk FROM request_groups WHERE group_id IN `+placeholders(len(part))+`)`, args...)
		if err != nil {
			return nil, err
		}
		for _, r := range got {
			if _, dup := seen[r.ID]; !dup {
				seen[r.ID] = struct{}{}
				out = append(out, r)
			}
		}
	}
	sortRequests(out)
	return out, nil
}

func (s *SQLStore) ClaimRequests(ctx context.Context, ids []int64, from, to model.Step) ([]int64, error) {
	now := toNS(s.opts.now())
	var claimed []int64
	for _, part := range chunk(ids, maxInParams) {
		args := []any{string(to), now, string(from)}
		for _, id := range part {
			args = append(args, id)
		}
		rows, err := s.DB.QueryContext(ctx, s.rebind(`UPDATE feature_requests SET step = ?, last_update_ns = ?
			WHERE step = ? AND id IN `+placeholders(len(part))+` RETURNING id`), args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			claimed = append(claimed, id)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return claimed, nil
}

func (s *SQLStore) SaveRequests(ctx context.Context, reqs []*model.Request) error {
	if len(reqs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.opts.now()
	for _, r := range reqs {
		enc, err := encodeRequest(r)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE feature_requests SET
			request_owner = ?, request_date_ns = ?, last_update_ns = ?, state = ?, step = ?, priority = ?,
			provider_id = ?, urn = ?, errors_json = ?, last_error_step = ?, group_ids_json = ?, payload_json = ?
			WHERE id = ?`),
			r.RequestOwner, toNS(r.RequestDate), toNS(now), string(r.State), string(r.Step), int(r.Priority),
			r.ProviderID(), r.URN(), enc.errors, string(r.LastErrorStep), enc.groups, enc.payload, r.ID)
		if err != nil {
			return fmt.Errorf("save request %d: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("save request %d: %w", r.ID, ErrNotFound)
		}
		if err := s.replaceGroups(ctx, tx, r.ID, r.GroupIDs); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, r := range reqs {
		r.LastUpdate = now
	}
	return nil
}

func (s *SQLStore) DeleteRequests(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, part := range chunk(ids, maxInParams) {
		args := make([]any, len(part))
		for i, id := range part {
			args[i] = id
		}
		in := placeholders(len(part))
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM request_groups WHERE request_pk IN `+in), args...); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM feature_requests WHERE id IN `+in), args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) CommitRequests(ctx context.Context, save []*model.Request, remove []int64, guard Guard) ([]int64, error) {
	if len(save) == 0 && len(remove) == 0 {
		return nil, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// ids missing from guard are written unconditionally
	cond := func(id int64) (string, []any) {
		if step, ok := guard[id]; ok {
			return ` AND step = ?`, []any{string(step)}
		}
		return "", nil
	}

	now := s.opts.now()
	var done []int64
	var written []*model.Request
	for _, r := range save {
		enc, err := encodeRequest(r)
		if err != nil {
			return nil, err
		}
		extra, extraArgs := cond(r.ID)
		args := append([]any{
			r.RequestOwner, toNS(r.RequestDate), toNS(now), string(r.State), string(r.Step), int(r.Priority),
			r.ProviderID(), r.URN(), enc.errors, string(r.LastErrorStep), enc.groups, enc.payload, r.ID,
		}, extraArgs...)
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE feature_requests SET
			request_owner = ?, request_date_ns = ?, last_update_ns = ?, state = ?, step = ?, priority = ?,
			provider_id = ?, urn = ?, errors_json = ?, last_error_step = ?, group_ids_json = ?, payload_json = ?
			WHERE id = ?`+extra), args...)
		if err != nil {
			return nil, fmt.Errorf("commit request %d: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		if err := s.replaceGroups(ctx, tx, r.ID, r.GroupIDs); err != nil {
			return nil, err
		}
		done = append(done, r.ID)
		written = append(written, r)
	}
	for _, id := range remove {
		extra, extraArgs := cond(id)
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM feature_requests WHERE id = ?`+extra),
			append([]any{id}, extraArgs...)...)
		if err != nil {
			return nil, fmt.Errorf("commit delete %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM request_groups WHERE request_pk = ?`), id); err != nil {
			return nil, err
		}
		done = append(done, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for _, r := range written {
		r.LastUpdate = now
	}
	return done, nil
}

func (s *SQLStore) MaxVersion(ctx context.Context, providerID string) (int, error) {
	var v int
	err := s.DB.QueryRowContext(ctx, s.rebind(`SELECT COALESCE(MAX(version), 0) FROM features WHERE provider_id = ?`), providerID).Scan(&v)
	return v, err
}

func (s *SQLStore) InsertEntities(ctx context.Context, entities []*model.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entities {
		fb, err := json.Marshal(e.Feature)
		if err != nil {
			return fmt.Errorf("encode feature %s: %w", e.URN, err)
		}
		ds, err := encodeDisseminations(e.Disseminations)
		if err != nil {
			return fmt.Errorf("encode disseminations %s: %w", e.URN, err)
		}
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO features (`+entityColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			e.URN, e.ProviderID, e.Version, e.PreviousVersionURN, e.Model, e.Session, e.SessionOwner,
			string(fb), toNS(e.CreationDate), toNS(e.LastUpdate), ds)
		if err != nil {
			if s.isUnique(err) {
				return fmt.Errorf("%w: %s v%d", ErrVersionConflict, e.ProviderID, e.Version)
			}
			return fmt.Errorf("insert feature %s: %w", e.URN, err)
		}
	}
	return tx.Commit()
}

func scanEntity(sc rowScanner) (*model.Entity, error) {
	var (
		e            model.Entity
		fb, ds       string
		creNS, updNS int64
	)
	if err := sc.Scan(&e.URN, &e.ProviderID, &e.Version, &e.PreviousVersionURN, &e.Model, &e.Session,
		&e.SessionOwner, &fb, &creNS, &updNS, &ds); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fb), &e.Feature); err != nil {
		return nil, fmt.Errorf("decode feature %s: %w", e.URN, err)
	}
	if ds != "[]" {
		if err := json.Unmarshal([]byte(ds), &e.Disseminations); err != nil {
			return nil, fmt.Errorf("decode disseminations %s: %w", e.URN, err)
		}
	}
	e.CreationDate = fromNS(creNS)
	e.LastUpdate = fromNS(updNS)
	return &e, nil
}

func (s *SQLStore) GetEntities(ctx context.Context, urns []string) (map[string]*model.Entity, error) {
	out := make(map[string]*model.Entity, len(urns))
	for _, part := range chunk(urns, maxInParams) {
		args := make([]any, len(part))
		for i, u := range part {
			args[i] = u
		}
		rows, err := s.DB.QueryContext(ctx, s.rebind(`SELECT `+entityColumns+` FROM features WHERE urn IN `+placeholders(len(part))), args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			e, err := scanEntity(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[e.URN] = e
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) SaveEntities(ctx context.Context, entities []*model.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entities {
		fb, err := json.Marshal(e.Feature)
		if err != nil {
			return fmt.Errorf("encode feature %s: %w", e.URN, err)
		}
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE features SET
			previous_version_urn = ?, model = ?, session = ?, session_owner = ?, feature_json = ?, last_update_ns = ?
			WHERE urn = ?`),
			e.PreviousVersionURN, e.Model, e.Session, e.SessionOwner, string(fb), toNS(e.LastUpdate), e.URN)
		if err != nil {
			return fmt.Errorf("save feature %s: %w", e.URN, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("save feature %s: %w", e.URN, ErrNotFound)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) SwapDisseminations(ctx context.Context, urn string, old, next []model.Dissemination) (bool, error) {
	want, err := encodeDisseminations(old)
	if err != nil {
		return false, err
	}
	ds, err := encodeDisseminations(next)
	if err != nil {
		return false, fmt.Errorf("encode disseminations %s: %w", urn, err)
	}
	res, err := s.DB.ExecContext(ctx, s.rebind(`UPDATE features SET disseminations_json = ?
		WHERE urn = ? AND disseminations_json = ?`), ds, urn, want)
	if err != nil {
		return false, fmt.Errorf("swap disseminations %s: %w", urn, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLStore) DeleteEntities(ctx context.Context, urns []string) error {
	for _, part := range chunk(urns, maxInParams) {
		args := make([]any, len(part))
		for i, u := range part {
			args[i] = u
		}
		if _, err := s.DB.ExecContext(ctx, s.rebind(`DELETE FROM features WHERE urn IN `+placeholders(len(part))), args...); err != nil {
			return err
		}
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
var _ Store = (*MemoryStore)(nil)
