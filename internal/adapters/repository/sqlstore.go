package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/okian/charsort/internal/domain/model"
	"github.com/okian/charsort/pkg/metrics"
)

// currentSchemaVersion is recorded in SQLite's user_version.
// 1 - lists, characters, comparison_records
const currentSchemaVersion = 1

// dialect captures what differs between the supported SQL backends.
// Queries are written with ? placeholders and rebound for postgres.
type dialect struct {
	name        string
	driver      string
	schema      string
	lockList    string
	isolation   sql.IsolationLevel
	numbered    bool
	afterSchema func(db *sql.DB) error
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite3",
	schema: `
CREATE TABLE IF NOT EXISTS character_lists (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	title     TEXT NOT NULL,
	algorithm TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS characters (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	list_id INTEGER NOT NULL REFERENCES character_lists(id) ON DELETE CASCADE,
	name    TEXT NOT NULL,
	fandom  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS comparison_records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	list_id      INTEGER NOT NULL REFERENCES character_lists(id) ON DELETE CASCADE,
	char_a       INTEGER NOT NULL REFERENCES characters(id),
	char_b       INTEGER NOT NULL REFERENCES characters(id),
	value        INTEGER NOT NULL CHECK (value IN (-1, 0, 1)),
	ts_unix_nano INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_list_ts ON comparison_records(list_id, ts_unix_nano, id);
CREATE INDEX IF NOT EXISTS idx_characters_list ON characters(list_id, id);
`,
	isolation:   sql.LevelDefault,
	afterSchema: migrateSQLite,
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "postgres",
	schema: `
CREATE TABLE IF NOT EXISTS character_lists (
	id        BIGSERIAL PRIMARY KEY,
	title     TEXT NOT NULL,
	algorithm TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS characters (
	id      BIGSERIAL PRIMARY KEY,
	list_id BIGINT NOT NULL REFERENCES character_lists(id) ON DELETE CASCADE,
	name    TEXT NOT NULL,
	fandom  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS comparison_records (
	id           BIGSERIAL PRIMARY KEY,
	list_id      BIGINT NOT NULL REFERENCES character_lists(id) ON DELETE CASCADE,
	char_a       BIGINT NOT NULL REFERENCES characters(id),
	char_b       BIGINT NOT NULL REFERENCES characters(id),
	value        SMALLINT NOT NULL CHECK (value IN (-1, 0, 1)),
	ts_unix_nano BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_list_ts ON comparison_records(list_id, ts_unix_nano, id);
CREATE INDEX IF NOT EXISTS idx_characters_list ON characters(list_id, id);
`,
	lockList:  " FOR UPDATE",
	isolation: sql.LevelRepeatableRead,
	numbered:  true,
}

// rebind rewrites ? placeholders as $1, $2, ... for postgres.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore keeps lists and logs in SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	opts    options
}

// OpenSQLite creates or opens a SQLite database at path, applying pragmas
// and migrations.
func OpenSQLite(path string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return openSQL(db, sqliteDialect, opts)
}

// OpenPostgres connects to the database named by dsn and creates the schema
// if needed.
func OpenPostgres(dsn string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return openSQL(db, postgresDialect, opts)
}

func openSQL(db *sql.DB, d dialect, opts []Option) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", d.name, err)
	}
	if _, err := db.Exec(d.schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply %s schema: %w", d.name, err)
	}
	if d.afterSchema != nil {
		if err := d.afterSchema(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &SQLStore{db: db, dialect: d, opts: newOptions(opts)}, nil
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func migrateSQLite(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency(s.dialect.name, op, sinceMs(start))
}

// CreateList implements Store.
func (s *SQLStore) CreateList(ctx context.Context, title string, alg model.Algorithm) (model.CharacterList, error) {
	l := model.CharacterList{Title: title, Algorithm: alg}
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`INSERT INTO character_lists (title, algorithm) VALUES (?, ?) RETURNING id`),
		title, string(alg)).Scan(&l.ID)
	if err != nil {
		return model.CharacterList{}, fmt.Errorf("create list: %w", err)
	}
	return l, nil
}

func (s *SQLStore) getList(ctx context.Context, q queryer, id model.ListID, lock string) (model.CharacterList, error) {
	l := model.CharacterList{ID: id}
	var alg string
	err := q.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT title, algorithm FROM character_lists WHERE id = ?`+lock), id).
		Scan(&l.Title, &alg)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CharacterList{}, fmt.Errorf("list %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.CharacterList{}, fmt.Errorf("get list %d: %w", id, err)
	}
	l.Algorithm = model.Algorithm(alg)
	return l, nil
}

// GetList implements Store.
func (s *SQLStore) GetList(ctx context.Context, id model.ListID) (model.CharacterList, error) {
	return s.getList(ctx, s.db, id, "")
}

// Lists implements Store.
func (s *SQLStore) Lists(ctx context.Context) ([]model.CharacterList, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, algorithm FROM character_lists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("lists: %w", err)
	}
	defer rows.Close()
	var out []model.CharacterList
	for rows.Next() {
		var l model.CharacterList
		var alg string
		if err := rows.Scan(&l.ID, &l.Title, &alg); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		l.Algorithm = model.Algorithm(alg)
		out = append(out, l)
	}
	return out, rows.Err()
}

// AddCharacter implements Store.
func (s *SQLStore) AddCharacter(ctx context.Context, listID model.ListID, name, fandom string) (model.Character, error) {
	if _, err := s.GetList(ctx, listID); err != nil {
		return model.Character{}, err
	}
	c := model.Character{ListID: listID, Name: name, Fandom: fandom}
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`INSERT INTO characters (list_id, name, fandom) VALUES (?, ?, ?) RETURNING id`),
		listID, name, fandom).Scan(&c.ID)
	if err != nil {
		return model.Character{}, fmt.Errorf("add character: %w", err)
	}
	return c, nil
}

func (s *SQLStore) characters(ctx context.Context, q queryer, listID model.ListID) ([]model.Character, error) {
	rows, err := q.QueryContext(ctx,
		s.dialect.rebind(`SELECT id, name, fandom FROM characters WHERE list_id = ? ORDER BY id`), listID)
	if err != nil {
		return nil, fmt.Errorf("characters of list %d: %w", listID, err)
	}
	defer rows.Close()
	var out []model.Character
	for rows.Next() {
		c := model.Character{ListID: listID}
		if err := rows.Scan(&c.ID, &c.Name, &c.Fandom); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Characters implements Store.
func (s *SQLStore) Characters(ctx context.Context, listID model.ListID) ([]model.Character, error) {
	if _, err := s.GetList(ctx, listID); err != nil {
		return nil, err
	}
	return s.characters(ctx, s.db, listID)
}

func (s *SQLStore) records(ctx context.Context, q queryer, listID model.ListID) ([]model.ComparisonRecord, error) {
	rows, err := q.QueryContext(ctx, s.dialect.rebind(`
		SELECT id, char_a, char_b, value, ts_unix_nano FROM comparison_records
		WHERE list_id = ? ORDER BY ts_unix_nano, id`), listID)
	if err != nil {
		return nil, fmt.Errorf("records of list %d: %w", listID, err)
	}
	defer rows.Close()
	var out []model.ComparisonRecord
	for rows.Next() {
		r := model.ComparisonRecord{ListID: listID}
		var ts int64
		if err := rows.Scan(&r.ID, &r.CharA, &r.CharB, &r.Value, &ts); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordsFor implements Store.
func (s *SQLStore) RecordsFor(ctx context.Context, listID model.ListID) ([]model.ComparisonRecord, error) {
	if _, err := s.GetList(ctx, listID); err != nil {
		return nil, err
	}
	return s.records(ctx, s.db, listID)
}

// LastMatchPerPair implements Store.
func (s *SQLStore) LastMatchPerPair(ctx context.Context, listID model.ListID) (model.PairIndex, error) {
	records, err := s.RecordsFor(ctx, listID)
	if err != nil {
		return nil, err
	}
	return model.NewPairIndex(records), nil
}

// Snapshot implements Store. All three reads share one read-only transaction.
func (s *SQLStore) Snapshot(ctx context.Context, listID model.ListID) (model.Snapshot, error) {
	defer s.observe("snapshot", time.Now())

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: s.dialect.isolation})
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	l, err := s.getList(ctx, tx, listID, "")
	if err != nil {
		return model.Snapshot{}, err
	}
	chars, err := s.characters(ctx, tx, listID)
	if err != nil {
		return model.Snapshot{}, err
	}
	records, err := s.records(ctx, tx, listID)
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.Snapshot{List: l, Characters: chars, Records: records}, nil
}

// Append implements Store. The list row is locked for the duration so the
// timestamp check and the insert are not interleaved with another writer.
func (s *SQLStore) Append(ctx context.Context, listID model.ListID, a, b model.CharacterID, value int) (model.ComparisonRecord, error) {
	defer s.observe("append", time.Now())

	if err := checkVerdict(a, b, value); err != nil {
		return model.ComparisonRecord{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ComparisonRecord{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.getList(ctx, tx, listID, s.dialect.lockList); err != nil {
		return model.ComparisonRecord{}, err
	}
	var members int
	if err := tx.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT COUNT(*) FROM characters WHERE list_id = ? AND id IN (?, ?)`),
		listID, a, b).Scan(&members); err != nil {
		return model.ComparisonRecord{}, fmt.Errorf("check members: %w", err)
	}
	if members != 2 {
		return model.ComparisonRecord{}, fmt.Errorf("characters (%d, %d), list %d: %w", a, b, listID, ErrForeignCharacter)
	}
	var last int64
	if err := tx.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT COALESCE(MAX(ts_unix_nano), 0) FROM comparison_records WHERE list_id = ?`),
		listID).Scan(&last); err != nil {
		return model.ComparisonRecord{}, fmt.Errorf("last timestamp: %w", err)
	}
	ts := stamp(time.Unix(0, last), s.opts.clock()).UTC()

	r := model.ComparisonRecord{ListID: listID, CharA: a, CharB: b, Value: value, Timestamp: ts}
	if err := tx.QueryRowContext(ctx, s.dialect.rebind(`
		INSERT INTO comparison_records (list_id, char_a, char_b, value, ts_unix_nano)
		VALUES (?, ?, ?, ?, ?) RETURNING id`),
		listID, a, b, value, ts.UnixNano()).Scan(&r.ID); err != nil {
		return model.ComparisonRecord{}, fmt.Errorf("insert record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.ComparisonRecord{}, fmt.Errorf("commit append: %w", err)
	}
	return r, nil
}

// DeleteMostRecent implements Store.
func (s *SQLStore) DeleteMostRecent(ctx context.Context, listID model.ListID) (model.ComparisonRecord, error) {
	defer s.observe("delete", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ComparisonRecord{}, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.getList(ctx, tx, listID, s.dialect.lockList); err != nil {
		return model.ComparisonRecord{}, err
	}
	r := model.ComparisonRecord{ListID: listID}
	var ts int64
	err = tx.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT id, char_a, char_b, value, ts_unix_nano FROM comparison_records
		WHERE list_id = ? ORDER BY ts_unix_nano DESC, id DESC LIMIT 1`), listID).
		Scan(&r.ID, &r.CharA, &r.CharB, &r.Value, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ComparisonRecord{}, fmt.Errorf("list %d: %w", listID, ErrEmptyLog)
	}
	if err != nil {
		return model.ComparisonRecord{}, fmt.Errorf("newest record: %w", err)
	}
	r.Timestamp = time.Unix(0, ts).UTC()
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM comparison_records WHERE id = ?`), r.ID); err != nil {
		return model.ComparisonRecord{}, fmt.Errorf("delete record %d: %w", r.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return model.ComparisonRecord{}, fmt.Errorf("commit delete: %w", err)
	}
	return r, nil
}

// Stats implements Store.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM character_lists),
			(SELECT COUNT(*) FROM characters),
			(SELECT COUNT(*) FROM comparison_records)`).
		Scan(&st.Lists, &st.Characters, &st.Records)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
