package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/charsort/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var storeEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// frozenClock always returns the same instant so timestamp bumping is
// exercised on every append.
func frozenClock() time.Time { return storeEpoch }

type opener func(t *testing.T) Store

func openMemory(t *testing.T) Store {
	return NewMemoryStore(WithClock(frozenClock))
}

func openSQLiteTemp(t *testing.T) Store {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "charsort.db"), WithClock(frozenClock))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return s
}

func TestMemoryStore(t *testing.T) { runStoreContract(t, openMemory) }

func TestSQLiteStore(t *testing.T) { runStoreContract(t, openSQLiteTemp) }

// TestPostgresStore runs against a live database when DATABASE_URL is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	runStoreContract(t, func(t *testing.T) Store {
		s, err := OpenPostgres(dsn, WithClock(frozenClock))
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		return s
	})
}

// seed creates a list with n characters and returns it with their ids.
func seed(ctx context.Context, s Store, n int) (model.CharacterList, []model.CharacterID) {
	l, err := s.CreateList(ctx, "Favourites", model.Glicko)
	So(err, ShouldBeNil)
	ids := make([]model.CharacterID, n)
	for i := range ids {
		c, err := s.AddCharacter(ctx, l.ID, "c"+string(rune('a'+i)), "Fandom")
		So(err, ShouldBeNil)
		ids[i] = c.ID
	}
	return l, ids
}

func runStoreContract(t *testing.T, open opener) {
	Convey("Given a store", t, func() {
		ctx := context.Background()
		s := open(t)
		Reset(func() { _ = s.Close() })

		Convey("When a list is created", func() {
			l, err := s.CreateList(ctx, "Favourites", model.InsertionSort)
			So(err, ShouldBeNil)

			Convey("Then it can be read back and is listed", func() {
				got, err := s.GetList(ctx, l.ID)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, l)
				all, err := s.Lists(ctx)
				So(err, ShouldBeNil)
				So(all, ShouldContain, l)
			})
		})

		Convey("When an unknown list is used", func() {
			const missing = model.ListID(1 << 40)

			Convey("Then every operation reports ErrNotFound", func() {
				_, err := s.GetList(ctx, missing)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = s.Characters(ctx, missing)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = s.Snapshot(ctx, missing)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = s.AddCharacter(ctx, missing, "x", "")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = s.DeleteMostRecent(ctx, missing)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When characters are added", func() {
			l, ids := seed(ctx, s, 3)

			Convey("Then they are returned in id order with their fandom", func() {
				chars, err := s.Characters(ctx, l.ID)
				So(err, ShouldBeNil)
				So(len(chars), ShouldEqual, 3)
				for i, c := range chars {
					So(c.ID, ShouldEqual, ids[i])
					So(c.ListID, ShouldEqual, l.ID)
					So(c.Fandom, ShouldEqual, "Fandom")
				}
			})
		})

		Convey("When verdicts are appended with a frozen clock", func() {
			l, ids := seed(ctx, s, 3)
			r1, err := s.Append(ctx, l.ID, ids[0], ids[1], model.PreferA)
			So(err, ShouldBeNil)
			r2, err := s.Append(ctx, l.ID, ids[1], ids[2], model.Tie)
			So(err, ShouldBeNil)
			r3, err := s.Append(ctx, l.ID, ids[1], ids[0], model.PreferA)
			So(err, ShouldBeNil)

			Convey("Then timestamps are strictly increasing", func() {
				So(r2.Timestamp.After(r1.Timestamp), ShouldBeTrue)
				So(r3.Timestamp.After(r2.Timestamp), ShouldBeTrue)
				So(r1.Timestamp.Equal(storeEpoch), ShouldBeTrue)
			})

			Convey("Then the log is returned oldest first", func() {
				records, err := s.RecordsFor(ctx, l.ID)
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 3)
				So(records[0].ID, ShouldEqual, r1.ID)
				So(records[2].ID, ShouldEqual, r3.ID)
				So(records[2].CharA, ShouldEqual, ids[1])
				So(records[2].Value, ShouldEqual, model.PreferA)
				So(records[2].Timestamp.Equal(r3.Timestamp), ShouldBeTrue)
			})

			Convey("Then the pair index keeps the latest record per pair", func() {
				idx, err := s.LastMatchPerPair(ctx, l.ID)
				So(err, ShouldBeNil)
				So(len(idx), ShouldEqual, 2)
				r, ok := idx.Get(ids[0], ids[1])
				So(ok, ShouldBeTrue)
				So(r.ID, ShouldEqual, r3.ID)
				So(r.ValueFor(ids[0]), ShouldEqual, model.PreferB)
			})

			Convey("Then a snapshot holds list, members and log together", func() {
				snap, err := s.Snapshot(ctx, l.ID)
				So(err, ShouldBeNil)
				So(snap.List.ID, ShouldEqual, l.ID)
				So(len(snap.Characters), ShouldEqual, 3)
				So(len(snap.Records), ShouldEqual, 3)
				So(snap.Now.IsZero(), ShouldBeTrue)
			})

			Convey("Then undo removes the newest record, one at a time", func() {
				got, err := s.DeleteMostRecent(ctx, l.ID)
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, r3.ID)
				So(got.Timestamp.Equal(r3.Timestamp), ShouldBeTrue)

				got, err = s.DeleteMostRecent(ctx, l.ID)
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, r2.ID)

				records, err := s.RecordsFor(ctx, l.ID)
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 1)
			})

			Convey("Then a record appended after undo is still newer than the survivors", func() {
				_, err := s.DeleteMostRecent(ctx, l.ID)
				So(err, ShouldBeNil)
				r4, err := s.Append(ctx, l.ID, ids[2], ids[0], model.PreferB)
				So(err, ShouldBeNil)
				So(r4.Timestamp.After(r2.Timestamp), ShouldBeTrue)
			})
		})

		Convey("When the log is empty", func() {
			l, _ := seed(ctx, s, 2)
			_, err := s.DeleteMostRecent(ctx, l.ID)

			Convey("Then undo reports ErrEmptyLog, which is also ErrNotFound", func() {
				So(errors.Is(err, ErrEmptyLog), ShouldBeTrue)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an invalid verdict is appended", func() {
			l, ids := seed(ctx, s, 2)
			other, otherIDs := seed(ctx, s, 1)
			So(other.ID, ShouldNotEqual, l.ID)

			Convey("Then it is rejected and the log stays empty", func() {
				_, err := s.Append(ctx, l.ID, ids[0], otherIDs[0], model.PreferA)
				So(errors.Is(err, ErrForeignCharacter), ShouldBeTrue)
				_, err = s.Append(ctx, l.ID, ids[0], ids[0], model.PreferA)
				So(errors.Is(err, ErrSelfComparison), ShouldBeTrue)
				_, err = s.Append(ctx, l.ID, ids[0], ids[1], 3)
				So(errors.Is(err, ErrInvalidValue), ShouldBeTrue)

				records, err := s.RecordsFor(ctx, l.ID)
				So(err, ShouldBeNil)
				So(records, ShouldBeEmpty)
			})
		})

		Convey("When stats are read around a write", func() {
			before, err := s.Stats(ctx)
			So(err, ShouldBeNil)
			l, ids := seed(ctx, s, 2)
			_, err = s.Append(ctx, l.ID, ids[0], ids[1], model.Tie)
			So(err, ShouldBeNil)
			after, err := s.Stats(ctx)
			So(err, ShouldBeNil)

			Convey("Then the totals grow by what was written", func() {
				So(after.Lists-before.Lists, ShouldEqual, 1)
				So(after.Characters-before.Characters, ShouldEqual, 2)
				So(after.Records-before.Records, ShouldEqual, 1)
			})
		})

		Convey("When verdicts are appended concurrently", func() {
			l, ids := seed(ctx, s, 2)
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = s.Append(ctx, l.ID, ids[0], ids[1], model.PreferA)
				}()
			}
			wg.Wait()

			Convey("Then every record is kept with a distinct timestamp", func() {
				records, err := s.RecordsFor(ctx, l.ID)
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 16)
				for i := 1; i < len(records); i++ {
					So(records[i].Timestamp.After(records[i-1].Timestamp), ShouldBeTrue)
				}
			})
		})
	})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	Convey("Given a SQLite file with history", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "charsort.db")
		s, err := OpenSQLite(path)
		So(err, ShouldBeNil)
		l, ids := seed(ctx, s, 2)
		r, err := s.Append(ctx, l.ID, ids[0], ids[1], model.PreferA)
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("When it is opened again", func() {
			s, err := OpenSQLite(path)
			So(err, ShouldBeNil)
			Reset(func() { _ = s.Close() })

			Convey("Then the log survived and the schema version is current", func() {
				records, err := s.RecordsFor(ctx, l.ID)
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 1)
				So(records[0].ID, ShouldEqual, r.ID)

				var version int
				So(s.db.QueryRow("PRAGMA user_version").Scan(&version), ShouldBeNil)
				So(version, ShouldEqual, currentSchemaVersion)

				var mode string
				So(s.db.QueryRow("PRAGMA journal_mode").Scan(&mode), ShouldBeNil)
				So(mode, ShouldEqual, "wal")
			})
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Given store drivers", t, func() {
		Convey("Then memory needs no dsn", func() {
			s, err := Open("memory", "")
			So(err, ShouldBeNil)
			So(s, ShouldHaveSameTypeAs, &MemoryStore{})
		})

		Convey("Then sqlite opens the given path", func() {
			s, err := Open("sqlite", filepath.Join(t.TempDir(), "x.db"))
			So(err, ShouldBeNil)
			So(s.Close(), ShouldBeNil)
		})

		Convey("Then an unknown driver is rejected", func() {
			_, err := Open("mongo", "")
			So(errors.Is(err, ErrUnknownDriver), ShouldBeTrue)
		})
	})
}

func TestRebind(t *testing.T) {
	Convey("Given a query with placeholders", t, func() {
		q := `SELECT a FROM t WHERE x = ? AND y IN (?, ?)`

		Convey("Then postgres gets numbered parameters and sqlite is untouched", func() {
			So(postgresDialect.rebind(q), ShouldEqual, `SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)`)
			So(sqliteDialect.rebind(q), ShouldEqual, q)
		})
	})
}

func TestStamp(t *testing.T) {
	Convey("Given a previous timestamp", t, func() {
		last := storeEpoch

		Convey("Then a later clock reading is used as is", func() {
			So(stamp(last, last.Add(time.Second)), ShouldEqual, last.Add(time.Second))
		})

		Convey("Then an equal or earlier reading is bumped by a nanosecond", func() {
			So(stamp(last, last), ShouldEqual, last.Add(time.Nanosecond))
			So(stamp(last, last.Add(-time.Hour)), ShouldEqual, last.Add(time.Nanosecond))
		})
	})
}
