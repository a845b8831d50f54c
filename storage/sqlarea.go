package storage

import (
	"database/sql"

	cerrors "github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

const sqlAreaSchema = `
CREATE TABLE IF NOT EXISTS area_meta (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS slots (
	id   INTEGER PRIMARY KEY,
	data BLOB NOT NULL
);
`

// SQLArea is a storage area backed by a SQLite database. It trades the raw
// block layout of FileArea for transactional slot writes, which keeps a
// half-written image from ever looking committed even if the host process
// dies mid-write.
type SQLArea struct {
	name     string
	db       *sql.DB
	slotSize int
	capacity int
	free     []Slot
}

var _ Area = (*SQLArea)(nil)

// OpenSQLArea opens (creating if necessary) a SQLite-backed area. The slot
// geometry is persisted on first open and validated on later opens.
func OpenSQLArea(name, path string, slotSize, capacity int) (*SQLArea, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cerrors.Wrapf(err, "opening storage database %q", path)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	a := &SQLArea{name: name, db: db, slotSize: slotSize, capacity: capacity}
	err = a.initialize()
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLArea) initialize() error {
	_, err := a.db.Exec(sqlAreaSchema)
	if err != nil {
		return cerrors.Wrap(err, "creating storage schema")
	}

	for _, meta := range []struct {
		key   string
		value int
	}{
		{"slot_size", a.slotSize},
		{"capacity", a.capacity},
	} {
		var stored int
		err = a.db.QueryRow(`SELECT value FROM area_meta WHERE key = ?`, meta.key).Scan(&stored)
		if err == sql.ErrNoRows {
			_, err = a.db.Exec(`INSERT INTO area_meta (key, value) VALUES (?, ?)`, meta.key, meta.value)
			if err != nil {
				return cerrors.Wrapf(err, "recording %s", meta.key)
			}
			continue
		}
		if err != nil {
			return cerrors.Wrapf(err, "reading %s", meta.key)
		}
		if stored != meta.value {
			return cerrors.Newf("area %q was created with %s %d, opened with %d", a.name, meta.key, stored, meta.value)
		}
	}

	// Occupied slots survive reopening; everything else is free.
	used := make(map[Slot]bool)
	rows, err := a.db.Query(`SELECT id FROM slots`)
	if err != nil {
		return cerrors.Wrap(err, "listing occupied slots")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return cerrors.Wrap(err, "scanning occupied slot")
		}
		used[Slot(id)] = true
	}
	if err := rows.Err(); err != nil {
		return cerrors.Wrap(err, "listing occupied slots")
	}

	a.free = a.free[:0]
	for s := a.capacity - 1; s >= 1; s-- {
		if !used[Slot(s)] {
			a.free = append(a.free, Slot(s))
		}
	}
	return nil
}

func (a *SQLArea) Close() error {
	return a.db.Close()
}

func (a *SQLArea) Name() string {
	return a.name
}

func (a *SQLArea) SlotSize() int {
	return a.slotSize
}

func (a *SQLArea) Capacity() int {
	return a.capacity
}

func (a *SQLArea) FreeSlots() int {
	return len(a.free)
}

func (a *SQLArea) Acquire() (Slot, error) {
	if len(a.free) == 0 {
		return 0, cerrors.Wrapf(ErrAreaFull, "area %q", a.name)
	}
	slot := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	return slot, nil
}

func (a *SQLArea) Release(slot Slot) {
	if slot == AnchorSlot || int(slot) >= a.capacity {
		return
	}
	_, err := a.db.Exec(`DELETE FROM slots WHERE id = ?`, int64(slot))
	if err != nil {
		return
	}
	a.free = append(a.free, slot)
}

func (a *SQLArea) ReadSlot(slot Slot, buf []byte) error {
	if int(slot) >= a.capacity {
		return cerrors.Wrapf(ErrBadSlot, "reading slot %d of %d", slot, a.capacity)
	}
	if len(buf) != a.slotSize {
		return cerrors.Newf("read buffer is %d bytes, slot size is %d", len(buf), a.slotSize)
	}
	var data []byte
	err := a.db.QueryRow(`SELECT data FROM slots WHERE id = ?`, int64(slot)).Scan(&data)
	if err == sql.ErrNoRows {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	if err != nil {
		return cerrors.Wrapf(err, "reading slot %d of area %q", slot, a.name)
	}
	copy(buf, data)
	return nil
}

func (a *SQLArea) WriteSlot(slot Slot, data []byte) error {
	if int(slot) >= a.capacity {
		return cerrors.Wrapf(ErrBadSlot, "writing slot %d of %d", slot, a.capacity)
	}
	if len(data) != a.slotSize {
		return cerrors.Newf("write buffer is %d bytes, slot size is %d", len(data), a.slotSize)
	}
	_, err := a.db.Exec(`INSERT OR REPLACE INTO slots (id, data) VALUES (?, ?)`, int64(slot), data)
	if err != nil {
		return cerrors.Wrapf(err, "writing slot %d of area %q", slot, a.name)
	}
	return nil
}
