package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"tasksync/backend"
)

const taskColumns = `id, title, description, status, priority, domain_id, due_date,
       estimated_duration, actual_duration, order_index, created_at, updated_at,
       completed_at, deleted_at`

const domainColumns = `id, name, color, icon, description, is_default, order_index,
       created_at, updated_at, deleted_at`

// ChangeHook is called after a local-path write commits
type ChangeHook func(kind backend.Kind, id string)

// Store is the persistent local copy of the user's tasks and domains.
// Writes coming from local mutations go through Put/Delete and are stamped with the
// store clock and the next local revision; writes coming from a pull go through
// PutRemote/ApplyRemote, keep their updatedAt and carry no revision.
type Store struct {
	db  *Database
	now func() time.Time

	mu    sync.RWMutex
	hooks []ChangeHook
}

// Open opens (or creates) the store at path. An empty path uses the XDG default location.
func Open(path string) (*Store, error) {
	db, err := InitDatabase(path)
	if err != nil {
		return nil, &backend.StoreError{Op: "open", Err: err}
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database
func (s *Store) DB() *Database {
	return s.db
}

// SetClock replaces the clock used to stamp local writes
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OnLocalChange registers a hook fired after every committed local-path write
func (s *Store) OnLocalChange(hook ChangeHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *Store) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *Store) notify(kind backend.Kind, id string) {
	s.mu.RLock()
	hooks := append([]ChangeHook(nil), s.hooks...)
	s.mu.RUnlock()
	for _, hook := range hooks {
		hook(kind, id)
	}
}

// Get returns the stored version of an entity, including tombstones.
// It returns nil, nil when no version exists.
func (s *Store) Get(kind backend.Kind, id string) (backend.Entity, error) {
	e, err := getEntity(s.db, kind, id)
	if err != nil {
		return nil, &backend.StoreError{Op: "get", Kind: kind, ID: id, Err: err}
	}
	return e, nil
}

// GetTask returns a task by ID, or nil if it does not exist
func (s *Store) GetTask(id string) (*backend.Task, error) {
	e, err := s.Get(backend.KindTask, id)
	if err != nil || e == nil {
		return nil, err
	}
	return e.(*backend.Task), nil
}

// GetDomain returns a domain by ID, or nil if it does not exist
func (s *Store) GetDomain(id string) (*backend.Domain, error) {
	e, err := s.Get(backend.KindDomain, id)
	if err != nil || e == nil {
		return nil, err
	}
	return e.(*backend.Domain), nil
}

// Put upserts an entity from a local mutation. updatedAt is set to the current time.
func (s *Store) Put(e backend.Entity) error {
	e.Touch(s.clock())
	if v, ok := e.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return &backend.StoreError{Op: "put", Kind: e.Kind(), ID: e.EntityID(), Err: err}
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &backend.StoreError{Op: "put", Kind: e.Kind(), ID: e.EntityID(), Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	rev, err := nextRevision(tx)
	if err != nil {
		return &backend.StoreError{Op: "put", Kind: e.Kind(), ID: e.EntityID(), Err: err}
	}
	if err := upsert(tx, e, rev); err != nil {
		return &backend.StoreError{Op: "put", Kind: e.Kind(), ID: e.EntityID(), Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &backend.StoreError{Op: "put", Kind: e.Kind(), ID: e.EntityID(), Err: err}
	}
	s.notify(e.Kind(), e.EntityID())
	return nil
}

// PutRemote upserts an entity received from the remote authority.
// updatedAt is kept verbatim: it records when the other side wrote it.
func (s *Store) PutRemote(e backend.Entity) error {
	backend.Normalize(e)
	if err := upsert(s.db, e, 0); err != nil {
		return &backend.StoreError{Op: "put remote", Kind: e.Kind(), ID: e.EntityID(), Err: err}
	}
	return nil
}

// ApplyOutcome reports what ApplyRemote did with an incoming version
type ApplyOutcome int

const (
	// Inserted means no local version existed
	Inserted ApplyOutcome = iota
	// Replaced means the incoming version won over the local one
	Replaced
	// KeptLocal means the local version won and nothing was written
	KeptLocal
)

// ApplyRemote writes an incoming version unless the stored version should be kept.
// The read and the write happen in one transaction so a local write cannot slip
// between the comparison and the upsert.
func (s *Store) ApplyRemote(incoming backend.Entity, wins func(incoming, local backend.Entity) bool) (ApplyOutcome, error) {
	backend.Normalize(incoming)
	kind, id := incoming.Kind(), incoming.EntityID()

	tx, err := s.db.Begin()
	if err != nil {
		return KeptLocal, &backend.StoreError{Op: "apply remote", Kind: kind, ID: id, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	local, err := getEntity(tx, kind, id)
	if err != nil {
		return KeptLocal, &backend.StoreError{Op: "apply remote", Kind: kind, ID: id, Err: err}
	}

	outcome := Inserted
	if local != nil {
		if !wins(incoming, local) {
			return KeptLocal, nil
		}
		outcome = Replaced
	}

	if err := upsert(tx, incoming, 0); err != nil {
		return KeptLocal, &backend.StoreError{Op: "apply remote", Kind: kind, ID: id, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return KeptLocal, &backend.StoreError{Op: "apply remote", Kind: kind, ID: id, Err: err}
	}
	return outcome, nil
}

// Delete removes an entity from the user's data by turning it into a tombstone.
// The tombstone carries a fresh updatedAt so the deletion is part of the next change-set.
// Deleting an absent or already deleted entity is a no-op.
func (s *Store) Delete(kind backend.Kind, id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &backend.StoreError{Op: "delete", Kind: kind, ID: id, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	// Write first so the transaction holds the write lock before it reads.
	// A no-op delete rolls the increment back.
	rev, err := nextRevision(tx)
	if err != nil {
		return &backend.StoreError{Op: "delete", Kind: kind, ID: id, Err: err}
	}

	e, err := getEntity(tx, kind, id)
	if err != nil {
		return &backend.StoreError{Op: "delete", Kind: kind, ID: id, Err: err}
	}
	if e == nil || e.IsDeleted() {
		return nil
	}

	now := s.clock()
	deletedAt := backend.Timestamp(now)
	switch v := e.(type) {
	case *backend.Task:
		v.DeletedAt = &deletedAt
	case *backend.Domain:
		v.DeletedAt = &deletedAt
	}
	e.Touch(now)

	if err := upsert(tx, e, rev); err != nil {
		return &backend.StoreError{Op: "delete", Kind: kind, ID: id, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &backend.StoreError{Op: "delete", Kind: kind, ID: id, Err: err}
	}

	s.notify(kind, id)
	return nil
}

// ListAll returns every live (non-deleted) entity of a kind in display order
func (s *Store) ListAll(kind backend.Kind) ([]backend.Entity, error) {
	table, columns, err := tableFor(kind)
	if err != nil {
		return nil, &backend.StoreError{Op: "list", Kind: kind, Err: err}
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE deleted_at IS NULL ORDER BY order_index ASC, created_at ASC", columns, table)
	entities, err := queryEntities(s.db, kind, query)
	if err != nil {
		return nil, &backend.StoreError{Op: "list", Kind: kind, Err: err}
	}
	return entities, nil
}

// ListChangedSince returns every entity (tombstones included) changed after cp: its
// updatedAt is strictly after cp.At or its local revision is after cp.Revision.
// A nil cp.At returns the whole table.
func (s *Store) ListChangedSince(kind backend.Kind, cp backend.LocalCheckpoint) ([]backend.Entity, error) {
	entities, err := listChanged(s.db, kind, cp)
	if err != nil {
		return nil, &backend.StoreError{Op: "list changed", Kind: kind, Err: err}
	}
	return entities, nil
}

// CountChangedSince counts what ListChangedSince would return without loading rows
func (s *Store) CountChangedSince(kind backend.Kind, cp backend.LocalCheckpoint) (int, error) {
	count, err := countChanged(s.db, kind, cp)
	if err != nil {
		return 0, &backend.StoreError{Op: "count changed", Kind: kind, Err: err}
	}
	return count, nil
}

// Snapshot is what one read transaction saw of the local changes after a checkpoint
type Snapshot struct {
	Changed map[backend.Kind][]backend.Entity
	// Revision is the last local revision committed when the snapshot was taken
	Revision int64
}

// SnapshotChanges lists the changes after cp for every kind and reads the local revision,
// all in one read transaction. Every local write committed later has a higher revision.
func (s *Store) SnapshotChanges(cp backend.LocalCheckpoint) (Snapshot, error) {
	snap := Snapshot{Changed: make(map[backend.Kind][]backend.Entity, len(backend.Kinds))}
	err := s.readTx(func(tx *sql.Tx) error {
		for _, kind := range backend.Kinds {
			entities, err := listChanged(tx, kind, cp)
			if err != nil {
				return err
			}
			snap.Changed[kind] = entities
		}
		rev, err := currentRevision(tx)
		snap.Revision = rev
		return err
	})
	if err != nil {
		return Snapshot{}, &backend.StoreError{Op: "snapshot changes", Err: err}
	}
	return snap, nil
}

// CountPending counts the changes after cp over every kind and returns the local revision
// the count observed, both from one read transaction
func (s *Store) CountPending(cp backend.LocalCheckpoint) (int, int64, error) {
	var (
		total int
		rev   int64
	)
	err := s.readTx(func(tx *sql.Tx) error {
		for _, kind := range backend.Kinds {
			n, err := countChanged(tx, kind, cp)
			if err != nil {
				return err
			}
			total += n
		}
		var err error
		rev, err = currentRevision(tx)
		return err
	})
	if err != nil {
		return 0, 0, &backend.StoreError{Op: "count pending", Err: err}
	}
	return total, rev, nil
}

// Revision returns the last committed local revision
func (s *Store) Revision() (int64, error) {
	rev, err := currentRevision(s.db)
	if err != nil {
		return 0, &backend.StoreError{Op: "read revision", Err: err}
	}
	return rev, nil
}

func (s *Store) readTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

// Tasks returns all live tasks
func (s *Store) Tasks() ([]backend.Task, error) {
	entities, err := s.ListAll(backend.KindTask)
	if err != nil {
		return nil, err
	}
	return backend.TasksOf(entities), nil
}

// Domains returns all live domains
func (s *Store) Domains() ([]backend.Domain, error) {
	entities, err := s.ListAll(backend.KindDomain)
	if err != nil {
		return nil, err
	}
	return backend.DomainsOf(entities), nil
}

// PurgeTombstones hard-deletes tombstones of a kind whose deletion is older than before.
// Only safe once every device has pulled past before.
func (s *Store) PurgeTombstones(kind backend.Kind, before time.Time) (int64, error) {
	table, _, err := tableFor(kind)
	if err != nil {
		return 0, &backend.StoreError{Op: "purge", Kind: kind, Err: err}
	}
	result, err := s.db.Exec("DELETE FROM "+table+" WHERE deleted_at IS NOT NULL AND deleted_at < ?", toMillis(before))
	if err != nil {
		return 0, &backend.StoreError{Op: "purge", Kind: kind, Err: err}
	}
	return result.RowsAffected()
}

// queryer is satisfied by both *sql.DB (through Database) and *sql.Tx
type queryer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// localRevisionName keys the counter row
const localRevisionName = "local"

// nextRevision increments the local revision counter. It must run inside the write
// transaction that stamps the row so revisions follow commit order.
func nextRevision(tx *sql.Tx) (int64, error) {
	_, err := tx.Exec(`
		INSERT INTO local_revision (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
	`, localRevisionName)
	if err != nil {
		return 0, err
	}
	return currentRevision(tx)
}

func currentRevision(q queryer) (int64, error) {
	var rev int64
	err := q.QueryRow("SELECT value FROM local_revision WHERE name = ?", localRevisionName).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return rev, err
}

// changedClause builds the filter shared by listChanged and countChanged
func changedClause(cp backend.LocalCheckpoint) (string, []interface{}) {
	if cp.At == nil {
		return "", nil
	}
	return " WHERE updated_at > ? OR local_rev > ?", []interface{}{toMillis(*cp.At), cp.Revision}
}

func listChanged(q queryer, kind backend.Kind, cp backend.LocalCheckpoint) ([]backend.Entity, error) {
	table, columns, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	where, args := changedClause(cp)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY updated_at ASC", columns, table, where)
	return queryEntities(q, kind, query, args...)
}

func countChanged(q queryer, kind backend.Kind, cp backend.LocalCheckpoint) (int, error) {
	table, _, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	where, args := changedClause(cp)
	var count int
	err = q.QueryRow("SELECT COUNT(*) FROM "+table+where, args...).Scan(&count)
	return count, err
}

func tableFor(kind backend.Kind) (table, columns string, err error) {
	switch kind {
	case backend.KindTask:
		return "tasks", taskColumns, nil
	case backend.KindDomain:
		return "domains", domainColumns, nil
	default:
		return "", "", fmt.Errorf("%w: %q", backend.ErrUnknownKind, kind)
	}
}

func getEntity(q queryer, kind backend.Kind, id string) (backend.Entity, error) {
	table, columns, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	row := q.QueryRow(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", columns, table), id)
	e, err := scanEntity(kind, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func queryEntities(q queryer, kind backend.Kind, query string, args ...interface{}) ([]backend.Entity, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []backend.Entity
	for rows.Next() {
		e, err := scanEntity(kind, rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func scanEntity(kind backend.Kind, row scanner) (backend.Entity, error) {
	switch kind {
	case backend.KindTask:
		return scanTask(row)
	case backend.KindDomain:
		return scanDomain(row)
	default:
		return nil, fmt.Errorf("%w: %q", backend.ErrUnknownKind, kind)
	}
}

func scanTask(row scanner) (*backend.Task, error) {
	var (
		t                           backend.Task
		status                      string
		description, domainID       sql.NullString
		dueDate, completed, deleted sql.NullInt64
		estimated, actual           sql.NullInt64
		createdAt, updatedAt        int64
	)
	err := row.Scan(
		&t.ID, &t.Title, &description, &status, &t.Priority, &domainID, &dueDate,
		&estimated, &actual, &t.Order, &createdAt, &updatedAt,
		&completed, &deleted,
	)
	if err != nil {
		return nil, err
	}

	t.Status = backend.TaskStatus(status)
	t.Description = description.String
	t.DomainID = domainID.String
	t.DueDate = fromNullMillis(dueDate)
	t.EstimatedDuration = nullIntPtr(estimated)
	t.ActualDuration = nullIntPtr(actual)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	t.CompletedAt = fromNullMillis(completed)
	t.DeletedAt = fromNullMillis(deleted)
	return &t, nil
}

func scanDomain(row scanner) (*backend.Domain, error) {
	var (
		d                        backend.Domain
		color, icon, description sql.NullString
		isDefault                int
		createdAt, updatedAt     int64
		deletedAt                sql.NullInt64
	)
	err := row.Scan(
		&d.ID, &d.Name, &color, &icon, &description, &isDefault, &d.Order,
		&createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Color = color.String
	d.Icon = icon.String
	d.Description = description.String
	d.IsDefault = isDefault != 0
	d.CreatedAt = fromMillis(createdAt)
	d.UpdatedAt = fromMillis(updatedAt)
	d.DeletedAt = fromNullMillis(deletedAt)
	return &d, nil
}

// upsert writes e with local revision rev (0 for a version received from the remote)
func upsert(q queryer, e backend.Entity, rev int64) error {
	switch v := e.(type) {
	case *backend.Task:
		return upsertTask(q, v, rev)
	case *backend.Domain:
		return upsertDomain(q, v, rev)
	default:
		return fmt.Errorf("%w: %T", backend.ErrUnknownKind, e)
	}
}

func upsertTask(q queryer, t *backend.Task, rev int64) error {
	_, err := q.Exec(`
		INSERT INTO tasks (`+taskColumns+`, local_rev)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			priority = excluded.priority,
			domain_id = excluded.domain_id,
			due_date = excluded.due_date,
			estimated_duration = excluded.estimated_duration,
			actual_duration = excluded.actual_duration,
			order_index = excluded.order_index,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at,
			deleted_at = excluded.deleted_at,
			local_rev = excluded.local_rev
	`,
		t.ID,
		t.Title,
		NullString(t.Description),
		string(t.Status),
		t.Priority,
		NullString(t.DomainID),
		TimeToNullInt64(t.DueDate),
		IntToNullInt64(t.EstimatedDuration),
		IntToNullInt64(t.ActualDuration),
		t.Order,
		toMillis(t.CreatedAt),
		toMillis(t.UpdatedAt),
		TimeToNullInt64(t.CompletedAt),
		TimeToNullInt64(t.DeletedAt),
		rev,
	)
	return err
}

func upsertDomain(q queryer, d *backend.Domain, rev int64) error {
	isDefault := 0
	if d.IsDefault {
		isDefault = 1
	}
	_, err := q.Exec(`
		INSERT INTO domains (`+domainColumns+`, local_rev)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			icon = excluded.icon,
			description = excluded.description,
			is_default = excluded.is_default,
			order_index = excluded.order_index,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			local_rev = excluded.local_rev
	`,
		d.ID,
		d.Name,
		NullString(d.Color),
		NullString(d.Icon),
		NullString(d.Description),
		isDefault,
		d.Order,
		toMillis(d.CreatedAt),
		toMillis(d.UpdatedAt),
		TimeToNullInt64(d.DeletedAt),
		rev,
	)
	return err
}

// NullString converts an empty string to a NULL column value
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// TimeToNullInt64 converts an optional time to nullable Unix milliseconds
func TimeToNullInt64(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

// IntToNullInt64 converts an optional int to a nullable column value
func IntToNullInt64(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}
