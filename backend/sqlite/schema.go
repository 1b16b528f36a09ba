package sqlite

// Schema version for migration management
const SchemaVersion = 2

// SQL statements for database schema creation.
// Timestamps are stored as Unix milliseconds (UTC).

// TasksTableSQL creates the tasks table
const TasksTableSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    status TEXT NOT NULL DEFAULT 'todo',
    priority INTEGER DEFAULT 0,
    domain_id TEXT,
    due_date INTEGER,
    estimated_duration INTEGER,
    actual_duration INTEGER,
    order_index INTEGER DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    completed_at INTEGER,
    deleted_at INTEGER,
    local_rev INTEGER NOT NULL DEFAULT 0
);
`

// DomainsTableSQL creates the domains (categories) table
const DomainsTableSQL = `
CREATE TABLE IF NOT EXISTS domains (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    color TEXT,
    icon TEXT,
    description TEXT,
    is_default INTEGER DEFAULT 0,
    order_index INTEGER DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    deleted_at INTEGER,
    local_rev INTEGER NOT NULL DEFAULT 0
);
`

// SyncStatusTableSQL creates the singleton sync status record, keyed by its own name
const SyncStatusTableSQL = `
CREATE TABLE IF NOT EXISTS sync_status (
    name TEXT PRIMARY KEY,
    last_sync_at INTEGER,
    remote_cursor INTEGER,
    local_revision INTEGER NOT NULL DEFAULT 0,
    pending_changes INTEGER NOT NULL DEFAULT 0,
    is_syncing INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    updated_at INTEGER NOT NULL
);
`

// LocalRevisionTableSQL creates the counter stamped on every local write.
// local_rev is 0 for rows written by a pull.
const LocalRevisionTableSQL = `
CREATE TABLE IF NOT EXISTS local_revision (
    name TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);
`

// SchemaVersionTableSQL creates the schema version table for migration tracking
const SchemaVersionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

// Index creation statements

// TasksIndexesSQL creates indexes on the tasks table.
// updated_at serves the change-set scan; the rest serve the task views.
const TasksIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_tasks_updated_at ON tasks(updated_at);
CREATE INDEX IF NOT EXISTS idx_tasks_local_rev ON tasks(local_rev);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority);
CREATE INDEX IF NOT EXISTS idx_tasks_domain_id ON tasks(domain_id);
CREATE INDEX IF NOT EXISTS idx_tasks_order_index ON tasks(order_index);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`

// DomainsIndexesSQL creates indexes on the domains table
const DomainsIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_domains_updated_at ON domains(updated_at);
CREATE INDEX IF NOT EXISTS idx_domains_local_rev ON domains(local_rev);
CREATE INDEX IF NOT EXISTS idx_domains_order_index ON domains(order_index);
`

// AllTableSchemas returns all table creation statements in order
func AllTableSchemas() []string {
	return []string{
		SchemaVersionTableSQL,
		TasksTableSQL,
		DomainsTableSQL,
		SyncStatusTableSQL,
		LocalRevisionTableSQL,
	}
}

// schemaColumn is a column added after version 1, created by ALTER TABLE on older files
type schemaColumn struct {
	table, column, ddl string
}

// migrationColumns lists the columns added since version 1
var migrationColumns = []schemaColumn{
	{"tasks", "local_rev", "ALTER TABLE tasks ADD COLUMN local_rev INTEGER NOT NULL DEFAULT 0"},
	{"domains", "local_rev", "ALTER TABLE domains ADD COLUMN local_rev INTEGER NOT NULL DEFAULT 0"},
	{"sync_status", "local_revision", "ALTER TABLE sync_status ADD COLUMN local_revision INTEGER NOT NULL DEFAULT 0"},
}

// AllIndexes returns all index creation statements
func AllIndexes() []string {
	return []string{
		TasksIndexesSQL,
		DomainsIndexesSQL,
	}
}

// PragmaStatements returns pragma statements to execute on database connection
func PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous = NORMAL", // Balance between safety and performance
		"PRAGMA busy_timeout = 5000",  // CLI and daemon may share the file
	}
}
