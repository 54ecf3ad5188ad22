package sqlite

const schemaSQL = `
-- Append-only history of every link set ever fetched
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site TEXT NOT NULL,
	url TEXT NOT NULL,
	ts_ms INTEGER NOT NULL,
	snapshot_hash TEXT NOT NULL,
	links_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_site_ts ON snapshots(site, ts_ms);

-- Latest link set per site, for fast diff base
CREATE TABLE IF NOT EXISTS current_snapshot (
	site TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	ts_ms INTEGER NOT NULL,
	snapshot_hash TEXT NOT NULL,
	links_json TEXT NOT NULL
);

-- Pending expansions of newly added URL sets. Append-only queue with
-- idempotency on (site, diff_hash); status changes are updates.
CREATE TABLE IF NOT EXISTS diff_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site TEXT NOT NULL,
	created_ts_ms INTEGER NOT NULL,
	diff_hash TEXT NOT NULL,
	added_urls_json TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	owner TEXT,
	claimed_ts_ms INTEGER,
	updated_ts_ms INTEGER,
	backoff_until_ms INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_diff_queue_site_hash ON diff_queue(site, diff_hash);
CREATE INDEX IF NOT EXISTS idx_diff_queue_status_created ON diff_queue(status, created_ts_ms);

-- Pending per-URL inference work
CREATE TABLE IF NOT EXISTS job_tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site TEXT NOT NULL,
	url TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	created_ts_ms INTEGER NOT NULL,
	updated_ts_ms INTEGER NOT NULL,
	owner TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	backoff_until_ms INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_job_tasks_site_url ON job_tasks(site, url);
CREATE INDEX IF NOT EXISTS idx_job_tasks_status_created ON job_tasks(status, created_ts_ms);

-- Terminal inference result per URL
CREATE TABLE IF NOT EXISTS job_details (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site TEXT NOT NULL,
	url TEXT NOT NULL,
	job_title TEXT,
	min_years INTEGER NOT NULL DEFAULT 0,
	include_job INTEGER NOT NULL DEFAULT 1,
	exclude_reason TEXT,
	raw_json TEXT,
	created_ts_ms INTEGER NOT NULL,
	updated_ts_ms INTEGER NOT NULL,
	emailed_ts_ms INTEGER,
	digest_id TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_job_details_site_url ON job_details(site, url);
CREATE INDEX IF NOT EXISTS idx_job_details_email ON job_details(include_job, emailed_ts_ms, created_ts_ms);
`
