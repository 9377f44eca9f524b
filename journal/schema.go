package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	idempotency_key TEXT PRIMARY KEY,
	timestamp_ns INTEGER NOT NULL,
	date_key TEXT NOT NULL,
	policy_name TEXT NOT NULL,
	outcome TEXT NOT NULL,
	executed INTEGER NOT NULL,
	planned_spend_usd REAL NOT NULL,
	record TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp_ns);
`
