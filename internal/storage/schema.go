package storage

// Timestamps are TEXT in TimeFormat; booleans are INTEGER 0/1. Both keep the
// statements identical for SQLite and Postgres.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS inbound_events (
  id                 TEXT PRIMARY KEY,
  message_id         TEXT,
  source             TEXT NOT NULL,
  from_id            TEXT NOT NULL DEFAULT '',
  client_id          TEXT,
  slack_channel      TEXT,
  text               TEXT NOT NULL DEFAULT '',
  body               TEXT NOT NULL DEFAULT '',
  channel            TEXT NOT NULL DEFAULT '',
  provider_timestamp TEXT,
  raw                TEXT,
  raw_digest         TEXT,
  status             TEXT NOT NULL,
  delivery_attempted INTEGER NOT NULL DEFAULT 0,
  created_at         TEXT NOT NULL,
  updated_at         TEXT NOT NULL,
  delivered_at       TEXT,
  delivery_error     TEXT
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS inbound_events_source_message_idx ON inbound_events(source, message_id);`,
	`CREATE INDEX IF NOT EXISTS inbound_events_created_at_idx ON inbound_events(created_at);`,
	`CREATE TABLE IF NOT EXISTS delivery_claims (
  source     TEXT NOT NULL,
  message_id TEXT NOT NULL,
  claimed_at TEXT NOT NULL,
  PRIMARY KEY (source, message_id)
);`,
	`CREATE TABLE IF NOT EXISTS client_directory (
  client_id            TEXT PRIMARY KEY,
  display_name         TEXT NOT NULL DEFAULT '',
  notification_channel TEXT NOT NULL,
  created_at           TEXT NOT NULL,
  updated_at           TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS client_senders (
  sender    TEXT NOT NULL,
  client_id TEXT NOT NULL REFERENCES client_directory(client_id) ON DELETE CASCADE,
  PRIMARY KEY (sender, client_id)
);`,
	`CREATE INDEX IF NOT EXISTS client_senders_client_idx ON client_senders(client_id);`,
	`CREATE TABLE IF NOT EXISTS relay_jobs (
  id            TEXT PRIMARY KEY,
  kind          TEXT NOT NULL,
  event_id      TEXT NOT NULL,
  status        TEXT NOT NULL,
  attempt       INTEGER NOT NULL DEFAULT 1,
  max_attempts  INTEGER NOT NULL DEFAULT 5,
  created_at    TEXT NOT NULL,
  started_at    TEXT,
  completed_at  TEXT,
  next_retry_at TEXT,
  last_error    TEXT
);`,
	`CREATE INDEX IF NOT EXISTS relay_jobs_status_created_at_idx ON relay_jobs(status, created_at);`,
	`CREATE TABLE IF NOT EXISTS relay_job_log (
  id           TEXT PRIMARY KEY,
  job_id       TEXT NOT NULL,
  kind         TEXT NOT NULL,
  event_id     TEXT NOT NULL,
  status       TEXT NOT NULL,
  attempt      INTEGER NOT NULL,
  created_at   TEXT NOT NULL,
  completed_at TEXT NOT NULL,
  last_error   TEXT
);`,
	`CREATE INDEX IF NOT EXISTS relay_job_log_completed_at_idx ON relay_job_log(completed_at);`,
}
