package db

var schema = []string{
	`
CREATE TABLE IF NOT EXISTS digest_runs (
    window_from TIMESTAMP WITH TIME ZONE NOT NULL,
    window_to   TIMESTAMP WITH TIME ZONE NOT NULL,
    mode        VARCHAR(16) NOT NULL,
    node        VARCHAR(255) NOT NULL,
    created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (window_from, window_to, mode),
    CONSTRAINT valid_mode CHECK (mode IN ('narrow', 'broad')),
    CONSTRAINT valid_window CHECK (window_from < window_to)
);
CREATE INDEX IF NOT EXISTS idx_digest_runs_created_at ON digest_runs(created_at);
`,
	`
CREATE TABLE IF NOT EXISTS digest_batch_jobs (
    job_id     VARCHAR(64) PRIMARY KEY,
    attempts   INTEGER NOT NULL DEFAULT 0,
    done_at    TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_digest_batch_jobs_updated_at ON digest_batch_jobs(updated_at);
`,
}
