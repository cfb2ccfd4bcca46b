package store

const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	source_id TEXT NOT NULL,
	video_id TEXT NOT NULL,
	video_url TEXT NOT NULL,
	video_title TEXT NOT NULL,
	status TEXT NOT NULL,
	processing_mode TEXT NOT NULL,
	progress INTEGER DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	completed_at DATETIME,
	output_file TEXT,
	subtitle_file TEXT,
	error_message TEXT,
	metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON tasks(user_id, status);
`
