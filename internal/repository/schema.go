package repository

// Index names the adapters match against when translating unique violations
const (
	indexOneOpenPerGroup    = "decisions_one_open_per_group"
	indexOneRerollPerParent = "decisions_one_reroll_per_parent"
)

// PostgresSchema creates the decision tables. Safe to run repeatedly.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id   TEXT NOT NULL,
		member_id  TEXT NOT NULL,
		joined_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (group_id, member_id)
	)`,
	`CREATE TABLE IF NOT EXISTS decisions (
		id            TEXT PRIMARY KEY,
		group_id      TEXT NOT NULL,
		created_by    TEXT NOT NULL,
		category      TEXT NOT NULL,
		status        TEXT NOT NULL CHECK (status IN ('open', 'accepted', 'rerolled', 'expired')),
		votes         TEXT[] NOT NULL DEFAULT '{}',
		rerolled_from TEXT REFERENCES decisions(id),
		created_at    TIMESTAMPTZ NOT NULL,
		accepted_at   TIMESTAMPTZ,
		closed_at     TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS decisions_one_open_per_group
		ON decisions (group_id) WHERE status = 'open'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS decisions_one_reroll_per_parent
		ON decisions (rerolled_from) WHERE rerolled_from IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS decisions_group_created_idx
		ON decisions (group_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS decisions_open_created_idx
		ON decisions (created_at) WHERE status = 'open'`,
	`CREATE TABLE IF NOT EXISTS decision_results (
		decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
		position    SMALLINT NOT NULL,
		face_id     TEXT NOT NULL,
		emoji       TEXT NOT NULL,
		label_en    TEXT NOT NULL,
		label_fr    TEXT NOT NULL,
		PRIMARY KEY (decision_id, position)
	)`,
}

// PostgresDropSchema removes the decision tables
var PostgresDropSchema = []string{
	`DROP TABLE IF EXISTS decision_results CASCADE`,
	`DROP TABLE IF EXISTS decisions CASCADE`,
	`DROP TABLE IF EXISTS group_members CASCADE`,
}

// sqliteSchema mirrors PostgresSchema. Votes live in their own table since
// SQLite has no array type; timestamps are unix milliseconds.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id   TEXT NOT NULL,
		member_id  TEXT NOT NULL,
		joined_at  INTEGER NOT NULL,
		PRIMARY KEY (group_id, member_id)
	)`,
	`CREATE TABLE IF NOT EXISTS decisions (
		id            TEXT PRIMARY KEY,
		group_id      TEXT NOT NULL,
		created_by    TEXT NOT NULL,
		category      TEXT NOT NULL,
		status        TEXT NOT NULL CHECK (status IN ('open', 'accepted', 'rerolled', 'expired')),
		rerolled_from TEXT REFERENCES decisions(id),
		created_at    INTEGER NOT NULL,
		accepted_at   INTEGER,
		closed_at     INTEGER
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS decisions_one_open_per_group
		ON decisions (group_id) WHERE status = 'open'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS decisions_one_reroll_per_parent
		ON decisions (rerolled_from) WHERE rerolled_from IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS decisions_group_created_idx
		ON decisions (group_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS decision_results (
		decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		face_id     TEXT NOT NULL,
		emoji       TEXT NOT NULL,
		label_en    TEXT NOT NULL,
		label_fr    TEXT NOT NULL,
		PRIMARY KEY (decision_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS decision_votes (
		decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
		member_id   TEXT NOT NULL,
		PRIMARY KEY (decision_id, member_id)
	)`,
}
