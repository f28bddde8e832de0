// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

var sqliteMigrations = []string{
	`
	CREATE TABLE IF NOT EXISTS feature_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		request_id TEXT NOT NULL,
		request_owner TEXT NOT NULL,
		request_date_ns INTEGER NOT NULL,
		registration_ns INTEGER NOT NULL,
		last_update_ns INTEGER NOT NULL,
		state TEXT NOT NULL,
		step TEXT NOT NULL,
		priority INTEGER NOT NULL,
		provider_id TEXT NOT NULL DEFAULT '',
		urn TEXT NOT NULL DEFAULT '',
		errors_json TEXT NOT NULL DEFAULT '[]',
		last_error_step TEXT NOT NULL DEFAULT '',
		group_ids_json TEXT NOT NULL DEFAULT '[]',
		payload_json TEXT NOT NULL,
		UNIQUE (kind, request_id)
	);
	CREATE INDEX IF NOT EXISTS idx_requests_schedule ON feature_requests (kind, step, priority, registration_ns);
	CREATE INDEX IF NOT EXISTS idx_requests_urn ON feature_requests (urn);
	CREATE INDEX IF NOT EXISTS idx_requests_age ON feature_requests (step, last_update_ns);

	CREATE TABLE IF NOT EXISTS request_groups (
		group_id TEXT NOT NULL,
		request_pk INTEGER NOT NULL REFERENCES feature_requests(id) ON DELETE CASCADE,
		PRIMARY KEY (group_id, request_pk)
	);
	CREATE INDEX IF NOT EXISTS idx_request_groups_pk ON request_groups (request_pk);

	CREATE TABLE IF NOT EXISTS features (
		urn TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		previous_version_urn TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		session TEXT NOT NULL DEFAULT '',
		session_owner TEXT NOT NULL DEFAULT '',
		feature_json TEXT NOT NULL,
		creation_ns INTEGER NOT NULL,
		last_update_ns INTEGER NOT NULL,
		UNIQUE (provider_id, version)
	);
	`,
	`ALTER TABLE features ADD COLUMN disseminations_json TEXT NOT NULL DEFAULT '[]';`,
}

var postgresMigrations = []string{
	`
	CREATE TABLE IF NOT EXISTS feature_requests (
		id BIGSERIAL PRIMARY KEY,
		kind TEXT NOT NULL,
		request_id TEXT NOT NULL,
		request_owner TEXT NOT NULL,
		request_date_ns BIGINT NOT NULL,
		registration_ns BIGINT NOT NULL,
		last_update_ns BIGINT NOT NULL,
		state TEXT NOT NULL,
		step TEXT NOT NULL,
		priority INTEGER NOT NULL,
		provider_id TEXT NOT NULL DEFAULT '',
		urn TEXT NOT NULL DEFAULT '',
		errors_json TEXT NOT NULL DEFAULT '[]',
		last_error_step TEXT NOT NULL DEFAULT '',
		group_ids_json TEXT NOT NULL DEFAULT '[]',
		payload_json TEXT NOT NULL,
		UNIQUE (kind, request_id)
	);
	CREATE INDEX IF NOT EXISTS idx_requests_schedule ON feature_requests (kind, step, priority, registration_ns);
	CREATE INDEX IF NOT EXISTS idx_requests_urn ON feature_requests (urn);
	CREATE INDEX IF NOT EXISTS idx_requests_age ON feature_requests (step, last_update_ns);

	CREATE TABLE IF NOT EXISTS request_groups (
		group_id TEXT NOT NULL,
		request_pk BIGINT NOT NULL REFERENCES feature_requests(id) ON DELETE CASCADE,
		PRIMARY KEY (group_id, request_pk)
	);
	CREATE INDEX IF NOT EXISTS idx_request_groups_pk ON request_groups (request_pk);

	CREATE TABLE IF NOT EXISTS features (
		urn TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		previous_version_urn TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		session TEXT NOT NULL DEFAULT '',
		session_owner TEXT NOT NULL DEFAULT '',
		feature_json TEXT NOT NULL,
		creation_ns BIGINT NOT NULL,
		last_update_ns BIGINT NOT NULL,
		UNIQUE (provider_id, version)
	);
	`,
	`ALTER TABLE features ADD COLUMN IF NOT EXISTS disseminations_json TEXT NOT NULL DEFAULT '[]';`,
}
