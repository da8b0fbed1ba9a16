package postgres

var schema = []string{
	`CREATE TABLE IF NOT EXISTS flow_splitter_events (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		event_order BIGINT NOT NULL,
		block_number BIGINT NOT NULL,
		log_index BIGINT NOT NULL,
		timestamp BIGINT NOT NULL,
		transaction_hash TEXT NOT NULL,
		gas_price TEXT NOT NULL,
		gas_used TEXT,
		addresses TEXT[] NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS flow_splitter_events_order_idx ON flow_splitter_events (event_order)`,
	`CREATE TABLE IF NOT EXISTS flow_splitters (
		id TEXT PRIMARY KEY,
		created_at_timestamp BIGINT NOT NULL,
		created_at_block_number BIGINT NOT NULL,
		updated_at_timestamp BIGINT NOT NULL,
		updated_at_block_number BIGINT NOT NULL,
		super_token TEXT NOT NULL,
		flow_splitter_creator TEXT NOT NULL,
		main_receiver TEXT NOT NULL,
		side_receiver TEXT NOT NULL,
		main_receiver_portion BIGINT NOT NULL,
		side_receiver_portion BIGINT NOT NULL,
		flow_splitter_created_event TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS streams (
		id TEXT PRIMARY KEY,
		created_at_timestamp BIGINT NOT NULL,
		created_at_block_number BIGINT NOT NULL,
		updated_at_timestamp BIGINT NOT NULL,
		updated_at_block_number BIGINT NOT NULL,
		token TEXT NOT NULL,
		sender TEXT NOT NULL,
		receiver TEXT NOT NULL,
		current_flow_rate TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS data_sources (
		address TEXT PRIMARY KEY,
		start_block BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS indexer_state (
		name TEXT PRIMARY KEY,
		last_processed_block BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}
