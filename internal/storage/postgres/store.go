package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowsplit/internal/model"
	"flowsplit/internal/storage"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store provides Postgres persistence for events, aggregates and indexer state.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

var _ storage.TxStore = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, q: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WithTx runs fn inside a single transaction.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{q: tx})
	})
}

// EnsureSchema creates the tables used by the indexer when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	batch := &pgx.Batch{}
	for _, stmt := range schema {
		batch.Queue(stmt)
	}
	br := s.q.SendBatch(ctx, batch)
	defer br.Close()

	for range schema {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SaveEvent inserts an event record. Replaying the same log overwrites the same row.
func (s *Store) SaveEvent(ctx context.Context, event model.EventRecord) error {
	base := event.Base()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", base.ID, err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO flow_splitter_events (
			id, name, event_order, block_number, log_index, timestamp, transaction_hash,
			gas_price, gas_used, addresses, payload, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			event_order = EXCLUDED.event_order,
			block_number = EXCLUDED.block_number,
			log_index = EXCLUDED.log_index,
			timestamp = EXCLUDED.timestamp,
			transaction_hash = EXCLUDED.transaction_hash,
			gas_price = EXCLUDED.gas_price,
			gas_used = EXCLUDED.gas_used,
			addresses = EXCLUDED.addresses,
			payload = EXCLUDED.payload
	`,
		base.ID,
		base.Name,
		int64(base.Order),
		int64(base.BlockNumber),
		int64(base.LogIndex),
		int64(base.Timestamp),
		base.TransactionHash,
		base.GasPrice,
		base.GasUsed,
		base.Addresses,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", base.ID, err)
	}
	return nil
}

const splitterColumns = `id, created_at_timestamp, created_at_block_number, updated_at_timestamp,
	updated_at_block_number, super_token, flow_splitter_creator, main_receiver, side_receiver,
	main_receiver_portion, side_receiver_portion, flow_splitter_created_event`

func (s *Store) GetFlowSplitter(ctx context.Context, id string) (model.FlowSplitter, bool, error) {
	row := s.q.QueryRow(ctx, `SELECT `+splitterColumns+` FROM flow_splitters WHERE id=$1`, id)
	splitter, err := scanFlowSplitter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.FlowSplitter{}, false, nil
		}
		return model.FlowSplitter{}, false, err
	}
	return splitter, true, nil
}

func (s *Store) SaveFlowSplitter(ctx context.Context, f model.FlowSplitter) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO flow_splitters (`+splitterColumns+`, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
		ON CONFLICT (id)
		DO UPDATE SET
			created_at_timestamp = EXCLUDED.created_at_timestamp,
			created_at_block_number = EXCLUDED.created_at_block_number,
			updated_at_timestamp = EXCLUDED.updated_at_timestamp,
			updated_at_block_number = EXCLUDED.updated_at_block_number,
			super_token = EXCLUDED.super_token,
			flow_splitter_creator = EXCLUDED.flow_splitter_creator,
			main_receiver = EXCLUDED.main_receiver,
			side_receiver = EXCLUDED.side_receiver,
			main_receiver_portion = EXCLUDED.main_receiver_portion,
			side_receiver_portion = EXCLUDED.side_receiver_portion,
			flow_splitter_created_event = EXCLUDED.flow_splitter_created_event,
			updated_at = now()
	`,
		f.ID,
		int64(f.CreatedAtTimestamp),
		int64(f.CreatedAtBlockNumber),
		int64(f.UpdatedAtTimestamp),
		int64(f.UpdatedAtBlockNumber),
		f.SuperToken,
		f.FlowSplitterCreator,
		f.MainReceiver,
		f.SideReceiver,
		f.MainReceiverPortion,
		f.SideReceiverPortion,
		f.FlowSplitterCreatedEvent,
	)
	if err != nil {
		return fmt.Errorf("upsert flow splitter %s: %w", f.ID, err)
	}
	return nil
}

func (s *Store) ListFlowSplitters(ctx context.Context) ([]model.FlowSplitter, error) {
	rows, err := s.q.Query(ctx, `SELECT `+splitterColumns+` FROM flow_splitters ORDER BY created_at_block_number, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FlowSplitter
	for rows.Next() {
		splitter, err := scanFlowSplitter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, splitter)
	}
	return out, rows.Err()
}

func scanFlowSplitter(row pgx.Row) (model.FlowSplitter, error) {
	var f model.FlowSplitter
	var createdTs, createdBlock, updatedTs, updatedBlock int64
	err := row.Scan(
		&f.ID,
		&createdTs,
		&createdBlock,
		&updatedTs,
		&updatedBlock,
		&f.SuperToken,
		&f.FlowSplitterCreator,
		&f.MainReceiver,
		&f.SideReceiver,
		&f.MainReceiverPortion,
		&f.SideReceiverPortion,
		&f.FlowSplitterCreatedEvent,
	)
	if err != nil {
		return model.FlowSplitter{}, err
	}
	f.CreatedAtTimestamp = uint64(createdTs)
	f.CreatedAtBlockNumber = uint64(createdBlock)
	f.UpdatedAtTimestamp = uint64(updatedTs)
	f.UpdatedAtBlockNumber = uint64(updatedBlock)
	return f, nil
}

const streamColumns = `id, created_at_timestamp, created_at_block_number, updated_at_timestamp,
	updated_at_block_number, token, sender, receiver, current_flow_rate`

func (s *Store) GetStream(ctx context.Context, id string) (model.Stream, bool, error) {
	row := s.q.QueryRow(ctx, `SELECT `+streamColumns+` FROM streams WHERE id=$1`, id)
	stream, err := scanStream(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Stream{}, false, nil
		}
		return model.Stream{}, false, err
	}
	return stream, true, nil
}

func (s *Store) SaveStream(ctx context.Context, st model.Stream) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO streams (`+streamColumns+`, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		ON CONFLICT (id)
		DO UPDATE SET
			updated_at_timestamp = EXCLUDED.updated_at_timestamp,
			updated_at_block_number = EXCLUDED.updated_at_block_number,
			current_flow_rate = EXCLUDED.current_flow_rate,
			updated_at = now()
	`,
		st.ID,
		int64(st.CreatedAtTimestamp),
		int64(st.CreatedAtBlockNumber),
		int64(st.UpdatedAtTimestamp),
		int64(st.UpdatedAtBlockNumber),
		st.Token,
		st.Sender,
		st.Receiver,
		st.CurrentFlowRate,
	)
	if err != nil {
		return fmt.Errorf("upsert stream %s: %w", st.ID, err)
	}
	return nil
}

func (s *Store) ListStreams(ctx context.Context) ([]model.Stream, error) {
	rows, err := s.q.Query(ctx, `SELECT `+streamColumns+` FROM streams ORDER BY created_at_block_number, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Stream
	for rows.Next() {
		stream, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, stream)
	}
	return out, rows.Err()
}

func scanStream(row pgx.Row) (model.Stream, error) {
	var st model.Stream
	var createdTs, createdBlock, updatedTs, updatedBlock int64
	err := row.Scan(
		&st.ID,
		&createdTs,
		&createdBlock,
		&updatedTs,
		&updatedBlock,
		&st.Token,
		&st.Sender,
		&st.Receiver,
		&st.CurrentFlowRate,
	)
	if err != nil {
		return model.Stream{}, err
	}
	st.CreatedAtTimestamp = uint64(createdTs)
	st.CreatedAtBlockNumber = uint64(createdBlock)
	st.UpdatedAtTimestamp = uint64(updatedTs)
	st.UpdatedAtBlockNumber = uint64(updatedBlock)
	return st, nil
}

// AddDataSource registers a watched contract, keeping the earliest start block.
func (s *Store) AddDataSource(ctx context.Context, address string, startBlock uint64) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO data_sources (address, start_block, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (address)
		DO UPDATE SET start_block = LEAST(data_sources.start_block, EXCLUDED.start_block)
	`, address, int64(startBlock))
	if err != nil {
		return fmt.Errorf("add data source %s: %w", address, err)
	}
	return nil
}

func (s *Store) DataSources(ctx context.Context) (map[string]uint64, error) {
	rows, err := s.q.Query(ctx, `SELECT address, start_block FROM data_sources`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var address string
		var start int64
		if err := rows.Scan(&address, &start); err != nil {
			return nil, err
		}
		out[address] = uint64(start)
	}
	return out, rows.Err()
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.q.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}
