package reconcile

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"flowsplit/internal/metrics"
	"flowsplit/internal/model"
)

const (
	collectionFlowSplitters = "flow_splitters"
	collectionStreams       = "streams"
)

// TokenResolver resolves super token metadata.
type TokenResolver interface {
	TokenMeta(ctx context.Context, token string) (model.TokenMeta, error)
}

// Snapshot is one reconciled view of splitters and the account's open streams.
type Snapshot struct {
	Seq           uint64                     `json:"seq"`
	Account       string                     `json:"account,omitempty"`
	FlowSplitters []model.FlowSplitter       `json:"flow_splitters"`
	Streams       []model.Stream             `json:"streams"`
	Tokens        map[string]model.TokenMeta `json:"tokens"`
	RefreshedAt   time.Time                  `json:"refreshed_at"`
	// Sources names the winning source of each collection.
	Sources map[string]string `json:"sources"`
}

// Options narrows what a refresh returns.
type Options struct {
	// OnlyMine keeps only splitters created by the refreshing account.
	OnlyMine bool
}

// Client merges the indexer and chain views of the same entities.
type Client struct {
	indexer Source
	chain   Source
	tokens  TokenResolver
	opts    Options
	metrics *metrics.ReconcileMetrics
	logger  *zap.Logger
}

// NewClient builds a Client. Either source may be nil, and so may tokens.
func NewClient(indexer, chain Source, tokens TokenResolver, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{indexer: indexer, chain: chain, tokens: tokens, opts: opts, logger: logger}
}

// WithMetrics attaches reconciliation metrics.
func (c *Client) WithMetrics(m *metrics.ReconcileMetrics) *Client {
	c.metrics = m
	return c
}

type fetchResult[T any] struct {
	rows []T
	err  error
}

// Refresh queries both sources for each collection and keeps the larger answer.
// A failing source counts as empty; when both fail the collection is carried
// over from prev.
func (c *Client) Refresh(ctx context.Context, account string, prev *Snapshot) *Snapshot {
	account = strings.ToLower(account)
	snap := &Snapshot{
		Account:     account,
		Tokens:      make(map[string]model.TokenMeta),
		RefreshedAt: time.Now().UTC(),
		Sources:     make(map[string]string),
	}

	splitterFilter := model.SplitterFilter{}
	if c.opts.OnlyMine {
		splitterFilter.Creator = account
	}
	if c.opts.OnlyMine && account == "" {
		snap.FlowSplitters = []model.FlowSplitter{}
		snap.Sources[collectionFlowSplitters] = SourceNone
	} else {
		rows, origin, ok := fetchBoth(ctx, c, collectionFlowSplitters,
			func(ctx context.Context, src Source) ([]model.FlowSplitter, error) {
				return src.FlowSplitters(ctx, splitterFilter)
			})
		if ok {
			snap.FlowSplitters = filterSplitters(rows, splitterFilter)
			snap.Sources[collectionFlowSplitters] = origin
		} else if prev != nil {
			snap.FlowSplitters = prev.FlowSplitters
			snap.Sources[collectionFlowSplitters] = prev.Sources[collectionFlowSplitters]
		}
	}

	receivers := make([]string, 0, len(snap.FlowSplitters))
	for _, splitter := range snap.FlowSplitters {
		receivers = append(receivers, strings.ToLower(splitter.ID))
	}
	streamFilter := model.StreamFilter{Sender: account, Receivers: receivers}

	if account == "" || len(receivers) == 0 {
		snap.Streams = []model.Stream{}
		snap.Sources[collectionStreams] = SourceNone
	} else {
		rows, origin, ok := fetchBoth(ctx, c, collectionStreams,
			func(ctx context.Context, src Source) ([]model.Stream, error) {
				return src.Streams(ctx, streamFilter)
			})
		if ok {
			snap.Streams = filterStreams(rows, streamFilter)
			snap.Sources[collectionStreams] = origin
		} else if prev != nil && prev.Account == account {
			snap.Streams = filterStreams(prev.Streams, streamFilter)
			snap.Sources[collectionStreams] = prev.Sources[collectionStreams]
		}
	}
	if snap.FlowSplitters == nil {
		snap.FlowSplitters = []model.FlowSplitter{}
	}
	if snap.Streams == nil {
		snap.Streams = []model.Stream{}
	}

	c.resolveTokens(ctx, snap)
	return snap
}

// fetchBoth runs the query against both configured sources concurrently and
// waits for both. ok is false when every configured source failed.
func fetchBoth[T any](ctx context.Context, c *Client, collection string, query func(context.Context, Source) ([]T, error)) ([]T, string, bool) {
	var indexerRes, chainRes fetchResult[T]
	var g errgroup.Group
	if c.indexer != nil {
		g.Go(func() error {
			indexerRes.rows, indexerRes.err = query(ctx, c.indexer)
			c.observe(collection, SourceIndexer, len(indexerRes.rows), indexerRes.err)
			return nil
		})
	}
	if c.chain != nil {
		g.Go(func() error {
			chainRes.rows, chainRes.err = query(ctx, c.chain)
			c.observe(collection, SourceChain, len(chainRes.rows), chainRes.err)
			return nil
		})
	}
	_ = g.Wait()

	indexerOK := c.indexer != nil && indexerRes.err == nil
	chainOK := c.chain != nil && chainRes.err == nil
	if !indexerOK && !chainOK {
		c.logger.Error("all sources failed, keeping previous rows",
			zap.String("collection", collection),
			zap.NamedError("indexer_error", indexerRes.err),
			zap.NamedError("chain_error", chainRes.err),
		)
		return nil, "", false
	}

	rows, origin := Select(indexerRes.rows, chainRes.rows)
	c.metrics.Winner(collection, origin)
	if len(chainRes.rows) != len(indexerRes.rows) {
		c.logger.Debug("sources disagree",
			zap.String("collection", collection),
			zap.Int("indexer_rows", len(indexerRes.rows)),
			zap.Int("chain_rows", len(chainRes.rows)),
			zap.String("selected", origin),
		)
	}
	return rows, origin, true
}

func (c *Client) observe(collection, source string, rows int, err error) {
	if err != nil {
		c.metrics.SourceError(collection, source)
		c.logger.Warn("source query failed", zap.String("collection", collection), zap.String("source", source), zap.Error(err))
		return
	}
	c.metrics.Rows(collection, source, rows)
}

func (c *Client) resolveTokens(ctx context.Context, snap *Snapshot) {
	if c.tokens == nil {
		return
	}
	seen := make(map[string]struct{})
	var tokens []string
	for _, splitter := range snap.FlowSplitters {
		if _, ok := seen[splitter.SuperToken]; !ok && splitter.SuperToken != "" {
			seen[splitter.SuperToken] = struct{}{}
			tokens = append(tokens, splitter.SuperToken)
		}
	}
	for _, stream := range snap.Streams {
		if _, ok := seen[stream.Token]; !ok && stream.Token != "" {
			seen[stream.Token] = struct{}{}
			tokens = append(tokens, stream.Token)
		}
	}
	sort.Strings(tokens)

	for _, token := range tokens {
		meta, err := c.tokens.TokenMeta(ctx, token)
		if err != nil {
			c.logger.Warn("token metadata unavailable", zap.String("token", token), zap.Error(err))
			continue
		}
		snap.Tokens[token] = meta
	}
}
