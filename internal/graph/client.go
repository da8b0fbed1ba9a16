// Package graph queries the hosted event indexer over GraphQL.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"flowsplit/internal/model"
)

// PageSize is the largest page the indexer returns for one query.
const PageSize = 1000

const flowSplittersQuery = `query getFlowSplitters($first: Int!, $skip: Int!, $where: FlowSplitter_filter) {
  result: flowSplitters(first: $first, skip: $skip, where: $where, orderBy: createdAtBlockNumber, orderDirection: asc) {
    id
    createdAtTimestamp
    createdAtBlockNumber
    updatedAtTimestamp
    updatedAtBlockNumber
    superToken
    flowSplitterCreator
    mainReceiver
    sideReceiver
    mainReceiverPortion
    sideReceiverPortion
    flowSplitterCreatedEvent { id }
  }
}`

const streamsQuery = `query getStreams($first: Int!, $skip: Int!, $where: Stream_filter) {
  result: streams(first: $first, skip: $skip, where: $where, orderBy: createdAtBlockNumber, orderDirection: asc) {
    id
    createdAtTimestamp
    createdAtBlockNumber
    updatedAtTimestamp
    updatedAtBlockNumber
    currentFlowRate
    token { id }
    sender { id }
    receiver { id }
  }
}`

// Client talks to a GraphQL endpoint serving the flow splitter schema.
type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}, logger: logger}
}

type request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

type entityRef struct {
	ID string `json:"id"`
}

type flowSplitterRow struct {
	ID                       string     `json:"id"`
	CreatedAtTimestamp       string     `json:"createdAtTimestamp"`
	CreatedAtBlockNumber     string     `json:"createdAtBlockNumber"`
	UpdatedAtTimestamp       string     `json:"updatedAtTimestamp"`
	UpdatedAtBlockNumber     string     `json:"updatedAtBlockNumber"`
	SuperToken               string     `json:"superToken"`
	FlowSplitterCreator      string     `json:"flowSplitterCreator"`
	MainReceiver             string     `json:"mainReceiver"`
	SideReceiver             string     `json:"sideReceiver"`
	MainReceiverPortion      string     `json:"mainReceiverPortion"`
	SideReceiverPortion      string     `json:"sideReceiverPortion"`
	FlowSplitterCreatedEvent *entityRef `json:"flowSplitterCreatedEvent"`
}

type streamRow struct {
	ID                   string    `json:"id"`
	CreatedAtTimestamp   string    `json:"createdAtTimestamp"`
	CreatedAtBlockNumber string    `json:"createdAtBlockNumber"`
	UpdatedAtTimestamp   string    `json:"updatedAtTimestamp"`
	UpdatedAtBlockNumber string    `json:"updatedAtBlockNumber"`
	CurrentFlowRate      string    `json:"currentFlowRate"`
	Token                entityRef `json:"token"`
	Sender               entityRef `json:"sender"`
	Receiver             entityRef `json:"receiver"`
}

// FlowSplitters returns every splitter matching filter, following pagination.
func (c *Client) FlowSplitters(ctx context.Context, filter model.SplitterFilter) ([]model.FlowSplitter, error) {
	where := map[string]interface{}{}
	if filter.Creator != "" {
		where["flowSplitterCreator"] = strings.ToLower(filter.Creator)
	}

	var out []model.FlowSplitter
	for skip := 0; ; skip += PageSize {
		var page struct {
			Result []flowSplitterRow `json:"result"`
		}
		if err := c.query(ctx, flowSplittersQuery, pageVars(skip, where), &page); err != nil {
			return nil, fmt.Errorf("getFlowSplitters: %w", err)
		}
		for _, row := range page.Result {
			splitter, err := row.toModel()
			if err != nil {
				return nil, fmt.Errorf("flow splitter %s: %w", row.ID, err)
			}
			out = append(out, splitter)
		}
		if len(page.Result) < PageSize {
			break
		}
	}
	return out, nil
}

// Streams returns open streams from filter.Sender into filter.Receivers.
// An empty receiver set matches nothing and skips the query.
func (c *Client) Streams(ctx context.Context, filter model.StreamFilter) ([]model.Stream, error) {
	if len(filter.Receivers) == 0 {
		return nil, nil
	}
	receivers := make([]string, 0, len(filter.Receivers))
	for _, receiver := range filter.Receivers {
		receivers = append(receivers, strings.ToLower(receiver))
	}
	where := map[string]interface{}{
		"currentFlowRate_gt": "0",
		"sender":             strings.ToLower(filter.Sender),
		"receiver_in":        receivers,
	}

	var out []model.Stream
	for skip := 0; ; skip += PageSize {
		var page struct {
			Result []streamRow `json:"result"`
		}
		if err := c.query(ctx, streamsQuery, pageVars(skip, where), &page); err != nil {
			return nil, fmt.Errorf("getStreams: %w", err)
		}
		for _, row := range page.Result {
			stream, err := row.toModel()
			if err != nil {
				return nil, fmt.Errorf("stream %s: %w", row.ID, err)
			}
			out = append(out, stream)
		}
		if len(page.Result) < PageSize {
			break
		}
	}
	return out, nil
}

func pageVars(skip int, where map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"first": PageSize,
		"skip":  skip,
		"where": where,
	}
}

func (c *Client) query(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(request{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(raw, 256))
	}

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		msgs := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	if len(decoded.Data) == 0 || string(decoded.Data) == "null" {
		return fmt.Errorf("empty data")
	}
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	c.logger.Debug("graphql query", zap.Int("bytes", len(raw)), zap.Any("skip", vars["skip"]))
	return nil
}

func truncate(raw []byte, n int) string {
	if len(raw) > n {
		return string(raw[:n]) + "..."
	}
	return string(raw)
}

func (r flowSplitterRow) toModel() (model.FlowSplitter, error) {
	var (
		f   model.FlowSplitter
		err error
	)
	f.ID = strings.ToLower(r.ID)
	if f.CreatedAtTimestamp, err = parseUint("createdAtTimestamp", r.CreatedAtTimestamp); err != nil {
		return f, err
	}
	if f.CreatedAtBlockNumber, err = parseUint("createdAtBlockNumber", r.CreatedAtBlockNumber); err != nil {
		return f, err
	}
	if f.UpdatedAtTimestamp, err = parseUint("updatedAtTimestamp", r.UpdatedAtTimestamp); err != nil {
		return f, err
	}
	if f.UpdatedAtBlockNumber, err = parseUint("updatedAtBlockNumber", r.UpdatedAtBlockNumber); err != nil {
		return f, err
	}
	if f.MainReceiverPortion, err = parseInt("mainReceiverPortion", r.MainReceiverPortion); err != nil {
		return f, err
	}
	if f.SideReceiverPortion, err = parseInt("sideReceiverPortion", r.SideReceiverPortion); err != nil {
		return f, err
	}
	f.SuperToken = strings.ToLower(r.SuperToken)
	f.FlowSplitterCreator = strings.ToLower(r.FlowSplitterCreator)
	f.MainReceiver = strings.ToLower(r.MainReceiver)
	f.SideReceiver = strings.ToLower(r.SideReceiver)
	if r.FlowSplitterCreatedEvent != nil {
		f.FlowSplitterCreatedEvent = r.FlowSplitterCreatedEvent.ID
	}
	return f, nil
}

func (r streamRow) toModel() (model.Stream, error) {
	var (
		s   model.Stream
		err error
	)
	s.ID = strings.ToLower(r.ID)
	if s.CreatedAtTimestamp, err = parseUint("createdAtTimestamp", r.CreatedAtTimestamp); err != nil {
		return s, err
	}
	if s.CreatedAtBlockNumber, err = parseUint("createdAtBlockNumber", r.CreatedAtBlockNumber); err != nil {
		return s, err
	}
	if s.UpdatedAtTimestamp, err = parseUint("updatedAtTimestamp", r.UpdatedAtTimestamp); err != nil {
		return s, err
	}
	if s.UpdatedAtBlockNumber, err = parseUint("updatedAtBlockNumber", r.UpdatedAtBlockNumber); err != nil {
		return s, err
	}
	s.CurrentFlowRate = r.CurrentFlowRate
	s.Token = strings.ToLower(r.Token.ID)
	s.Sender = strings.ToLower(r.Sender.ID)
	s.Receiver = strings.ToLower(r.Receiver.ID)
	return s, nil
}

func parseUint(field, value string) (uint64, error) {
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return v, nil
}

func parseInt(field, value string) (int64, error) {
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return v, nil
}
