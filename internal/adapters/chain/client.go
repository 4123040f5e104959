// Package chain talks to a Steem-compatible node over JSON-RPC: it reads
// content and vote operations and submits signed vote transactions.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/pkg/logger"
)

const (
	defaultPollInterval = time.Second
	defaultHTTPTimeout  = 15 * time.Second
	maxResponseBytes    = 16 << 20

	// chainTimeLayout is the node's timestamp format; times are UTC.
	chainTimeLayout = "2006-01-02T15:04:05"
)

// Client is a JSON-RPC client for the condenser_api.
type Client struct {
	url          string
	http         *http.Client
	logger       logger.Logger
	pollInterval time.Duration
	signer       Signer
	chainID      string

	ids atomic.Uint64
}

// NewClient creates a client for the node at url.
func NewClient(url string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrNoEndpoint
	}

	c := &Client{
		url:          url,
		http:         &http.Client{Timeout: defaultHTTPTimeout},
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("chain")
	}

	return c, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call performs one RPC and returns the raw result. A JSON null result is
// returned as nil.
func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: c.ids.Add(1)})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: http status %d: %w", method, resp.StatusCode, ErrUnexpectedResponse)
	}

	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, out.Error)
	}
	if len(out.Result) == 0 || string(out.Result) == "null" {
		return nil, nil
	}

	return out.Result, nil
}

// GetContent fetches a snapshot of a post or comment.
func (c *Client) GetContent(ctx context.Context, author, permlink string) (model.Content, error) {
	raw, err := c.call(ctx, "condenser_api.get_content", author, permlink)
	if err != nil {
		return model.Content{}, err
	}

	r := gjson.ParseBytes(raw)
	// Missing content comes back as an empty object.
	if r.Get("author").String() == "" {
		return model.Content{}, fmt.Errorf("%s/%s: %w", author, permlink, ErrContentNotFound)
	}

	content := model.Content{
		Author:       r.Get("author").String(),
		Permlink:     r.Get("permlink").String(),
		ParentAuthor: r.Get("parent_author").String(),
		Tags:         parseTags(r.Get("json_metadata").String()),
		Created:      parseTime(r.Get("created").String()),
	}
	for _, v := range r.Get("active_votes.#.voter").Array() {
		content.ActiveVoters = append(content.ActiveVoters, v.String())
	}

	return content, nil
}

// parseTags reads json_metadata.tags. Malformed metadata yields no tags.
func parseTags(meta string) []string {
	if meta == "" || !gjson.Valid(meta) {
		return nil
	}
	tags := gjson.Get(meta, "tags")
	if !tags.IsArray() {
		return nil
	}
	var out []string
	for _, t := range tags.Array() {
		if t.Type == gjson.String {
			out = append(out, t.String())
		}
	}
	return out
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(chainTimeLayout, strings.TrimSuffix(s, "Z"), time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Properties is the subset of dynamic global properties the service uses.
type Properties struct {
	HeadBlockNumber          uint32
	HeadBlockID              string
	LastIrreversibleBlockNum uint32
	Time                     time.Time
}

// Tip returns the newest block the given mode may read.
func (p Properties) Tip(mode model.Mode) uint32 {
	if mode == model.ModeHead {
		return p.HeadBlockNumber
	}
	return p.LastIrreversibleBlockNum
}

// Properties fetches the node's dynamic global properties.
func (c *Client) Properties(ctx context.Context) (Properties, error) {
	raw, err := c.call(ctx, "condenser_api.get_dynamic_global_properties")
	if err != nil {
		return Properties{}, err
	}
	if raw == nil {
		return Properties{}, fmt.Errorf("dynamic global properties: %w", ErrUnexpectedResponse)
	}

	r := gjson.ParseBytes(raw)
	return Properties{
		HeadBlockNumber:          uint32(r.Get("head_block_number").Uint()),
		HeadBlockID:              r.Get("head_block_id").String(),
		LastIrreversibleBlockNum: uint32(r.Get("last_irreversible_block_num").Uint()),
		Time:                     parseTime(r.Get("time").String()),
	}, nil
}

// OpsInBlock returns the vote operations in block num, in chain order.
// Other operation types are skipped.
func (c *Client) OpsInBlock(ctx context.Context, num uint32) ([]model.VoteEvent, error) {
	raw, err := c.call(ctx, "condenser_api.get_ops_in_block", num, false)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("block %d: %w", num, ErrBlockNotAvailable)
	}

	var events []model.VoteEvent
	for _, op := range gjson.ParseBytes(raw).Array() {
		ev, ok := parseVote(op)
		if !ok {
			continue
		}
		if ev.Block == 0 {
			ev.Block = num
		}
		events = append(events, ev)
	}
	return events, nil
}

// parseVote accepts both the condenser ["vote", {...}] form and the
// {"type": "vote_operation", "value": {...}} form.
func parseVote(entry gjson.Result) (model.VoteEvent, bool) {
	op := entry.Get("op")
	var body gjson.Result
	switch {
	case op.IsArray() && op.Get("0").String() == "vote":
		body = op.Get("1")
	case op.Get("type").String() == "vote_operation":
		body = op.Get("value")
	default:
		return model.VoteEvent{}, false
	}

	return model.VoteEvent{
		Voter:     body.Get("voter").String(),
		Author:    body.Get("author").String(),
		Permlink:  body.Get("permlink").String(),
		Weight:    int(body.Get("weight").Int()),
		Timestamp: parseTime(entry.Get("timestamp").String()),
		Block:     uint32(entry.Get("block").Uint()),
		TrxID:     entry.Get("trx_id").String(),
		TrxNum:    int(entry.Get("trx_in_block").Int()),
		OpIndex:   int(entry.Get("op_in_trx").Int()),
	}, true
}
