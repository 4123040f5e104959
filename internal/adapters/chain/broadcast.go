package chain

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/pkg/logger"
)

const txExpiration = 60 * time.Second

// Transaction is an unsigned or signed condenser transaction.
type Transaction struct {
	RefBlockNum    uint16   `json:"ref_block_num"`
	RefBlockPrefix uint32   `json:"ref_block_prefix"`
	Expiration     string   `json:"expiration"`
	Operations     [][2]any `json:"operations"`
	Extensions     []any    `json:"extensions"`
	Signatures     []string `json:"signatures"`
}

// Signer produces signatures for a transaction using a voter's credential.
type Signer interface {
	Sign(ctx context.Context, tx Transaction, credential, chainID string) ([]string, error)
}

// Broadcast signs a vote operation for voter and submits it synchronously.
func (c *Client) Broadcast(ctx context.Context, voter model.Voter, op model.VoteOp) (model.Receipt, error) {
	if c.signer == nil {
		return model.Receipt{}, ErrNoSigner
	}

	props, err := c.Properties(ctx)
	if err != nil {
		return model.Receipt{}, err
	}
	tx, err := newVoteTransaction(props, op)
	if err != nil {
		return model.Receipt{}, err
	}

	sigs, err := c.signer.Sign(ctx, tx, voter.Credential, c.chainID)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("sign vote for %s: %w", voter.Name, err)
	}
	tx.Signatures = sigs

	raw, err := c.call(ctx, "condenser_api.broadcast_transaction_synchronous", tx)
	if err != nil {
		return model.Receipt{}, err
	}

	return model.Receipt{TxID: gjson.GetBytes(raw, "id").String()}, nil
}

func newVoteTransaction(props Properties, op model.VoteOp) (Transaction, error) {
	id, err := hex.DecodeString(props.HeadBlockID)
	if err != nil || len(id) < 8 {
		return Transaction{}, fmt.Errorf("head block id %q: %w", props.HeadBlockID, ErrUnexpectedResponse)
	}

	return Transaction{
		RefBlockNum:    uint16(props.HeadBlockNumber & 0xffff),
		RefBlockPrefix: binary.LittleEndian.Uint32(id[4:8]),
		Expiration:     props.Time.Add(txExpiration).UTC().Format(chainTimeLayout),
		Operations:     [][2]any{{"vote", op}},
		Extensions:     []any{},
		Signatures:     []string{},
	}, nil
}

// RemoteSigner delegates signing to an HTTP signing service. Credentials are
// sent to the service and never logged.
type RemoteSigner struct {
	url  string
	http *http.Client
}

// NewRemoteSigner creates a signer posting to url.
func NewRemoteSigner(url string, hc *http.Client) *RemoteSigner {
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &RemoteSigner{url: url, http: hc}
}

type signRequest struct {
	Transaction Transaction `json:"transaction"`
	Credential  string      `json:"credential"`
	ChainID     string      `json:"chain_id,omitempty"`
}

// Sign posts the transaction and returns the signatures from the response.
func (s *RemoteSigner) Sign(ctx context.Context, tx Transaction, credential, chainID string) ([]string, error) {
	body, err := json.Marshal(signRequest{Transaction: tx, Credential: credential, ChainID: chainID})
	if err != nil {
		return nil, fmt.Errorf("encode sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read sign response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signer status %d: %s: %w", resp.StatusCode, gjson.GetBytes(raw, "error").String(), ErrUnexpectedResponse)
	}

	var sigs []string
	for _, sig := range gjson.GetBytes(raw, "signatures").Array() {
		sigs = append(sigs, sig.String())
	}
	if len(sigs) == 0 {
		return nil, fmt.Errorf("signer returned no signatures: %w", ErrUnexpectedResponse)
	}
	return sigs, nil
}

// DryRunBroadcaster accepts every vote without submitting anything.
type DryRunBroadcaster struct {
	logger logger.Logger
}

// NewDryRunBroadcaster creates a broadcaster that only logs.
func NewDryRunBroadcaster(l logger.Logger) *DryRunBroadcaster {
	if l == nil {
		l = logger.Get().Named("dry-run")
	}
	return &DryRunBroadcaster{logger: l}
}

// Broadcast logs the vote and reports a dry-run receipt.
func (d *DryRunBroadcaster) Broadcast(ctx context.Context, voter model.Voter, op model.VoteOp) (model.Receipt, error) {
	d.logger.Debug(ctx, "dry run vote",
		logger.String("voter", voter.Name),
		logger.String("content", op.Author+"/"+op.Permlink),
		logger.Int("weight", op.Weight),
	)
	return model.Receipt{DryRun: true}, nil
}
