package chain

import (
	"net/http"
	"time"

	"github.com/okian/trailvote/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for RPC calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPollInterval sets how long a caught-up subscription waits before
// asking the node for a new tip.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithSigner enables Broadcast.
func WithSigner(s Signer) Option {
	return func(c *Client) {
		c.signer = s
	}
}

// WithChainID sets the chain id passed to the signer.
func WithChainID(id string) Option {
	return func(c *Client) {
		c.chainID = id
	}
}
