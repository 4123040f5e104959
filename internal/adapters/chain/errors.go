package chain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrBlockNotAvailable reports that the node has not applied the
	// requested block yet. Following the head this is expected and transient.
	ErrBlockNotAvailable = errors.New("block not available")

	ErrContentNotFound    = errors.New("content not found")
	ErrNoEndpoint         = errors.New("chain url is required")
	ErrNoSigner           = errors.New("no signer configured")
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrUnexpectedResponse = errors.New("unexpected rpc response")
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is classifies node messages about missing blocks as ErrBlockNotAvailable.
func (e *RPCError) Is(target error) bool {
	return target == ErrBlockNotAvailable && blockMissing(e.Message)
}

var blockMissingHints = []string{
	"unknown block",
	"could not find block",
	"block not found",
	"for nil:nilclass",
}

func blockMissing(msg string) bool {
	msg = strings.ToLower(msg)
	for _, h := range blockMissingHints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return false
}
