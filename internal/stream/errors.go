package stream

import "errors"

var errContentFetch = errors.New("content fetch failed")
