package umapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUpstream marks a well-formed response the API itself flagged as failed.
	ErrUpstream = errors.New("umapi: upstream error")
	// ErrTransport marks a response that never arrived or could not be parsed.
	ErrTransport = errors.New("umapi: transport error")
)

// RawResponse is the outcome of a single HTTP exchange.
type RawResponse struct {
	StatusCode int
	Body       []byte
	Err        error
}

// Payload is a successfully classified response: the entries of the
// top-level result list, still undecoded.
type Payload struct {
	Result []json.RawMessage
}

type envelope struct {
	Result json.RawMessage `json:"result"`
}

const maxMessageLen = 120

// Classify sorts a raw response into Ok, ErrUpstream or ErrTransport.
// A result list is Ok; any other result value is an upstream error status.
// marker is the substring the API uses to flag broken answers; it only
// affects the error message.
func Classify(raw RawResponse, marker string) (*Payload, error) {
	if raw.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, raw.Err)
	}
	if raw.StatusCode < 200 || raw.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, raw.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	result := bytes.TrimSpace(env.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, fmt.Errorf("%w: response has no result", ErrTransport)
	}

	if result[0] == '[' {
		var entries []json.RawMessage
		if err := json.Unmarshal(result, &entries); err != nil {
			return nil, fmt.Errorf("%w: decode result list: %v", ErrTransport, err)
		}
		return &Payload{Result: entries}, nil
	}

	msg := upstreamMessage(result)
	if marker != "" && strings.Contains(msg, marker) {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}
	return nil, fmt.Errorf("%w: unexpected result %s", ErrUpstream, msg)
}

// upstreamMessage renders a non-list result for logging.
func upstreamMessage(result json.RawMessage) string {
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		s = string(result)
	}
	return truncate(s, maxMessageLen)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
