// Package rpc fetches tick bitmap words from an Ethereum JSON-RPC node.
//
// Each batch becomes one HTTP request carrying a JSON-RPC batch of eth_call
// requests against the pool's tickBitmap(int16) view.
package rpc

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/holiman/uint256"

	logAdapter "github.com/bft-labs/ticksync/internal/adapters/log"
	"github.com/bft-labs/ticksync/internal/domain"
	"github.com/bft-labs/ticksync/internal/ports"
)

// tickBitmapSelector is the 4-byte selector of tickBitmap(int16).
const tickBitmapSelector = "5339c296"

var (
	// ErrWordOutOfRange is returned for word indices that do not fit the int16 key of the pool.
	ErrWordOutOfRange = errors.New("rpc: word index outside int16")

	// ErrIncompleteResponse is returned when the node omits part of a batch.
	ErrIncompleteResponse = errors.New("rpc: incomplete batch response")
)

// Config holds the connection settings of a Fetcher.
type Config struct {
	URL          string
	BlockTag     string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultConfig returns settings suitable for a public endpoint.
func DefaultConfig(url string) Config {
	return Config{
		URL:          url,
		BlockTag:     "latest",
		Timeout:      30 * time.Second,
		RetryMax:     5,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 10 * time.Second,
	}
}

// Fetcher implements ports.WordFetcher over JSON-RPC.
type Fetcher struct {
	cfg    Config
	client *retryablehttp.Client
	logger ports.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger routes fetcher and transport logs to logger.
func WithLogger(logger ports.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
		f.client.Logger = leveledLogger{inner: logger}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client.HTTPClient = c
	}
}

// NewFetcher creates a fetcher for cfg.URL.
func NewFetcher(cfg Config, opts ...Option) (*Fetcher, error) {
	if cfg.URL == "" {
		return nil, errors.New("rpc: url is required")
	}
	if cfg.BlockTag == "" {
		cfg.BlockTag = "latest"
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.HTTPClient.Timeout = cfg.Timeout

	noop := logAdapter.NewNoopLogger()
	f := &Fetcher{cfg: cfg, client: client, logger: noop}
	client.Logger = leveledLogger{inner: noop}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type callArgs struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

type rpcResponse struct {
	ID     int       `json:"id"`
	Result string    `json:"result"`
	Error  *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// FetchWords reads words start .. start+count-1 of pool in one round trip.
func (f *Fetcher) FetchWords(ctx context.Context, pool string, start domain.WordIndex, count int) (domain.Words, error) {
	if count <= 0 {
		return domain.Words{}, nil
	}
	end := start + domain.WordIndex(count) - 1
	if start < math.MinInt16 || end > math.MaxInt16 {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrWordOutOfRange, start, end)
	}

	reqs := make([]rpcRequest, count)
	for i := range reqs {
		reqs[i] = rpcRequest{
			JSONRPC: "2.0",
			ID:      i,
			Method:  "eth_call",
			Params: []interface{}{
				callArgs{To: pool, Data: encodeTickBitmapCall(start + domain.WordIndex(i))},
				f.cfg.BlockTag,
			},
		}
	}

	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, f.cfg.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("node returned %d: %s", resp.StatusCode, string(data))
	}

	var results []rpcResponse
	if err := json.Unmarshal(data, &results); err != nil {
		// Some nodes answer a rejected batch with a single error object.
		var single rpcResponse
		if jerr := json.Unmarshal(data, &single); jerr == nil && single.Error != nil {
			return nil, single.Error
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	words := make(domain.Words, count)
	for _, r := range results {
		if r.ID < 0 || r.ID >= count {
			continue
		}
		idx := start + domain.WordIndex(r.ID)
		if r.Error != nil {
			return nil, fmt.Errorf("word %d: %w", idx, r.Error)
		}
		v, err := decodeWord(r.Result)
		if err != nil {
			return nil, fmt.Errorf("word %d: %w", idx, err)
		}
		words[idx] = v
	}
	if len(words) != count {
		return nil, fmt.Errorf("%w: got %d of %d words", ErrIncompleteResponse, len(words), count)
	}

	f.logger.Debug("fetched words",
		ports.String("pool", pool),
		ports.Any("start", int32(start)),
		ports.Int("count", count),
	)
	return words, nil
}

// encodeTickBitmapCall ABI-encodes tickBitmap(word). The int16 argument is
// sign-extended to 32 bytes.
func encodeTickBitmapCall(word domain.WordIndex) string {
	var arg [32]byte
	if word < 0 {
		for i := range arg {
			arg[i] = 0xff
		}
	}
	binary.BigEndian.PutUint32(arg[28:], uint32(int32(word)))
	return "0x" + tickBitmapSelector + hex.EncodeToString(arg[:])
}

func decodeWord(result string) (*uint256.Int, error) {
	raw := strings.TrimPrefix(result, "0x")
	if raw == "" {
		return nil, errors.New("empty call result")
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if len(b) > 32 {
		return nil, fmt.Errorf("result has %d bytes, want 32", len(b))
	}
	return new(uint256.Int).SetBytes(b), nil
}

// leveledLogger adapts ports.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	inner ports.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Error(msg, kvFields(keysAndValues)...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, kvFields(keysAndValues)...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debug(msg, kvFields(keysAndValues)...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, kvFields(keysAndValues)...)
}

func kvFields(kv []interface{}) []ports.Field {
	fields := make([]ports.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, ports.Any(key, kv[i+1]))
	}
	return fields
}
