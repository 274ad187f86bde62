package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/bft-labs/ticksync/internal/domain"
)

// fakeNode answers tickBitmap calls with word value = |index| + 1.
type fakeNode struct {
	t        *testing.T
	failNext int32
	errorID  int
	requests int32
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&n.requests, 1)
	if atomic.AddInt32(&n.failNext, -1) >= 0 {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	var reqs []rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		n.t.Errorf("decode request: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resps := make([]map[string]interface{}, 0, len(reqs))
	for _, req := range reqs {
		if req.Method != "eth_call" {
			n.t.Errorf("method = %s, want eth_call", req.Method)
		}
		args := req.Params[0].(map[string]interface{})
		data := args["data"].(string)
		word := decodeArg(n.t, data)

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if req.ID == n.errorID {
			resp["error"] = map[string]interface{}{"code": -32000, "message": "execution reverted"}
		} else {
			v := word
			if v < 0 {
				v = -v
			}
			val := uint256.NewInt(uint64(v) + 1).Bytes32()
			resp["result"] = "0x" + hex.EncodeToString(val[:])
		}
		resps = append(resps, resp)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resps)
}

func decodeArg(t *testing.T, data string) int64 {
	t.Helper()
	if !strings.HasPrefix(data, "0x"+tickBitmapSelector) {
		t.Fatalf("call data %s lacks selector", data)
	}
	raw, err := hex.DecodeString(data[2+len(tickBitmapSelector):])
	if err != nil || len(raw) != 32 {
		t.Fatalf("bad argument %s: %v", data, err)
	}
	v := new(uint256.Int).SetBytes(raw)
	if raw[0] == 0xff {
		// two's complement negative
		v.Neg(v)
		return -int64(v.Uint64())
	}
	return int64(v.Uint64())
}

func newTestFetcher(t *testing.T, url string) *Fetcher {
	t.Helper()
	cfg := DefaultConfig(url)
	cfg.RetryMax = 3
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	f, err := NewFetcher(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestFetcher_FetchWords(t *testing.T) {
	node := &fakeNode{t: t, errorID: -1}
	ts := httptest.NewServer(node)
	defer ts.Close()

	f := newTestFetcher(t, ts.URL)
	words, err := f.FetchWords(context.Background(), "0xpool", -3, 6)
	if err != nil {
		t.Fatalf("FetchWords: %v", err)
	}
	if len(words) != 6 {
		t.Fatalf("got %d words, want 6", len(words))
	}
	for idx := domain.WordIndex(-3); idx <= 2; idx++ {
		want := uint64(idx)
		if idx < 0 {
			want = uint64(-idx)
		}
		if words[idx] == nil || words[idx].Uint64() != want+1 {
			t.Errorf("word %d = %v, want %d", idx, words[idx], want+1)
		}
	}
}

func TestFetcher_RetriesTransportErrors(t *testing.T) {
	node := &fakeNode{t: t, errorID: -1, failNext: 2}
	ts := httptest.NewServer(node)
	defer ts.Close()

	f := newTestFetcher(t, ts.URL)
	if _, err := f.FetchWords(context.Background(), "0xpool", 0, 3); err != nil {
		t.Fatalf("FetchWords: %v", err)
	}
	if got := atomic.LoadInt32(&node.requests); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestFetcher_ItemErrorFailsBatch(t *testing.T) {
	node := &fakeNode{t: t, errorID: 1}
	ts := httptest.NewServer(node)
	defer ts.Close()

	f := newTestFetcher(t, ts.URL)
	words, err := f.FetchWords(context.Background(), "0xpool", 10, 3)
	if err == nil {
		t.Fatalf("FetchWords succeeded with %d words, want error", len(words))
	}
	if !strings.Contains(err.Error(), "word 11") {
		t.Errorf("error = %v, want it to name word 11", err)
	}
}

func TestFetcher_IncompleteResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"jsonrpc":"2.0","id":0,"result":"0x01"}]`)
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts.URL)
	if _, err := f.FetchWords(context.Background(), "0xpool", 0, 2); !errors.Is(err, ErrIncompleteResponse) {
		t.Errorf("FetchWords error = %v, want ErrIncompleteResponse", err)
	}
}

func TestFetcher_BatchRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":null,"error":{"code":-32005,"message":"batch too large"}}`)
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts.URL)
	_, err := f.FetchWords(context.Background(), "0xpool", 0, 2)
	if err == nil || !strings.Contains(err.Error(), "batch too large") {
		t.Errorf("FetchWords error = %v, want batch too large", err)
	}
}

func TestFetcher_WordOutOfRange(t *testing.T) {
	f := newTestFetcher(t, "http://127.0.0.1:1")
	if _, err := f.FetchWords(context.Background(), "0xpool", 32760, 10); !errors.Is(err, ErrWordOutOfRange) {
		t.Errorf("FetchWords error = %v, want ErrWordOutOfRange", err)
	}
}

func TestEncodeTickBitmapCall(t *testing.T) {
	tests := []struct {
		word domain.WordIndex
		want string
	}{
		{0, "0x5339c296" + strings.Repeat("0", 64)},
		{1, "0x5339c296" + strings.Repeat("0", 63) + "1"},
		{-1, "0x5339c296" + strings.Repeat("f", 64)},
		{-3466, "0x5339c296" + strings.Repeat("f", 60) + "f276"},
	}

	for _, tt := range tests {
		if got := encodeTickBitmapCall(tt.word); got != tt.want {
			t.Errorf("encodeTickBitmapCall(%d) = %s, want %s", tt.word, got, tt.want)
		}
	}
}

func TestNewFetcher_RequiresURL(t *testing.T) {
	if _, err := NewFetcher(Config{}); err == nil {
		t.Errorf("NewFetcher without URL should fail")
	}
}
