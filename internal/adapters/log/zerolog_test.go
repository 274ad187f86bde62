package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/ticksync/internal/ports"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithLogger(zerolog.New(&buf))

	l.Info("fetched batch",
		ports.String("pool", "0xabc"),
		ports.Int("count", 32),
		ports.Any("start", int32(3434)),
		ports.Bool("group_boundary", true),
		ports.Duration("duration", 1500*time.Millisecond),
		ports.Err(errors.New("boom")),
	)

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if got["message"] != "fetched batch" || got["level"] != "info" {
		t.Errorf("unexpected envelope: %v", got)
	}
	if got["pool"] != "0xabc" || got["count"] != float64(32) || got["start"] != float64(3434) {
		t.Errorf("unexpected fields: %v", got)
	}
	if got["group_boundary"] != true || got["error"] != "boom" {
		t.Errorf("unexpected fields: %v", got)
	}
}
