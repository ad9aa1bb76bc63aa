package voice

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestAuditLogger_RecordShape(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log.jsonl")
	logger, err := NewAuditLogger(path)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	defer logger.Close()

	if err := logger.Log(EventFallback, ptr("mom"), ptr(0.63456), ptr("single_candidate: mom"), 1.234); err != nil {
		t.Fatalf("Log: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rec AuditRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Event != EventFallback || *rec.UserID != "mom" {
		t.Errorf("rec = %+v", rec)
	}
	if *rec.Confidence != 0.63 {
		t.Errorf("confidence = %f, want rounded 0.63", *rec.Confidence)
	}
	if rec.AudioDurationSeconds != 1.23 {
		t.Errorf("duration = %f, want rounded 1.23", rec.AudioDurationSeconds)
	}
	if rec.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestAuditLogger_NullFields(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log.jsonl")
	logger, err := NewAuditLogger(path)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	defer logger.Close()

	if err := logger.Log(EventNoSpeech, nil, nil, nil, 0.5); err != nil {
		t.Fatalf("Log: %v", err)
	}
	raw, _ := os.ReadFile(path)
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"user_id", "confidence", "fallback_reason"} {
		v, ok := generic[key]
		if !ok || v != nil {
			t.Errorf("%s = %v, want explicit null", key, v)
		}
	}
}

func TestAuditLogger_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log.jsonl")
	logger, err := NewAuditLogger(path)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	defer logger.Close()

	const writers = 20
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := "dad"
			if w%2 == 0 {
				user = "mom"
			}
			for range perWriter {
				logger.Log(EventIdentified, ptr(user), ptr(0.9), nil, 1.0)
			}
		}()
	}
	wg.Wait()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	count := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec AuditRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("interleaved or corrupt line %q: %v", sc.Text(), err)
		}
		count++
	}
	if count != writers*perWriter {
		t.Errorf("line count = %d, want %d", count, writers*perWriter)
	}
}
