package logger

import "testing"

type recordingInstance struct {
	lines []string
	kvs   [][]any
}

func (r *recordingInstance) record(level, message string, keyvals []any) {
	r.lines = append(r.lines, level+":"+message)
	r.kvs = append(r.kvs, keyvals)
}

func (r *recordingInstance) Log(m string, kv ...any)   { r.record("log", m, kv) }
func (r *recordingInstance) Debug(m string, kv ...any) { r.record("debug", m, kv) }
func (r *recordingInstance) Info(m string, kv ...any)  { r.record("info", m, kv) }
func (r *recordingInstance) Warn(m string, kv ...any)  { r.record("warn", m, kv) }
func (r *recordingInstance) Error(m string, kv ...any) { r.record("error", m, kv) }
func (r *recordingInstance) Fatal(m string, kv ...any) { r.record("fatal", m, kv) }

func TestLogger_NoopBeforeInit(t *testing.T) {
	singleton = nil
	if Enabled() {
		t.Fatal("expected logger to be disabled before Init")
	}
	// must not panic
	Info("dropped", "k", "v")
}

func TestLogger_FanOut(t *testing.T) {
	a := &recordingInstance{}
	b := &recordingInstance{}
	Init(a, b)
	defer func() { singleton = nil }()

	Info("hello", "chunk_id", "x")
	Log("plain", "k", 1)
	Debug("dbg")
	Warn("careful")
	Error("boom")

	for _, r := range []*recordingInstance{a, b} {
		want := []string{"info:hello", "log:plain", "debug:dbg", "warn:careful", "error:boom"}
		if len(r.lines) != len(want) {
			t.Fatalf("expected %d lines, got %d (%v)", len(want), len(r.lines), r.lines)
		}
		for i := range want {
			if r.lines[i] != want[i] {
				t.Fatalf("line %d: expected %q, got %q", i, want[i], r.lines[i])
			}
		}
		if len(r.kvs[1]) != 2 {
			t.Fatalf("expected keyvals to be forwarded for Log, got %v", r.kvs[1])
		}
	}
}
