package report

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlog_WritesEventKindAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	r := NewSlog(NewLogger(&buf, slog.LevelDebug))

	r.Report(context.Background(), Event{
		Kind:    KindPhase,
		Level:   slog.LevelInfo,
		Message: "parsed",
		Attrs:   []slog.Attr{slog.Int("files", 3)},
	})

	out := buf.String()
	assert.Contains(t, out, "msg=parsed")
	assert.Contains(t, out, "event=phase")
	assert.Contains(t, out, "files=3")
}

func TestSlog_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	r := NewSlog(NewLogger(&buf, slog.LevelWarn))
	r.Report(context.Background(), Event{Kind: KindPhase, Level: slog.LevelInfo, Message: "quiet"})
	assert.Empty(t, buf.String())
}

func TestSlog_NilLogger(t *testing.T) {
	NewSlog(nil).Report(context.Background(), Event{Message: "dropped"})
}

func TestRecorder(t *testing.T) {
	t.Parallel()
	var rec Recorder
	ctx := context.Background()
	rec.Report(ctx, Event{Kind: KindPhase, Message: "a"})
	rec.Report(ctx, Event{Kind: KindUnrepresentable, Message: "b"})
	rec.Report(ctx, Event{Kind: KindPhase, Message: "c"})

	require.Len(t, rec.Events(), 3)
	phases := rec.OfKind(KindPhase)
	require.Len(t, phases, 2)
	assert.Equal(t, "c", phases[1].Message)
}

func TestMulti(t *testing.T) {
	t.Parallel()
	var a, b Recorder
	Multi(&a, Nop, &b).Report(context.Background(), Event{Message: "x"})
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"trace", LevelTrace, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenLog_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "lucid.log")
	w, closeFn, err := OpenLog(path)
	require.NoError(t, err)
	NewLogger(w, slog.LevelInfo).Info("hello")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
}

func TestOpenLog_Stderr(t *testing.T) {
	t.Parallel()
	w, closeFn, err := OpenLog("-")
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, w)
	assert.NoError(t, closeFn())
}

func TestComponent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Component(NewLogger(&buf, slog.LevelInfo), "store").Info("opened")
	assert.Contains(t, buf.String(), "component=store")
	assert.Nil(t, Component(nil, "x"))
}
