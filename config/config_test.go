package config

import (
	"testing"

	"github.com/hexapdf-go/hexacore/internal/xlog"
)

func TestDefaultIsReadyToUse(t *testing.T) {
	c := Default()
	if !c.AutoDecrypt || !c.TryXRefReconstruction {
		t.Fatalf("got %+v, want auto-decrypt and reconstruction on", c)
	}
	if c.Logger == nil {
		t.Fatalf("expected a non-nil default logger")
	}
	if c.TaskMap == nil || c.TypeMap == nil || c.SubtypeMap == nil {
		t.Fatalf("expected Default's maps to be ready to populate")
	}
}

func TestCorrectableWithoutCallbackNeverEscalates(t *testing.T) {
	c := Default()
	if c.Correctable("bad xref entry", 42) {
		t.Fatalf("expected no escalation when OnCorrectableError is nil")
	}
}

func TestCorrectableDefersToCallback(t *testing.T) {
	c := Default()
	var gotMsg string
	var gotPos int64
	c.OnCorrectableError = func(msg string, pos int64) bool {
		gotMsg, gotPos = msg, pos
		return true
	}
	if !c.Correctable("dangling reference", 7) {
		t.Fatalf("expected escalation when the callback returns true")
	}
	if gotMsg != "dangling reference" || gotPos != 7 {
		t.Fatalf("got %q, %d", gotMsg, gotPos)
	}
}

func TestCorrectableLogsThroughConfiguredLogger(t *testing.T) {
	c := Default()
	var logged bool
	c.Logger = xlog.Func(func(level xlog.Level, msg string, keyvals ...any) { logged = true })
	c.Correctable("stream Length mismatch", 100)
	if !logged {
		t.Fatalf("expected Correctable to log through c.Logger")
	}
}
