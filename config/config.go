// Package config implements the configuration surface enumerated in
// spec.md §6.4: a plain struct produced by Default and overridden
// field-by-field by the caller, generalizing reader/file.Configuration's
// "just a password field" + NewDefaultConfiguration shape to the full set
// of knobs this design's parser and document facade consult.
package config

import "github.com/hexapdf-go/hexacore/internal/xlog"

// OnCorrectableError is invoked for every malformed-but-recoverable
// construct the parser works around instead of failing on outright:
// a bad xref entry, a dangling reference, a stream Length mismatch seen
// before Validate runs. msg describes the correction, pos is the byte
// offset it was found at (-1 if not applicable). Returning true asks the
// caller to escalate the condition to a fatal error after all.
type OnCorrectableError func(msg string, pos int64) bool

// Task is a named, document-level transformation a caller registers and
// later looks up by name, via Document.RunTask. doc is typed any rather
// than *document.Document because package document already depends on
// config (for the Config field on Document); config importing document
// back would cycle, so a Task type-asserts doc to *document.Document
// itself.
type Task func(doc any) error

// Config carries every key spec.md §6.4 names plus the ambient logging
// seam. The zero value is not meant to be used directly; start from
// Default and override only the fields that differ.
type Config struct {
	// AutoDecrypt holds the auto-decrypt setting. Nothing in this module
	// reads it: document.Open sets up no decryption, whether or not the
	// trailer carries an Encrypt entry.
	AutoDecrypt bool

	// OnCorrectableError receives every correctable parse problem. A nil
	// callback accepts every correction silently (never escalates).
	OnCorrectableError OnCorrectableError

	// TryXRefReconstruction: if false, a broken xref chain is never
	// rebuilt by brute-force object scanning and load fails outright
	// instead.
	TryXRefReconstruction bool

	// TypeMap and SubtypeMap mirror spec.md's object.type_map /
	// object.subtype_map registries. Values must be document.WrapperFunc;
	// the field is typed any rather than that because config cannot
	// import document without creating the same cycle Task avoids.
	// Document.SetConfig applies every entry that type-asserts cleanly
	// to its own RegisterType/RegisterSubtype the moment a Config is
	// installed (by New or Open), so staging a registration here before
	// a Document exists has the same effect as calling RegisterType
	// after the fact. An entry whose value is not a WrapperFunc is
	// silently skipped rather than panicking.
	TypeMap    map[string]any
	SubtypeMap map[string]any

	// TaskMap holds named document-level transformations a caller can
	// look up and run by name.
	TaskMap map[string]Task

	// Logger receives Debug/Warn/Error events from the parser's
	// correctable-error path and from xref/object-stream reconstruction.
	// Never nil after Default; xlog's own helpers tolerate nil anyway.
	Logger xlog.Logger
}

// Default returns the configuration this design falls back to when a
// caller supplies none: auto-decryption on, reconstruction attempted, no
// callback, a no-op logger — the generalization of
// reader/file.NewDefaultConfiguration's "everything off/empty" default
// to this design's larger knob set.
func Default() *Config {
	return &Config{
		AutoDecrypt:           true,
		TryXRefReconstruction: true,
		TypeMap:               make(map[string]any),
		SubtypeMap:            make(map[string]any),
		TaskMap:               make(map[string]Task),
		Logger:                xlog.Nop,
	}
}

// Correctable reports the correction to both the callback (if any) and
// the logger, returning whether the caller should escalate it to a fatal
// error (the callback's answer; false when none is set).
func (c *Config) Correctable(msg string, pos int64) (escalate bool) {
	xlog.Warn(c.Logger, msg, "pos", pos)
	if c.OnCorrectableError == nil {
		return false
	}
	return c.OnCorrectableError(msg, pos)
}
