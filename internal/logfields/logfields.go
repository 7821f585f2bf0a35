// Package logfields holds the canonical slog attribute names used across
// docplan so log consumers see the same keys from every package.
package logfields

import (
	"log/slog"
	"time"
)

const (
	KeyRunID      = "run_id"
	KeyTier       = "tier"
	KeySource     = "source"
	KeyTarget     = "target"
	KeyKind       = "kind"
	KeyRule       = "rule"
	KeyFormat     = "format"
	KeyReason     = "reason"
	KeyPlanned    = "planned"
	KeyFresh      = "fresh"
	KeyFailed     = "failed"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyError      = "error"
)

func RunID(id string) slog.Attr    { return slog.String(KeyRunID, id) }
func Tier(name string) slog.Attr   { return slog.String(KeyTier, name) }
func Source(path string) slog.Attr { return slog.String(KeySource, path) }
func Target(path string) slog.Attr { return slog.String(KeyTarget, path) }
func Kind(kind string) slog.Attr   { return slog.String(KeyKind, kind) }
func Rule(name string) slog.Attr   { return slog.String(KeyRule, name) }
func Format(f string) slog.Attr    { return slog.String(KeyFormat, f) }
func Reason(r string) slog.Attr    { return slog.String(KeyReason, r) }
func Planned(n int) slog.Attr      { return slog.Int(KeyPlanned, n) }
func Fresh(n int) slog.Attr        { return slog.Int(KeyFresh, n) }
func Failed(n int) slog.Attr       { return slog.Int(KeyFailed, n) }
func ExitCode(code int) slog.Attr  { return slog.Int(KeyExitCode, code) }
func Path(p string) slog.Attr      { return slog.String(KeyPath, p) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
