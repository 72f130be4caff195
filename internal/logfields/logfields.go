package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyMode       = "mode"
	KeyAsset      = "asset"
	KeyKind       = "kind"
	KeyPublished  = "published"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyBytes      = "bytes"
	KeyCount      = "count"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyEncoding   = "encoding"
	KeyBuildID    = "build_id"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Mode(m string) slog.Attr          { return slog.String(KeyMode, m) }
func Asset(key string) slog.Attr       { return slog.String(KeyAsset, key) }
func Kind(k string) slog.Attr          { return slog.String(KeyKind, k) }
func Published(p string) slog.Attr     { return slog.String(KeyPublished, p) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func File(f string) slog.Attr          { return slog.String(KeyFile, f) }
func Bytes(n int64) slog.Attr          { return slog.Int64(KeyBytes, n) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }
func Encoding(e string) slog.Attr      { return slog.String(KeyEncoding, e) }
func BuildID(id string) slog.Attr      { return slog.String(KeyBuildID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
