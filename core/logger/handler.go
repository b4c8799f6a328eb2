package logger

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler writes one flat line per record. Keys listed in keyOrder
// come first, the rest follow alphabetically.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	rec := h.build(ctx, r)
	line, err := rec.encode(h.cfg.format, h.cfg.keyOrder)
	if err != nil {
		return err
	}
	return h.cfg.writer.Write(line)
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clone(h.attrs), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clone(h.groups), name)
	return &clone
}

// record is a flattened log line before encoding.
type record map[string]any

func (h *structuredHandler) build(ctx context.Context, r slog.Record) record {
	rec := make(record, 16)
	ts := r.Time.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	rec["level"] = normalizeLevel(r.Level.String())
	if h.cfg.format == formatJSON {
		rec["ts_unix_nano"] = ts.UnixNano()
	}

	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		rec.add(prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.add(prefix, a)
		return true
	})
	rec.fromContext(ctx)

	if rid := rec.str("rid"); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if h.cfg.format == formatJSON {
				rec["rid_full"] = rid
			}
			rec["rid"] = compact
		}
	}
	if rec.str("event") == "" {
		rec["event"] = cmp.Or(r.Message, "unknown")
	}
	if rec.str("component") == "" {
		rec["component"] = "app"
	}
	if _, ok := rec["outcome"]; ok {
		if o, valid := normalizeOutcome(rec.str("outcome")); valid {
			rec["outcome"] = o
		} else {
			delete(rec, "outcome")
		}
	}
	for k, v := range rec {
		if s, ok := v.(string); ok && s == "" {
			delete(rec, k)
		}
	}
	return rec
}

// add flattens groups into dotted keys.
func (rec record) add(prefix string, a slog.Attr) {
	key := a.Key
	switch {
	case key == "":
		key = prefix
	case prefix != "":
		key = prefix + "." + key
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			rec.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := scalar(key, v); ok {
		rec[k] = val
	}
}

// fromContext fills request identifiers the attrs did not set.
func (rec record) fromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	fill := func(key string, val any, zero bool) {
		if _, ok := rec[key]; !ok && !zero {
			rec[key] = val
		}
	}
	rid := RIDFrom(ctx)
	fill("rid", rid, rid == "")
	uid := UserIDFrom(ctx)
	fill("user_id", uid, uid == 0)
	upd := UpdateIDFrom(ctx)
	fill("update_id", upd, upd == 0)
	cid := ChatIDFrom(ctx)
	fill("chat_id", cid, cid == 0)
	hn := HandlerFrom(ctx)
	fill("handler", hn, hn == "")
}

func (rec record) str(key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (rec record) keys(order []string) []string {
	out := make([]string, 0, len(rec))
	for _, k := range order {
		if _, ok := rec[k]; ok && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	head := len(out)
	for k := range rec {
		if !slices.Contains(out[:head], k) {
			out = append(out, k)
		}
	}
	slices.Sort(out[head:])
	return out
}

// encode renders the record as one newline-terminated line.
func (rec record) encode(format logFormat, order []string) ([]byte, error) {
	var buf bytes.Buffer
	if format == formatJSON {
		buf.WriteByte('{')
	}
	for i, k := range rec.keys(order) {
		if format == formatJSON {
			data, err := json.Marshal(rec[k])
			if err != nil {
				return nil, fmt.Errorf("logger: encode %s: %w", k, err)
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Quote(k))
			buf.WriteByte(':')
			buf.Write(data)
			continue
		}
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(kvValue(rec[k]))
	}
	if format == formatJSON {
		buf.WriteByte('}')
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func kvValue(v any) string {
	s := fmt.Sprint(v)
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

// scalar converts a resolved value to its logged form. Durations are logged as
// whole milliseconds under a "_ms" key.
func scalar(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return msKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func msKey(key string) string {
	if key == "duration" {
		return "duration_ms"
	}
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}
