package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders "timestamp LEVEL component: msg k=v" lines. The
// component attribute is folded into the prefix instead of the k=v tail.
// Attrs attached via With are encoded once, when they are attached.
type consoleHandler struct {
	out       io.Writer
	mu        *sync.Mutex
	level     *slog.LevelVar
	addSource bool

	component string
	prefix    string
	fixed     []byte
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{out: w, mu: new(sync.Mutex), level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, rec slog.Record) error {
	line := make([]byte, 0, 192+len(h.fixed))

	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line = ts.UTC().AppendFormat(line, time.RFC3339)
	line = append(line, ' ')
	line = append(line, levelTag(rec.Level)...)
	line = append(line, ' ')

	component := h.component
	var tail []byte
	rec.Attrs(func(attr slog.Attr) bool {
		if h.prefix == "" && attr.Key == FieldComponent {
			if component == "" {
				component = attr.Value.Resolve().String()
			}
			return true
		}
		tail = appendAttr(tail, h.prefix, attr)
		return true
	})

	if component != "" {
		line = append(line, component...)
		line = append(line, ": "...)
	}
	if msg := strings.TrimSpace(rec.Message); msg != "" {
		line = append(line, msg...)
	} else {
		line = append(line, "(no message)"...)
	}

	if h.addSource {
		if src := rec.Source(); src != nil {
			line = append(line, " ["...)
			line = append(line, filepath.Base(src.File)...)
			line = append(line, ':')
			line = strconv.AppendInt(line, int64(src.Line), 10)
			line = append(line, ']')
		}
	}

	line = append(line, h.fixed...)
	line = append(line, tail...)
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(line)
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	fixed := make([]byte, len(h.fixed), len(h.fixed)+len(attrs)*24)
	copy(fixed, h.fixed)
	for _, attr := range attrs {
		if h.prefix == "" && attr.Key == FieldComponent {
			if clone.component == "" {
				clone.component = attr.Value.Resolve().String()
			}
			continue
		}
		fixed = appendAttr(fixed, h.prefix, attr)
	}
	clone.fixed = fixed
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// appendAttr encodes attr as " key=value", qualifying the key with the
// dotted group prefix and expanding group values in place.
func appendAttr(buf []byte, prefix string, attr slog.Attr) []byte {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		members := attr.Value.Group()
		if attr.Key != "" {
			prefix = prefix + attr.Key + "."
		}
		for _, member := range members {
			buf = appendAttr(buf, prefix, member)
		}
		return buf
	}
	if attr.Key == "" {
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, attr.Key...)
	buf = append(buf, '=')
	return appendValue(buf, attr.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		return appendScalar(buf, v.String())
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().UTC().AppendFormat(buf, time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return appendScalar(buf, err.Error())
		}
		return appendScalar(buf, fmt.Sprint(v.Any()))
	default:
		return appendScalar(buf, v.String())
	}
}

// appendScalar quotes values that would break naive k=v splitting.
func appendScalar(buf []byte, s string) []byte {
	plain := s != "" && strings.IndexFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"'
	}) < 0
	if plain {
		return append(buf, s...)
	}
	return strconv.AppendQuote(buf, s)
}

func levelTag(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}
