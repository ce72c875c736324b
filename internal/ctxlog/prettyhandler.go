// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package ctxlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/TylerBrock/colorjson"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	// ErrMarshalAttribute is returned when the record attributes cannot be rendered.
	ErrMarshalAttribute = errors.New("error when marshaling attribute")
	// ErrIoWrite is returned when the formatted record cannot be written.
	ErrIoWrite = errors.New("error when writing to output")
)

// TimeFormat is the timestamp layout used in pretty log lines.
const TimeFormat = "[15:04:05.000]"

var (
	debugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// PrettyHandler renders records as `[time] LEVEL: message {attrs}` with the attributes
// formatted as indented JSON. Attribute collection is delegated to a JSON handler writing
// into a shared buffer.
type PrettyHandler struct {
	inner            slog.Handler
	replace          func([]string, slog.Attr) slog.Attr
	buf              *bytes.Buffer
	mu               *sync.Mutex
	writer           io.Writer
	colour           bool
	outputEmptyAttrs bool
}

// Option configures a PrettyHandler.
type Option func(h *PrettyHandler)

// WithDestinationWriter sets where formatted records are written. Defaults to stderr.
func WithDestinationWriter(w io.Writer) Option {
	return func(h *PrettyHandler) {
		h.writer = w
	}
}

// WithColour forces coloured output.
func WithColour() Option {
	return func(h *PrettyHandler) {
		h.colour = true
	}
}

// WithAutoColour enables colour when stderr is a terminal and NO_COLOR is unset.
func WithAutoColour() Option {
	return func(h *PrettyHandler) {
		_, noColour := os.LookupEnv("NO_COLOR")
		h.colour = !noColour && term.IsTerminal(int(os.Stderr.Fd()))
	}
}

// WithOutputEmptyAttrs prints `{}` for records without attributes.
func WithOutputEmptyAttrs() Option {
	return func(h *PrettyHandler) {
		h.outputEmptyAttrs = true
	}
}

// NewPrettyHandler creates a PrettyHandler. handlerOptions may be nil.
func NewPrettyHandler(handlerOptions *slog.HandlerOptions, options ...Option) *PrettyHandler {
	if handlerOptions == nil {
		handlerOptions = &slog.HandlerOptions{}
	}

	buf := &bytes.Buffer{}
	h := &PrettyHandler{
		buf: buf,
		inner: slog.NewJSONHandler(buf, &slog.HandlerOptions{
			Level:       handlerOptions.Level,
			AddSource:   handlerOptions.AddSource,
			ReplaceAttr: suppressBuiltins(handlerOptions.ReplaceAttr),
		}),
		replace: handlerOptions.ReplaceAttr,
		mu:      &sync.Mutex{},
		writer:  os.Stderr,
	}

	for _, opt := range options {
		opt(h)
	}

	return h
}

// Enabled implements slog.Handler.
func (h *PrettyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// WithAttrs implements slog.Handler.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.inner = h.inner.WithAttrs(attrs)

	return &c
}

// WithGroup implements slog.Handler.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.inner = h.inner.WithGroup(name)

	return &c
}

// Handle implements slog.Handler.
func (h *PrettyHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs, err := h.collectAttrs(ctx, r)
	if err != nil {
		return err
	}

	var out strings.Builder

	if ts, ok := h.builtin(slog.TimeKey, slog.StringValue(r.Time.Format(TimeFormat))); ok {
		out.WriteString(h.paint(dimStyle, ts))
		out.WriteByte(' ')
	}

	if lvl, ok := h.builtin(slog.LevelKey, slog.AnyValue(r.Level)); ok {
		out.WriteString(h.paint(levelStyle(r.Level), lvl+":"))
		out.WriteByte(' ')
	}

	if msg, ok := h.builtin(slog.MessageKey, slog.StringValue(r.Message)); ok {
		out.WriteString(msg)
		out.WriteByte(' ')
	}

	if h.outputEmptyAttrs || len(attrs) > 0 {
		formatter := colorjson.NewFormatter()
		formatter.Indent = 2
		formatter.DisabledColor = !h.colour

		b, err := formatter.Marshal(attrs)
		if err != nil {
			return errors.Join(ErrMarshalAttribute, err)
		}

		out.Write(b)
	}

	out.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := io.WriteString(h.writer, out.String()); err != nil {
		return errors.Join(ErrIoWrite, err)
	}

	return nil
}

// builtin applies the ReplaceAttr hook to one of the built-in keys. A hook returning the
// empty attribute suppresses the key.
func (h *PrettyHandler) builtin(key string, v slog.Value) (string, bool) {
	a := slog.Attr{Key: key, Value: v}
	if h.replace != nil {
		a = h.replace(nil, a)
	}

	if a.Equal(slog.Attr{}) {
		return "", false
	}

	return a.Value.String(), true
}

func (h *PrettyHandler) collectAttrs(ctx context.Context, r slog.Record) (map[string]any, error) {
	h.mu.Lock()
	defer func() {
		h.buf.Reset()
		h.mu.Unlock()
	}()

	if err := h.inner.Handle(ctx, r); err != nil {
		return nil, fmt.Errorf("inner handler: %w", err)
	}

	var attrs map[string]any
	if err := json.Unmarshal(h.buf.Bytes(), &attrs); err != nil {
		return nil, fmt.Errorf("decoding inner handler output: %w", err)
	}

	return attrs, nil
}

func (h *PrettyHandler) paint(style lipgloss.Style, s string) string {
	if !h.colour {
		return s
	}

	return style.Render(s)
}

func levelStyle(l slog.Level) lipgloss.Style {
	switch {
	case l < slog.LevelInfo:
		return debugStyle
	case l < slog.LevelWarn:
		return infoStyle
	case l < slog.LevelError:
		return warnStyle
	default:
		return errorStyle
	}
}

func suppressBuiltins(next func([]string, slog.Attr) slog.Attr) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.MessageKey) {
			return slog.Attr{}
		}

		if next == nil {
			return a
		}

		return next(groups, a)
	}
}
