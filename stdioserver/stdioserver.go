// Package stdioserver is the stdio transport: newline-delimited JSON-RPC
// requests on stdin, newline-delimited responses on stdout. The transport is
// inherently session-less, so every request runs against the process-global
// controller. Diagnostics must go to stderr; nothing but protocol frames may
// touch the output stream.
package stdioserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/odoomcp/odoo-mcp-go/dispatch"
	"github.com/odoomcp/odoo-mcp-go/internal/jsonrpc"
)

// maxLineBytes bounds a single inbound frame.
const maxLineBytes = 10 * 1024 * 1024

// Handler runs the stdio read/dispatch/write loop.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	in         io.Reader
	out        io.Writer
	log        *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithStreams overrides stdin/stdout, for tests.
func WithStreams(in io.Reader, out io.Writer) Option {
	return func(h *Handler) {
		h.in = in
		h.out = out
	}
}

// WithLogger sets the diagnostic logger. It must not write to the protocol
// output stream.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// New constructs a stdio Handler bound to os.Stdin/os.Stdout by default.
func New(d *dispatch.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		dispatcher: d,
		in:         os.Stdin,
		out:        os.Stdout,
		log:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve reads frames until EOF on the input stream or context cancellation.
// A line that fails to parse produces a parse-error response rather than
// ending the loop. EOF is a clean shutdown.
func (h *Handler) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(h.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		req, err := jsonrpc.UnmarshalRequest(line)
		if err != nil {
			h.log.WarnContext(ctx, "unparsable frame", slog.Any("error", err))
			if werr := h.write(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, fmt.Sprintf("parse error: %v", err), nil)); werr != nil {
				return werr
			}
			continue
		}

		resp := h.dispatcher.Dispatch(ctx, req, dispatch.Meta{}, nil)
		if resp == nil {
			// Notification; nothing goes back on the wire.
			continue
		}
		if err := h.write(resp); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input stream: %w", err)
	}
	h.log.InfoContext(ctx, "input stream closed; shutting down")
	return nil
}

func (h *Handler) write(resp *jsonrpc.Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	body = append(body, '\n')
	if _, err := h.out.Write(body); err != nil {
		return fmt.Errorf("write output stream: %w", err)
	}
	return nil
}
