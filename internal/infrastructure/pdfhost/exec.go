package pdfhost

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"time"
)

const (
	DefaultHostTimeout = 3 * time.Minute
	maxMessageSize     = 64 << 20
)

// ExecHost runs the native host binary once per request and talks to it
// with the browser native messaging framing: a 4-byte little-endian length
// followed by a JSON document, in both directions.
type ExecHost struct {
	path    string
	args    []string
	timeout time.Duration
	logger  *log.Logger
}

func NewExecHost(path string, args []string, timeout time.Duration, logger *log.Logger) *ExecHost {
	if timeout <= 0 {
		timeout = DefaultHostTimeout
	}
	return &ExecHost{path: strings.TrimSpace(path), args: args, timeout: timeout, logger: logger}
}

func (h *ExecHost) Generate(ctx context.Context, req Request) (Response, error) {
	if h == nil || h.path == "" {
		return Response{}, errors.New("native host not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var in bytes.Buffer
	if err := WriteMessage(&in, req); err != nil {
		return Response{}, err
	}
	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.path, h.args...)
	cmd.Stdin = &in
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()

	var resp Response
	if err := ReadMessage(&out, &resp); err != nil {
		if runErr != nil {
			return Response{}, fmt.Errorf("native host: %w (stderr: %s)", runErr, strings.TrimSpace(stderr.String()))
		}
		return Response{}, fmt.Errorf("native host response: %w", err)
	}
	if h.logger != nil {
		h.logger.Printf("[PDF] native host done | success=%t folder=%s took=%s", resp.Success, resp.FolderName, time.Since(started).Round(time.Millisecond))
	}
	return resp, nil
}

func WriteMessage(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(b) > maxMessageSize {
		return fmt.Errorf("message too large: %d bytes", len(b))
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func ReadMessage(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > maxMessageSize {
		return fmt.Errorf("message too large: %d bytes", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
