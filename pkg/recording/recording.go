// Package recording captures device telemetry to compressed JSONL files and
// replays them through a session engine.
package recording

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/teslashibe/go-linkcup/pkg/protocol"
	"github.com/teslashibe/go-linkcup/pkg/session"
)

// Ext is the recording file extension.
const Ext = ".jsonl.zst"

// Kind tags a recorded entry.
type Kind string

const (
	KindSample Kind = "sample"
	KindKey    Kind = "key"
)

// Entry is one recorded input. TMs is the offset from the start of the
// recording in milliseconds.
type Entry struct {
	TMs    int64                `json:"t_ms"`
	Kind   Kind                 `json:"kind"`
	Sample *protocol.SampleData `json:"sample,omitempty"`
}

// Writer appends entries to a recording. It is safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	path  string
	start time.Time
	f     *os.File
	enc   *zstd.Encoder
	json  *json.Encoder
	n     int
}

// Create starts a recording in dir named <device>-<uuid>.jsonl.zst.
func Create(dir, deviceID string, start time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	path := filepath.Join(dir, safeName(deviceID)+"-"+uuid.NewString()+Ext)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	return &Writer{
		path:  path,
		start: start,
		f:     f,
		enc:   enc,
		json:  json.NewEncoder(enc),
	}, nil
}

// Path returns the recording file path.
func (w *Writer) Path() string {
	return w.path
}

// Len returns the number of entries written.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// WriteSample records a sample observed at at.
func (w *Writer) WriteSample(at time.Time, s session.Sample) error {
	data := protocol.SampleData{V: s.LinearValue, P: s.Position, Yaw: s.Yaw, Pitch: s.Pitch, Roll: s.Roll}
	return w.write(Entry{TMs: w.offset(at), Kind: KindSample, Sample: &data})
}

// WriteKey records an accepted key press at at.
func (w *Writer) WriteKey(at time.Time) error {
	return w.write(Entry{TMs: w.offset(at), Kind: KindKey})
}

func (w *Writer) offset(at time.Time) int64 {
	return max(at.Sub(w.start).Milliseconds(), 0)
}

func (w *Writer) write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return os.ErrClosed
	}
	if err := w.json.Encode(e); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	w.n++
	return nil
}

// Close flushes the compressed stream and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return nil
	}
	encErr := w.enc.Close()
	w.enc = nil
	fileErr := w.f.Close()
	if encErr != nil {
		return fmt.Errorf("finalize compression: %w", encErr)
	}
	return fileErr
}

// Reader iterates a recording.
type Reader struct {
	f       *os.File
	dec     *zstd.Decoder
	scanner *bufio.Scanner
}

// Open opens a recording for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Reader{f: f, dec: dec, scanner: bufio.NewScanner(dec)}, nil
}

// Next returns the next entry, or io.EOF after the last one.
func (r *Reader) Next() (Entry, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return Entry{}, fmt.Errorf("decode entry: %w", err)
		}
		return e, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Entry{}, fmt.Errorf("read recording: %w", err)
	}
	return Entry{}, io.EOF
}

// Close releases the decoder and file.
func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}

// ReadAll returns every entry in the recording at path.
func ReadAll(path string) ([]Entry, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "device"
	}
	return s
}
