package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Direction tells whether a line was sent to or received from the peer.
type Direction string

const (
	Outbound Direction = ">>"
	Inbound  Direction = "<<"
)

// Entry is one recorded line, without its trailing newline.
type Entry struct {
	Time time.Time       `json:"time"`
	Dir  Direction       `json:"dir"`
	Line json.RawMessage `json:"line"`
}

// Recorder collects the lines exchanged on a session. It is safe for concurrent use.
type Recorder struct {
	log     *zap.SugaredLogger
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{
		log: zap.S().With("module", "stdiorpc.transcript"),
		now: time.Now,
	}
}

// Record stores a copy of line. Lines that are not valid JSON are stored as a JSON string.
func (r *Recorder) Record(dir Direction, line []byte) {
	line = bytes.TrimRight(line, "\r\n")

	var raw json.RawMessage
	if json.Valid(line) {
		raw = append(json.RawMessage(nil), line...)
	} else {
		raw, _ = json.Marshal(string(line))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Time: r.now(), Dir: dir, Line: raw})
}

// Entries returns a copy of the recorded entries in order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Save writes the entries as JSON lines to path, compressed according to its extension.
func (r *Recorder) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create transcript")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close transcript")
		}
	}()

	enc := EncodingForPath(path)
	w, err := NewWriter(enc, f)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	je := json.NewEncoder(bw)
	je.SetEscapeHTML(false)

	entries := r.Entries()
	for _, e := range entries {
		if err := je.Encode(e); err != nil {
			w.Close()
			return errors.Wrap(err, "encode transcript entry")
		}
	}
	if err := bw.Flush(); err != nil {
		w.Close()
		return errors.Wrap(err, "flush transcript")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "finish transcript")
	}

	r.log.Infof("Saved %d entries to %s (%s)", len(entries), path, enc)
	return nil
}

// Load reads a transcript written by Save.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open transcript")
	}
	defer f.Close()

	rc, err := NewReader(EncodingForPath(path), f)
	if err != nil {
		return nil, errors.Wrap(err, "open transcript stream")
	}
	defer rc.Close()

	var entries []Entry
	dec := json.NewDecoder(rc)
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, errors.Wrapf(err, "decode transcript entry %d", len(entries))
		}
		entries = append(entries, e)
	}
	return entries, nil
}
