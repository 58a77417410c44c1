// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

// Package trace records FFFP traffic to a compact CBOR stream and reads it
// back for replay.
//
// Each record is a 3-element CBOR array: [unix_nanos, direction, line].
package trace

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/LeTelescope/fffpctl/pkg/fffp"
)

// Record is one captured line
type Record struct {
	_         struct{} `cbor:",toarray"`
	UnixNanos int64
	Direction fffp.Direction
	Line      string
}

// Time returns the capture time
func (r Record) Time() time.Time {
	return time.Unix(0, r.UnixNanos)
}

//////////////////////////////////////////////////////////////
// Recorder
//////////////////////////////////////////////////////////////

// Recorder appends records to a writer. It is safe for concurrent use and
// its Record method matches panel.Tap.
type Recorder struct {
	mu    sync.Mutex
	w     io.Writer
	enc   *cbor.Encoder
	err   error
	count int
}

// NewRecorder creates a Recorder writing to w
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w, enc: cbor.NewEncoder(w)}
}

// Record appends one line. After the first write error further records are
// dropped and the error is reported by Err and Close.
func (r *Recorder) Record(dir fffp.Direction, line string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.enc.Encode(Record{UnixNanos: at.UnixNano(), Direction: dir, Line: line}); err != nil {
		r.err = fmt.Errorf("trace: write record: %w", err)
		return
	}
	r.count++
}

// Count returns the number of records written
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the first write error
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the underlying writer if it is an io.Closer
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.err
	if c, ok := r.w.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

//////////////////////////////////////////////////////////////
// Reader
//////////////////////////////////////////////////////////////

// Reader reads records written by a Recorder
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a Reader over r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("trace: read record: %w", err)
	}
	if rec.Direction != fffp.Outbound && rec.Direction != fffp.Inbound {
		return Record{}, fmt.Errorf("trace: invalid direction %d", rec.Direction)
	}
	return rec, nil
}

// ReadAll reads every remaining record
func (r *Reader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
