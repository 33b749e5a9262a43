// The log's wire format: one JSON object per line, immediately following
// the fixed header. A committed write txn appends its whole batch of
// records in a single WriteAt call, mirroring the reference engine's
// "concatenate record and index into one buffer, write once" atomicity
// trick — a reader can never observe half a transaction because the OS
// never exposes a partial append as a torn read at a line boundary it
// would otherwise stop scanning at anyway.
package filestore

import (
	"encoding/base64"
	"errors"

	json "github.com/goccy/go-json"
)

type op int

const (
	opPut op = iota + 1
	opDelete
	opCreateCF
	opDropCF
)

// wireRecord is the line-delimited on-disk shape. Key and Value are
// base64 so arbitrary binary content stays JSON-safe and newline-free;
// Value is instead zstd-compressed and ascii85-encoded (Compressed=true)
// when it is at or above the store's configured threshold.
type wireRecord struct {
	Op         op     `json:"op"`
	CF         string `json:"cf"`
	Key        string `json:"k,omitempty"`
	Value      string `json:"v,omitempty"`
	Compressed bool   `json:"c,omitempty"`
	Sum        string `json:"sum"`
}

type logRecord struct {
	Op    op
	CF    string
	Key   []byte
	Value []byte
}

// encodeRecord marshals one log record to a single line (no trailing
// newline — the caller joins lines and the log format is newline
// delimited).
func encodeRecord(rec logRecord, alg, compressThreshold int) ([]byte, error) {
	w := wireRecord{Op: rec.Op, CF: rec.CF}
	if rec.Key != nil {
		w.Key = base64.StdEncoding.EncodeToString(rec.Key)
	}
	if rec.Value != nil {
		if len(rec.Value) >= compressThreshold {
			w.Value = compress(rec.Value)
			w.Compressed = true
		} else {
			w.Value = base64.StdEncoding.EncodeToString(rec.Value)
		}
	}
	w.Sum = checksum(alg, rec.Key, rec.Value)
	return json.Marshal(w)
}

// decodeRecord parses one line and verifies its checksum against the
// decoded key/value before returning, so a bit-flip anywhere in the line
// (including inside the base64/compressed payload) is caught here rather
// than surfacing later as a corrupt document.
func decodeRecord(line []byte, alg int) (*logRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, err
	}
	var key, value []byte
	var err error
	if w.Key != "" {
		key, err = base64.StdEncoding.DecodeString(w.Key)
		if err != nil {
			return nil, err
		}
	}
	if w.Value != "" {
		if w.Compressed {
			value, err = decompress(w.Value)
		} else {
			value, err = base64.StdEncoding.DecodeString(w.Value)
		}
		if err != nil {
			return nil, err
		}
	}
	if checksum(alg, key, value) != w.Sum {
		return nil, errors.New("filestore: checksum mismatch")
	}
	return &logRecord{Op: w.Op, CF: w.CF, Key: key, Value: value}, nil
}

// maxRecordSize bounds a single line's length, guarding the replay
// scanner's buffer the same way the reference engine bounds a single
// record during its own line scans.
const maxRecordSize = 16 << 20
