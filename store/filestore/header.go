package filestore

import (
	"bytes"
	"os"

	json "github.com/goccy/go-json"
)

// HeaderSize is the fixed size, in bytes, of the header block at the
// start of every log file.
const HeaderSize = 64

// Header is the fixed-size block written at offset 0. Error is the
// crash-dirty flag: set before the first write of a session and cleared
// by a clean Close (and by Open once replay has finished), so a non-zero
// Error on Open means the prior session ended without a clean Close and
// the log's tail may hold a partial write.
type Header struct {
	Version   int   `json:"_v"`
	Error     int   `json:"_e"`
	Algorithm int   `json:"_alg"`
	Timestamp int64 `json:"_ts"`
}

func readHeader(f *os.File) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	var hdr Header
	if err := json.Unmarshal(bytes.TrimRight(buf, " \n"), &hdr); err != nil {
		return nil, ErrCorruptHeader
	}
	return &hdr, nil
}

// writeDirty flips the crash flag at its fixed byte offset without
// rewriting the whole header, the same single-byte patch the reference
// engine uses: "_e" is the second JSON field, so its value always lands
// at the same offset regardless of the other fields' values.
func writeDirty(f *os.File, v bool) error {
	b := byte('0')
	if v {
		b = '1'
	}
	_, err := f.WriteAt([]byte{b}, dirtyOffset)
	return err
}

// dirtyOffset is the fixed byte position of Header.Error's value within
// the encoded header: {"_v":0,"_e":X...
const dirtyOffset = 13

func (h *Header) encode() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if len(data) >= HeaderSize {
		return nil, ErrCorruptHeader
	}
	buf := make([]byte, HeaderSize)
	copy(buf, data)
	for i := len(data); i < HeaderSize-1; i++ {
		buf[i] = ' '
	}
	buf[HeaderSize-1] = '\n'
	return buf, nil
}
