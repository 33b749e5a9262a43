// Log compaction: the reference engine's repair/compact rewrites its
// file into sorted sections via a temp-file-then-replace; filestore's
// in-memory index is already the authoritative sorted view, so Compact
// only needs to rewrite the log to match it — one createcf marker per
// known partition (so an empty partition survives compaction) followed
// by one put per live key — then atomically replace the original file.
package filestore

import "os"

// Compact rewrites the log to hold only the current live state, dropping
// every superseded put and every delete tombstone. Blocks new
// transactions for its duration.
func (s *Store) Compact() error {
	if err := s.lock.Lock(LockExclusive); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.lock.Unlock()

	tmpPath := s.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	hdr := &Header{Version: s.header.Version, Algorithm: s.config.Algorithm, Error: 1}
	hbuf, err := hdr.encode()
	if err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(hbuf); err != nil {
		tmp.Close()
		return err
	}

	var buf []byte
	for name, st := range s.cfs {
		line, err := encodeRecord(logRecord{Op: opCreateCF, CF: name}, s.config.Algorithm, s.config.CompressThreshold)
		if err != nil {
			tmp.Close()
			return err
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')

		var writeErr error
		st.tree.Ascend(func(item kv) bool {
			line, err := encodeRecord(logRecord{Op: opPut, CF: name, Key: item.key, Value: item.value}, s.config.Algorithm, s.config.CompressThreshold)
			if err != nil {
				writeErr = err
				return false
			}
			buf = append(buf, line...)
			buf = append(buf, '\n')
			return true
		})
		if writeErr != nil {
			tmp.Close()
			return writeErr
		}
	}
	if _, err := tmp.WriteAt(buf, int64(HeaderSize)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	tail := int64(HeaderSize) + int64(len(buf))
	hdr.Error = 0
	hbuf, err = hdr.encode()
	if err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.WriteAt(hbuf, 0); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	s.lock.setFile(nil)
	if err := s.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	s.file = f
	s.lock.setFile(f)
	s.header = hdr
	s.tail = tail
	return nil
}
