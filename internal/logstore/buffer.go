package logstore

// entryBuffer accumulates entries in arrival order until they are written to the
// active file.
type entryBuffer struct {
	entries   []LogEntry
	threshold int
}

func newEntryBuffer(threshold int) *entryBuffer {
	return &entryBuffer{
		entries:   make([]LogEntry, 0, threshold),
		threshold: threshold,
	}
}

// add appends an entry and reports whether the buffer reached its flush threshold.
func (b *entryBuffer) add(e LogEntry) bool {
	b.entries = append(b.entries, e)
	return len(b.entries) >= b.threshold
}

// flushTo writes all buffered entries to f. The buffer is cleared only when the write
// succeeds; on error every entry stays buffered for a retry.
func (b *entryBuffer) flushTo(f *activeFile) error {
	if len(b.entries) == 0 {
		return nil
	}
	if err := f.writeRows(b.entries); err != nil {
		return err
	}
	b.entries = b.entries[:0]
	return nil
}

func (b *entryBuffer) len() int {
	return len(b.entries)
}
