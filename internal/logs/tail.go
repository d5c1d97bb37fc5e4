package logs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

const tailChunkSize = 16 * 1024

// LastLines returns up to limit trailing lines of the file at path, oldest
// first. A missing file yields no lines and no error so callers can treat an
// unwritten log as empty. The file is read backwards in chunks, so only the
// requested tail is ever held in memory.
func LastLines(path string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	size := info.Size()
	if size == 0 {
		return nil, nil
	}

	// lines collects newest first; carry holds the partial line that
	// continues into the not-yet-read part of the file.
	var (
		lines        []string
		carry        []byte
		trimmedFinal bool
	)
	chunk := make([]byte, tailChunkSize)
	pos := size
	for pos > 0 && len(lines) < limit {
		n := int64(tailChunkSize)
		if pos < n {
			n = pos
		}
		pos -= n
		if _, err := file.ReadAt(chunk[:n], pos); err != nil {
			return nil, fmt.Errorf("read log file: %w", err)
		}

		buf := make([]byte, 0, int(n)+len(carry))
		buf = append(buf, chunk[:n]...)
		buf = append(buf, carry...)
		if !trimmedFinal {
			trimmedFinal = true
			if buf[len(buf)-1] == '\n' {
				buf = buf[:len(buf)-1]
			}
		}

		for len(lines) < limit {
			cut := bytes.LastIndexByte(buf, '\n')
			if cut < 0 {
				break
			}
			lines = append(lines, string(dropCR(buf[cut+1:])))
			buf = buf[:cut]
		}
		carry = buf
	}
	if pos == 0 && len(lines) < limit {
		lines = append(lines, string(dropCR(carry)))
	}

	slices.Reverse(lines)
	return lines, nil
}

func dropCR(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		return line[:len(line)-1]
	}
	return line
}

// Snippet formats the tail of path for embedding in error messages. Read
// failures collapse into the snippet text instead of an error because the
// callers are already on a failure path.
func Snippet(path string, limit int) string {
	lines, err := LastLines(path, limit)
	if err != nil {
		return fmt.Sprintf("(unreadable: %v)", err)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}
