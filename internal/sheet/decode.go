package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for files that are neither a known extension nor
// recognizable by their leading bytes.
var ErrUnsupported = errors.New("sheet: unsupported file format")

// DecodeFunc reads the first worksheet of the file at path.
type DecodeFunc func(path string) (Grid, error)

var byExt = map[string]DecodeFunc{
	".xlsx": XLSX,
	".xlsm": XLSX,
	".xls":  XLS,
	".csv":  CSV,
	".txt":  CSV,
}

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Decode picks a decoder by file extension, falling back to content sniffing
// when the extension is missing or unknown.
func Decode(path string) (Grid, error) {
	if fn, ok := byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return fn(path)
	}
	fn, err := sniff(path)
	if err != nil {
		return nil, err
	}
	return fn(path)
}

func sniff(path string) (DecodeFunc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sheet: open: %w", err)
	}
	defer f.Close()

	head := make([]byte, len(oleMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("sheet: read header: %w", err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, zipMagic):
		return XLSX, nil
	case bytes.HasPrefix(head, oleMagic):
		return XLS, nil
	case n == 0 || isText(head):
		return CSV, nil
	}
	return nil, ErrUnsupported
}

// isText rejects control bytes other than tab, CR and LF. Bytes >= 0x80 pass
// so UTF-8 and UTF-16 byte order marks are accepted.
func isText(b []byte) bool {
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
	}
	return true
}
