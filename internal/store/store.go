// Package store reads and writes line-delimited JSON datasets on any afs
// backend: local files, gs:// or s3://.
package store

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/ogulcanaydogan/finprep/internal/hash"
	"github.com/ogulcanaydogan/finprep/internal/sanitize"
	"github.com/ogulcanaydogan/finprep/pkg/types"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	_ "github.com/viant/afsc/gs"
	_ "github.com/viant/afsc/s3"
)

const maxLineSize = 64 << 20

type Store struct {
	fs afs.Service
}

func New() *Store {
	return &Store{fs: afs.New()}
}

func (s *Store) Exists(ctx context.Context, location string) (bool, error) {
	norm, err := Normalize(location)
	if err != nil {
		return false, err
	}
	ok, err := s.fs.Exists(ctx, norm)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", location, err)
	}
	return ok, nil
}

// Load decodes one record per line. Each line is trimmed and has its literal
// \uXXXX runs collapsed before decoding. A blank or malformed line fails the
// whole load with ErrInvalid; there is no lenient mode.
func (s *Store) Load(ctx context.Context, location string) ([]types.Record, error) {
	norm, err := s.mustExist(ctx, location)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.DownloadWithURL(ctx, norm)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}

	var records []types.Record
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			return nil, fmt.Errorf("%w: %s line %d: empty line", types.ErrInvalid, location, lineNo)
		}
		rec, err := types.ParseRecord([]byte(sanitize.UnicodeEscapes(string(line))))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", location, lineNo, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s line %d: %v", types.ErrInvalid, location, lineNo+1, err)
	}
	return records, nil
}

// Save writes records one per line in order, creating the parent location.
// With ensureASCII every non-ASCII rune is written as a \uXXXX escape.
func (s *Store) Save(ctx context.Context, location string, records []types.Record, ensureASCII bool) error {
	norm, err := Normalize(location)
	if err != nil {
		return err
	}
	raw, err := Encode(records, ensureASCII)
	if err != nil {
		return fmt.Errorf("encode %s: %w", location, err)
	}
	if err := s.ensureParent(ctx, norm); err != nil {
		return err
	}
	if err := s.fs.Upload(ctx, norm, file.DefaultFileOsMode, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("write %s: %w", location, err)
	}
	return nil
}

// Copy duplicates from into to byte for byte.
func (s *Store) Copy(ctx context.Context, from, to string) error {
	src, err := s.mustExist(ctx, from)
	if err != nil {
		return err
	}
	dst, err := Normalize(to)
	if err != nil {
		return err
	}
	if err := s.ensureParent(ctx, dst); err != nil {
		return err
	}
	if err := s.fs.Copy(ctx, src, dst); err != nil {
		return fmt.Errorf("copy %s to %s: %w", from, to, err)
	}
	return nil
}

// Digest returns the sha256 digest and size of the object at location.
func (s *Store) Digest(ctx context.Context, location string) (string, int64, error) {
	norm, err := s.mustExist(ctx, location)
	if err != nil {
		return "", 0, err
	}
	rc, err := s.fs.OpenURL(ctx, norm)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", location, err)
	}
	defer rc.Close()
	return hash.DigestReader(rc)
}

func (s *Store) mustExist(ctx context.Context, location string) (string, error) {
	norm, err := Normalize(location)
	if err != nil {
		return "", err
	}
	ok, err := s.fs.Exists(ctx, norm)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", location, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", types.ErrNotFound, location)
	}
	return norm, nil
}

func (s *Store) ensureParent(ctx context.Context, norm string) error {
	parent, _ := url.Split(norm, file.Scheme)
	ok, err := s.fs.Exists(ctx, parent)
	if err != nil {
		return fmt.Errorf("stat %s: %w", parent, err)
	}
	if ok {
		return nil
	}
	if err := s.fs.Create(ctx, parent, file.DefaultDirOsMode, true); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}
	return nil
}

// Encode renders records as JSONL, one object per line, exactly as each record
// holds it.
func Encode(records []types.Record, ensureASCII bool) ([]byte, error) {
	var buf bytes.Buffer
	for i, rec := range records {
		raw := rec.Bytes()
		if bytes.ContainsAny(raw, "\r\n") {
			return nil, fmt.Errorf("%w: record %d spans multiple lines", types.ErrInvalid, i)
		}
		buf.Write(raw)
		buf.WriteByte('\n')
	}
	if !ensureASCII {
		return buf.Bytes(), nil
	}
	return escapeNonASCII(buf.Bytes()), nil
}

// escapeNonASCII runs over valid JSON, where non-ASCII bytes only occur inside
// string literals, so escaping them keeps the JSON valid.
func escapeNonASCII(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); {
		if raw[i] < utf8.RuneSelf {
			out = append(out, raw[i])
			i++
			continue
		}
		r, size := utf8.DecodeRune(raw[i:])
		i += size
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			out = appendEscape(out, r1)
			out = appendEscape(out, r2)
			continue
		}
		out = appendEscape(out, r)
	}
	return out
}

func appendEscape(out []byte, r rune) []byte {
	hex := strconv.FormatInt(int64(r), 16)
	out = append(out, '\\', 'u')
	for n := len(hex); n < 4; n++ {
		out = append(out, '0')
	}
	return append(out, hex...)
}

// Read returns the raw bytes at location.
func (s *Store) Read(ctx context.Context, location string) ([]byte, error) {
	norm, err := s.mustExist(ctx, location)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.DownloadWithURL(ctx, norm)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	return data, nil
}

// Write stores raw bytes at location, creating the parent location.
func (s *Store) Write(ctx context.Context, location string, data []byte) error {
	norm, err := Normalize(location)
	if err != nil {
		return err
	}
	if err := s.ensureParent(ctx, norm); err != nil {
		return err
	}
	if err := s.fs.Upload(ctx, norm, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", location, err)
	}
	return nil
}
