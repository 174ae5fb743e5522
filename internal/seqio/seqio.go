// Package seqio supplies the sequencing-record iterator the
// classification core consumes: a concrete FASTQ reader, transparent
// gzip support, and a FASTA fallback for target/reference files.
package seqio

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is the unit the classification core consumes.
type Record struct {
	ID        string
	Sequence  string
	Qualities string // Phred+33 ASCII; empty for FASTA-sourced records
}

// Reader yields records one at a time, advancing through a 4-line
// FASTQ block (or a multi-line FASTA record) per call to Next.
type Reader interface {
	Next() (Record, bool, error)
	Close() error
}

// Open returns a Reader appropriate for the file's extension,
// transparently unwrapping a trailing .gz.
func Open(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seqio: open %s: %w", path, err)
	}

	var r io.Reader = f
	closer := io.Closer(f)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("seqio: gzip %s: %w", path, err)
		}
		r = gz
		closer = multiCloser{gz, f}
	}

	trimmed := strings.TrimSuffix(strings.ToLower(path), ".gz")
	if strings.HasSuffix(trimmed, ".fa") || strings.HasSuffix(trimmed, ".fasta") {
		return newFastaReader(r, closer), nil
	}
	return newFastqReader(r, closer), nil
}

type multiCloser struct {
	first, second io.Closer
}

func (m multiCloser) Close() error {
	err1 := m.first.Close()
	err2 := m.second.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// fastqReader reads 4-line FASTQ blocks, mirroring utils.ReadInSeq.Next.
type fastqReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

func newFastqReader(r io.Reader, c io.Closer) *fastqReader {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return &fastqReader{scanner: scanner, closer: c}
}

func (fr *fastqReader) Next() (Record, bool, error) {
	var rec Record
	for j := 0; j < 4; j++ {
		if !fr.scanner.Scan() {
			if err := fr.scanner.Err(); err != nil {
				return Record{}, false, err
			}
			if j == 0 {
				return Record{}, false, nil
			}
			return Record{}, false, fmt.Errorf("seqio: truncated FASTQ record")
		}
		line := fr.scanner.Text()
		switch j {
		case 0:
			rec.ID = strings.TrimPrefix(line, "@")
		case 1:
			rec.Sequence = line
		case 3:
			rec.Qualities = line
		}
	}
	return rec, true, nil
}

func (fr *fastqReader) Close() error { return fr.closer.Close() }

// fastaReader reads multi-line FASTA records with no quality scores,
// accumulating sequence lines until the next header (or EOF).
type fastaReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	pending string // header line carried over from the previous Next call
	done    bool
}

func newFastaReader(r io.Reader, c io.Closer) *fastaReader {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return &fastaReader{scanner: scanner, closer: c}
}

func (fr *fastaReader) Next() (Record, bool, error) {
	if fr.done {
		return Record{}, false, nil
	}

	var id string
	var seq strings.Builder

	if fr.pending != "" {
		id = fr.pending
		fr.pending = ""
	}

	for fr.scanner.Scan() {
		line := fr.scanner.Text()
		if strings.HasPrefix(line, ">") {
			if id == "" {
				id = strings.TrimPrefix(line, ">")
				continue
			}
			fr.pending = strings.TrimPrefix(line, ">")
			return Record{ID: id, Sequence: seq.String()}, true, nil
		}
		seq.WriteString(line)
	}
	if err := fr.scanner.Err(); err != nil {
		return Record{}, false, err
	}
	fr.done = true
	if id == "" {
		return Record{}, false, nil
	}
	return Record{ID: id, Sequence: seq.String()}, true, nil
}

func (fr *fastaReader) Close() error { return fr.closer.Close() }
