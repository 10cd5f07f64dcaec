// Package cache stores the enriched delivery table as a single Parquet file.
//
// The file is read and written wholesale; there is no locking and concurrent
// runs against one path are unsupported.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"delivery-sla-lab/internal/domain"
)

// FileName is the cache file name inside the output directory.
const FileName = "df_delivery.parquet"

// versionKey is the footer key-value entry holding formatVersion.
const versionKey = "delivery_sla.format_version"

// writeParallelism is the number of marshalling goroutines for Save. Load
// reads on one goroutine so a panic on a malformed page stays recoverable.
const writeParallelism = 4

// ErrCacheMiss is returned by Load when no cache file exists.
var ErrCacheMiss = errors.New("cache miss")

// ErrVersionMismatch is returned when the file was written by another format version.
var ErrVersionMismatch = errors.New("cache format version mismatch")

// ErrCorrupt is returned when the file is not a readable Parquet snapshot.
var ErrCorrupt = errors.New("corrupt cache file")

var magic = []byte("PAR1")

// Store reads and writes the snapshot at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for outputDir/FileName.
func NewStore(outputDir string) *Store {
	return &Store{path: filepath.Join(outputDir, FileName)}
}

// Path returns the cache file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the cache file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the whole snapshot. Returns ErrCacheMiss if the file does not exist.
func (s *Store) Load() (ds *domain.Dataset, err error) {
	if err := checkMagic(s.path); err != nil {
		return nil, err
	}

	fr, err := local.NewLocalFileReader(s.path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	defer fr.Close()

	// parquet-go panics on some malformed pages
	defer func() {
		if r := recover(); r != nil {
			ds, err = nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, r)
		}
	}()

	pr, err := reader.NewParquetReader(fr, new(deliveryRow), 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	defer pr.ReadStop()

	if v := footerVersion(pr.Footer); v != formatVersion {
		return nil, fmt.Errorf("%w: file v%d, want v%d", ErrVersionMismatch, v, formatVersion)
	}

	n := int(pr.GetNumRows())
	ds = &domain.Dataset{Records: make([]domain.OrderItemRecord, n)}
	if n == 0 {
		return ds, nil
	}

	rows := make([]deliveryRow, n)
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("%w: read rows: %v", ErrCorrupt, err)
	}
	for i := range rows {
		ds.Records[i] = rows[i].toRecord()
	}
	return ds, nil
}

// Save writes the snapshot, replacing any existing file.
func (s *Store) Save(ds *domain.Dataset) error {
	return s.save(ds, formatVersion)
}

func (s *Store) save(ds *domain.Dataset, version int) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	fw, err := local.NewLocalFileWriter(tmpPath)
	if err != nil {
		return fmt.Errorf("open temp cache file: %w", err)
	}

	if err := writeRows(fw, ds, version); err != nil {
		fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

func writeRows(w io.Writer, ds *domain.Dataset, version int) error {
	pw, err := writer.NewParquetWriterFromWriter(w, new(deliveryRow), writeParallelism)
	if err != nil {
		return fmt.Errorf("init parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_ZSTD

	v := strconv.Itoa(version)
	pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata, &parquet.KeyValue{Key: versionKey, Value: &v})

	if ds != nil {
		for i := range ds.Records {
			if err := pw.Write(toRow(&ds.Records[i])); err != nil {
				return fmt.Errorf("write row %d: %w", i, err)
			}
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish parquet file: %w", err)
	}
	return nil
}

func footerVersion(footer *parquet.FileMetaData) int {
	if footer == nil {
		return 0
	}
	for _, kv := range footer.KeyValueMetadata {
		if kv == nil || kv.Key != versionKey || kv.Value == nil {
			continue
		}
		v, err := strconv.Atoi(*kv.Value)
		if err != nil {
			return 0
		}
		return v
	}
	return 0
}

// checkMagic rejects files without the Parquet header and trailer before the
// reader touches them.
func checkMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrCacheMiss
		}
		return fmt.Errorf("open cache: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat cache: %w", err)
	}
	if info.Size() < int64(2*len(magic)+4) {
		return fmt.Errorf("%w: %s: too short", ErrCorrupt, path)
	}

	head := make([]byte, len(magic))
	tail := make([]byte, len(magic))
	if _, err := f.ReadAt(head, 0); err != nil {
		return fmt.Errorf("read cache header: %w", err)
	}
	if _, err := f.ReadAt(tail, info.Size()-int64(len(magic))); err != nil {
		return fmt.Errorf("read cache trailer: %w", err)
	}
	if !bytes.Equal(head, magic) || !bytes.Equal(tail, magic) {
		return fmt.Errorf("%w: %s: not a parquet file", ErrCorrupt, path)
	}
	return nil
}
