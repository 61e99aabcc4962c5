// Package importer loads an owner's contacts from CSV or XLSX exports, read
// from the local disk or an FTP drop, into the contact store.
package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/relationship-crm/internal/model"
)

const defaultBatchSize = 500

// ContactWriter persists imported contacts and returns how many were new.
type ContactWriter interface {
	ImportContacts(ctx context.Context, contacts []model.Contact) (int64, error)
}

// Downloader fetches a remote file to a local path.
type Downloader interface {
	DownloadToFile(ctx context.Context, url, path string) (int64, error)
}

// Result summarizes an import.
type Result struct {
	Rows       int   `json:"rows"`
	Invalid    int   `json:"invalid"`
	Duplicates int   `json:"duplicates"`
	Inserted   int64 `json:"inserted"`
}

// Importer reads contact files and writes them in batches.
type Importer struct {
	store     ContactWriter
	ftp       Downloader
	batchSize int
	sheet     string
}

// Option configures an Importer.
type Option func(*Importer)

// WithBatchSize sets how many contacts are written per store call.
func WithBatchSize(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithDownloader replaces the FTP downloader.
func WithDownloader(d Downloader) Option {
	return func(i *Importer) { i.ftp = d }
}

// WithSheet reads the named XLSX sheet instead of the first.
func WithSheet(name string) Option {
	return func(i *Importer) { i.sheet = name }
}

// New creates an Importer writing to store.
func New(store ContactWriter, opts ...Option) *Importer {
	i := &Importer{
		store:     store,
		ftp:       NewFTPFetcher(FTPOptions{}),
		batchSize: defaultBatchSize,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Import loads source for ownerID. source is a local path or an ftp:// URL;
// the format follows the file extension (.csv, .tsv, .xlsx). Addresses
// already stored for the owner are left untouched.
func (i *Importer) Import(ctx context.Context, source, ownerID string) (*Result, error) {
	if ownerID == "" {
		return nil, eris.New("importer: owner id is required")
	}

	path, cleanup, err := i.localize(ctx, source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	rows, err := i.readRows(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &Result{}, nil
	}

	cols, err := mapHeader(rows[0])
	if err != nil {
		return nil, eris.Wrapf(err, "importer: %s", source)
	}

	res := &Result{Rows: len(rows) - 1}
	seen := make(map[string]struct{}, len(rows))
	batch := make([]model.Contact, 0, i.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := i.store.ImportContacts(ctx, batch)
		if err != nil {
			return eris.Wrap(err, "importer: write contacts")
		}
		res.Inserted += n
		batch = batch[:0]
		return nil
	}

	for _, row := range rows[1:] {
		c, ok := cols.contact(ownerID, row)
		if !ok {
			res.Invalid++
			continue
		}
		if _, dup := seen[c.Email]; dup {
			res.Duplicates++
			continue
		}
		seen[c.Email] = struct{}{}

		batch = append(batch, c)
		if len(batch) >= i.batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	zap.L().Info("importer: contacts imported",
		zap.String("source", source),
		zap.String("owner_id", ownerID),
		zap.Int("rows", res.Rows),
		zap.Int("invalid", res.Invalid),
		zap.Int("duplicates", res.Duplicates),
		zap.Int64("inserted", res.Inserted),
	)
	return res, nil
}

// localize returns a local path for source, downloading FTP sources to a
// temporary file that cleanup removes.
func (i *Importer) localize(ctx context.Context, source string) (string, func(), error) {
	if !strings.HasPrefix(strings.ToLower(source), "ftp://") {
		return source, func() {}, nil
	}

	t, err := parseFTPURL(source)
	if err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp("", "crm-import-*")
	if err != nil {
		return "", nil, eris.Wrap(err, "importer: create temp dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	local := filepath.Join(dir, filepath.Base(t.path))
	n, err := i.ftp.DownloadToFile(ctx, source, local)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	zap.L().Debug("importer: downloaded", zap.String("source", source), zap.Int64("bytes", n))
	return local, cleanup, nil
}

func (i *Importer) readRows(ctx context.Context, path string) ([][]string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		return ReadXLSX(path, i.sheet)
	case ".csv", ".tsv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		var delim rune
		if ext == ".tsv" {
			delim = '\t'
		}
		rowCh, errCh := StreamCSV(ctx, f, delim)
		var rows [][]string
		for row := range rowCh {
			rows = append(rows, row)
		}
		if err := <-errCh; err != nil {
			return nil, err
		}
		return rows, nil
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", ext)
	}
}
