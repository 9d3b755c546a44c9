// Package kbupload indexes knowledge files into the vector store: each file
// is split into items, items into overlapping chunks, chunks are embedded in
// batches and inserted with their provenance metadata.
package kbupload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bdobrica/OrthoBot/common/retry"
	"github.com/bdobrica/OrthoBot/internal/orthobot/embedding"
	"github.com/bdobrica/OrthoBot/internal/orthobot/vectorstore"
)

const (
	// DefaultBatchSize is the number of chunks embedded per provider call.
	DefaultBatchSize = 32
	// DefaultPause is the wait between batches.
	DefaultPause = 1500 * time.Millisecond
)

// DefaultRetry retries throttled or failing embedding calls up to six times,
// doubling from 2s and capped at 30s.
var DefaultRetry = retry.Config{
	MaxAttempts:  7,
	InitialDelay: 2 * time.Second,
	MaxDelay:     30 * time.Second,
	Jitter:       500 * time.Millisecond,
	ShouldRetry:  retry.IsTemporary,
}

var errNoEmbedding = errors.New("kbupload: embedding provider returned no vector; is an embedding provider configured?")

// Config configures an Uploader. Embedder and Writer are required.
type Config struct {
	Embedder  embedding.DocumentEmbedder
	Writer    vectorstore.Writer
	BatchSize int
	ChunkSize int
	Overlap   int
	Pause     time.Duration
	Retry     retry.Config
}

// Uploader indexes knowledge files.
type Uploader struct {
	embedder  embedding.DocumentEmbedder
	writer    vectorstore.Writer
	batchSize int
	chunkSize int
	overlap   int
	pause     time.Duration
	retry     retry.Config
}

// New creates an Uploader, applying defaults to zero fields.
func New(cfg Config) *Uploader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
		cfg.Overlap = DefaultOverlap
	}
	if cfg.Pause <= 0 {
		cfg.Pause = DefaultPause
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetry
	}
	return &Uploader{
		embedder:  cfg.Embedder,
		writer:    cfg.Writer,
		batchSize: cfg.BatchSize,
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		pause:     cfg.Pause,
		retry:     cfg.Retry,
	}
}

// Report summarises an upload run.
type Report struct {
	Files         int
	Chunks        int
	FailedFiles   []string
	FailedBatches int
}

// UploadDir indexes every *.json file in dir, in name order, except those
// listed in skip. A failing file is logged and does not stop the run; the
// returned error joins every file failure.
func (u *Uploader) UploadDir(ctx context.Context, dir string, skip ...string) (Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Report{}, fmt.Errorf("kbupload: read dir %s: %w", dir, err)
	}

	var (
		rep  Report
		errs []error
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || slices.Contains(skip, name) {
			continue
		}
		n, failed, err := u.UploadFile(ctx, filepath.Join(dir, name))
		rep.Files++
		rep.Chunks += n
		rep.FailedBatches += failed
		if err != nil {
			slog.Error("kbupload: file failed", "file", name, "err", err)
			rep.FailedFiles = append(rep.FailedFiles, name)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	slog.Info("kbupload: done", "files", rep.Files, "chunks", rep.Chunks, "failed_files", len(rep.FailedFiles))
	return rep, errors.Join(errs...)
}

// UploadFile indexes one file and returns the number of chunks inserted
// and the number of batches the store rejected.
func (u *Uploader) UploadFile(ctx context.Context, path string) (inserted, failedBatches int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("kbupload: read %s: %w", path, err)
	}
	source := filepath.Base(path)
	items := ExtractItems(data, source)
	slog.Info("kbupload: items extracted", "file", source, "items", len(items))
	return u.UploadItems(ctx, source, items)
}

// UploadItems chunks, embeds and inserts items. An embedding failure that
// survives the retries aborts the upload; a rejected insert is logged and
// counted.
func (u *Uploader) UploadItems(ctx context.Context, source string, items []Item) (inserted, failedBatches int, err error) {
	first := true
	for _, item := range items {
		if strings.TrimSpace(item.Content) == "" {
			continue
		}
		chunks := ChunkText(item.Content, u.chunkSize, u.overlap)

		for start := 0; start < len(chunks); start += u.batchSize {
			if !first {
				if err := sleep(ctx, u.pause); err != nil {
					return inserted, failedBatches, err
				}
			}
			first = false

			batch := chunks[start:min(start+u.batchSize, len(chunks))]
			vectors, err := u.embed(ctx, batch)
			if err != nil {
				return inserted, failedBatches, fmt.Errorf("kbupload: embed %s %q: %w", source, item.Title, err)
			}

			docs := make([]vectorstore.Document, len(batch))
			for i, chunk := range batch {
				docs[i] = vectorstore.Document{
					Content:   chunk,
					Embedding: vectors[i],
					Metadata: vectorstore.Metadata{
						Source:     source,
						Title:      item.Title,
						URL:        item.URL,
						Summary:    item.Summary,
						Keywords:   item.Keywords,
						Intent:     item.Intent,
						Path:       strings.Join(item.Path, " > "),
						ItemIndex:  item.ItemIndex,
						ChunkIndex: start + i,
					},
				}
			}
			if err := u.writer.Insert(ctx, docs); err != nil {
				slog.Error("kbupload: insert failed", "file", source, "title", item.Title, "chunks", len(docs), "err", err)
				failedBatches++
				continue
			}
			inserted += len(docs)
		}
	}
	return inserted, failedBatches, nil
}

func (u *Uploader) embed(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32
	err := retry.Do(ctx, u.retry, func() error {
		var err error
		vectors, err = u.embedder.EmbedDocuments(ctx, batch)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("kbupload: got %d vectors for %d chunks", len(vectors), len(batch))
	}
	for _, v := range vectors {
		if v == nil {
			return nil, errNoEmbedding
		}
	}
	return vectors, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
