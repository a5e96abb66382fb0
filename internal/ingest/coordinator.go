// Package ingest orchestrates concurrent normalization of uploaded
// documents and idempotent insertion into the vault.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"facturas/internal/logger"
	"facturas/internal/model"
	"facturas/internal/parser/dian"
	"facturas/internal/vault"
)

// DefaultWorkers bounds concurrent normalization per batch.
const DefaultWorkers = 4

// File is one uploaded document.
type File struct {
	Name    string
	Content []byte
}

// Detail reports the outcome for a single file.
type Detail struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Msg      string `json:"msg"`
}

// Summary aggregates a batch. Uploaded counts new inserts, Skipped counts
// AlreadyExists outcomes, Errors counts parse and insert failures.
type Summary struct {
	Uploaded int      `json:"uploaded"`
	Skipped  int      `json:"skipped"`
	Errors   int      `json:"errors"`
	Details  []Detail `json:"details"`
}

// Coordinator runs upload batches against a vault.
type Coordinator struct {
	vault   vault.Vault
	workers int
	log     zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// New creates a Coordinator storing into v.
func New(v vault.Vault, opts ...Option) *Coordinator {
	c := &Coordinator{
		vault:   v,
		workers: DefaultWorkers,
		log:     logger.WithComponent("ingest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run normalizes all files concurrently and inserts the results. Files
// are independent: one document failing to parse or insert never aborts
// its siblings. Details keep the order files were submitted in.
func (c *Coordinator) Run(ctx context.Context, files []File) *Summary {
	summary := &Summary{Details: make([]Detail, len(files))}
	if len(files) == 0 {
		summary.Details = nil
		return summary
	}

	workers := c.workers
	if workers > len(files) {
		workers = len(files)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				summary.Details[i] = c.processOne(ctx, files[i])
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, d := range summary.Details {
		switch d.Status {
		case StatusSuccess:
			summary.Uploaded++
		case StatusSkipped:
			summary.Skipped++
		default:
			summary.Errors++
		}
	}

	c.log.Info().
		Int("files", len(files)).
		Int("uploaded", summary.Uploaded).
		Int("skipped", summary.Skipped).
		Int("errors", summary.Errors).
		Msg("Batch ingestion finished")

	return summary
}

// Per-file detail statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

func (c *Coordinator) processOne(ctx context.Context, f File) Detail {
	inv, err := dian.ParseBytes(ctx, f.Content)
	if err != nil {
		c.log.Warn().Err(err).Str("file", f.Name).Msg("Document failed to normalize")
		return Detail{Filename: f.Name, Status: StatusError, Msg: err.Error()}
	}

	outcome, err := c.vault.Insert(ctx, inv)
	if err != nil {
		c.log.Error().Err(err).Str("file", f.Name).Msg("Vault insert failed")
		return Detail{Filename: f.Name, Status: StatusError, Msg: err.Error()}
	}
	if outcome == vault.AlreadyExists {
		return Detail{Filename: f.Name, Status: StatusSkipped, Msg: "UUID already exists"}
	}
	return Detail{Filename: f.Name, Status: StatusSuccess, Msg: itemCountMsg(inv)}
}

func itemCountMsg(inv *model.Invoice) string {
	if len(inv.Items) == 1 {
		return "Saved with 1 item"
	}
	return fmt.Sprintf("Saved with %d items", len(inv.Items))
}
