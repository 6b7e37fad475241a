// Package jobs contains background workers that run on a schedule.
// The manifest export job publishes one unsigned manifest per model, plus an index,
// to object storage so that clients can discover files without calling the API.
// A run is idempotent: re-running after a crash overwrites the same keys.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/services"
	"github.com/model-registry/model-registry/internal/storage"
	"github.com/model-registry/model-registry/internal/telemetry"
)

// DefaultManifestPrefix is the key prefix used when none is configured
const DefaultManifestPrefix = "manifests"

// ModelLister lists every model with its update timestamp. repositories.ModelRepository implements it.
type ModelLister interface {
	ListForExport(ctx context.Context) ([]models.ModelChange, error)
}

// ManifestBuilder builds the manifest of one model. services.Catalog implements it.
type ManifestBuilder interface {
	Manifest(ctx context.Context, repoID string, updatedTS int64, version string, presign bool, expires int) (*services.Manifest, error)
}

// IndexItem is one entry of the manifest index
type IndexItem struct {
	RepoID    string `json:"repo_id"`
	UpdatedTS int64  `json:"updated_ts"`
}

// Index lists the exported manifests
type Index struct {
	GeneratedTS int64       `json:"generated_ts"`
	Items       []IndexItem `json:"items"`
}

// ExportResult summarises one export run
type ExportResult struct {
	Exported int
	Failed   int
}

// ManifestExportJob periodically writes <prefix>/<repo>.json for every model and
// <prefix>/index.json listing them.
type ManifestExportJob struct {
	models  ModelLister
	catalog ManifestBuilder
	store   storage.Storage
	prefix  string
	now     func() time.Time

	running  sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManifestExportJob creates a new export job
func NewManifestExportJob(lister ModelLister, catalog ManifestBuilder, store storage.Storage, prefix string) *ManifestExportJob {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultManifestPrefix
	}
	return &ManifestExportJob{
		models:  lister,
		catalog: catalog,
		store:   store,
		prefix:  prefix,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// ManifestKey returns the object key of a model's manifest. Slashes in the repo id
// become "__" so every manifest sits directly under the prefix.
func (j *ManifestExportJob) ManifestKey(repoID string) string {
	return j.prefix + "/" + strings.ReplaceAll(repoID, "/", "__") + ".json"
}

// Start runs an export immediately and then every interval until Stop is called
// or ctx is cancelled.
func (j *ManifestExportJob) Start(ctx context.Context, interval time.Duration) {
	slog.Info("starting manifest export job", "interval", interval, "prefix", j.prefix)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		j.runLogged(ctx)

		for {
			select {
			case <-ticker.C:
				j.runLogged(ctx)
			case <-j.stopCh:
				slog.Info("manifest export job stopped")
				return
			case <-ctx.Done():
				slog.Info("manifest export job context cancelled")
				return
			}
		}
	}()
}

// Stop stops the job and waits for a running export to finish
func (j *ManifestExportJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

func (j *ManifestExportJob) runLogged(ctx context.Context) {
	res, err := j.RunOnce(ctx)
	if err != nil {
		slog.Error("manifest export failed", "error", err)
		return
	}
	slog.Info("manifest export finished", "exported", res.Exported, "failed", res.Failed)
}

// RunOnce exports every manifest and then the index. A model whose manifest fails is
// counted, logged and left out of the index; the run continues with the next model.
// Overlapping runs are serialised.
func (j *ManifestExportJob) RunOnce(ctx context.Context) (*ExportResult, error) {
	j.running.Lock()
	defer j.running.Unlock()

	start := time.Now()
	defer func() { telemetry.ManifestExportDuration.Observe(time.Since(start).Seconds()) }()

	list, err := j.models.ListForExport(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	res := &ExportResult{}
	index := Index{Items: make([]IndexItem, 0, len(list))}
	for _, m := range list {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := j.exportOne(ctx, m); err != nil {
			res.Failed++
			telemetry.ManifestExportErrorsTotal.Inc()
			slog.Error("failed to export manifest", "repo_id", m.RepoID, "error", err)
			continue
		}
		res.Exported++
		index.Items = append(index.Items, IndexItem{RepoID: m.RepoID, UpdatedTS: m.LastUpdateTS})
	}

	index.GeneratedTS = j.now().Unix()
	if err := j.upload(ctx, j.prefix+"/index.json", index); err != nil {
		telemetry.ManifestExportErrorsTotal.Inc()
		return res, fmt.Errorf("failed to write manifest index: %w", err)
	}
	return res, nil
}

func (j *ManifestExportJob) exportOne(ctx context.Context, m models.ModelChange) error {
	manifest, err := j.catalog.Manifest(ctx, m.RepoID, m.LastUpdateTS, "", false, services.MaxExpires)
	if err != nil {
		return err
	}
	return j.upload(ctx, j.ManifestKey(m.RepoID), manifest)
}

func (j *ManifestExportJob) upload(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = j.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)))
	return err
}
