package inbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"meeting-insights-go/internal/audio"
	"meeting-insights-go/internal/lifecycle"
	"meeting-insights-go/internal/pipeline"
	"meeting-insights-go/internal/types"
	"meeting-insights-go/internal/workbook"
)

// Submitter starts processing for a recording already in temp storage.
type Submitter interface {
	Submit(ctx context.Context, sub pipeline.Submission) (types.Meeting, error)
}

// Ingestor adopts files from outside the pipeline into temp storage and
// submits them.
type Ingestor struct {
	manager   *lifecycle.Manager
	submitter Submitter
	log       *logrus.Entry
}

func NewIngestor(manager *lifecycle.Manager, submitter Submitter, log *logrus.Entry) *Ingestor {
	return &Ingestor{manager: manager, submitter: submitter, log: log.WithField("component", "ingest")}
}

// RowError reports a manifest row that could not be submitted.
type RowError struct {
	Row   int    `json:"row"`
	File  string `json:"file"`
	Error string `json:"error"`
}

type ImportResult struct {
	Submitted []types.Meeting `json:"submitted"`
	Failed    []RowError      `json:"failed"`
}

// IngestFile moves path into temp storage and submits it. An empty title
// falls back to the file name.
func (i *Ingestor) IngestFile(ctx context.Context, path, ownerID, title, category string) (types.Meeting, error) {
	if !audio.IsSupported(filepath.Ext(path)) {
		return types.Meeting{}, fmt.Errorf("unsupported audio format %q", filepath.Ext(path))
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	tmp, err := i.manager.Adopt(ownerID, path)
	if err != nil {
		return types.Meeting{}, err
	}
	m, err := i.submitter.Submit(ctx, pipeline.Submission{
		OwnerID:   ownerID,
		Title:     title,
		Category:  category,
		AudioPath: tmp,
		SourceKey: path,
	})
	if err != nil {
		i.manager.CleanupIntermediate(tmp)
		return types.Meeting{}, err
	}
	i.log.WithFields(logrus.Fields{"meeting_id": m.ID, "source": filepath.Base(path)}).Info("recording ingested")
	return m, nil
}

// IngestManifest submits every row of an import workbook. Rows fail
// independently.
func (i *Ingestor) IngestManifest(ctx context.Context, path, baseDir, defaultOwner string) (ImportResult, error) {
	rows, err := workbook.LoadManifest(path, baseDir, defaultOwner)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Submitted: []types.Meeting{}, Failed: []RowError{}}
	for _, r := range rows {
		if r.OwnerID == "" {
			res.Failed = append(res.Failed, RowError{Row: r.Row, File: r.File, Error: "owner is required"})
			continue
		}
		m, err := i.IngestFile(ctx, r.File, r.OwnerID, r.Title, r.Category)
		if err != nil {
			res.Failed = append(res.Failed, RowError{Row: r.Row, File: r.File, Error: err.Error()})
			continue
		}
		res.Submitted = append(res.Submitted, m)
	}
	i.log.WithFields(logrus.Fields{
		"manifest":  filepath.Base(path),
		"submitted": len(res.Submitted),
		"failed":    len(res.Failed),
	}).Info("manifest imported")
	return res, nil
}
