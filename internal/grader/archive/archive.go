// Package archive persists graded submission artifacts to object storage
// for audit and re-judge comparison.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"gradex/internal/common/storage"
	"gradex/internal/grader/model"
	"gradex/pkg/errors"
)

// Config holds archive settings.
type Config struct {
	Bucket string `yaml:"bucket"`
	// Enabled gates archiving entirely; grading never depends on it.
	Enabled bool `yaml:"enabled"`
}

// Archiver compresses and uploads grading artifacts.
type Archiver struct {
	storage storage.ObjectStorage
	cfg     Config
	encoder *zstd.Encoder
}

// NewArchiver creates an archiver and ensures its bucket exists.
func NewArchiver(ctx context.Context, store storage.ObjectStorage, cfg Config) (*Archiver, error) {
	if !cfg.Enabled {
		return &Archiver{cfg: cfg}, nil
	}
	if store == nil {
		return nil, errors.ValidationError("storage", "required when archiving is enabled")
	}
	if cfg.Bucket == "" {
		return nil, errors.ValidationError("bucket", "required when archiving is enabled")
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.Wrap(err, errors.InternalServerError)
	}
	if err := store.EnsureBucket(ctx, cfg.Bucket); err != nil {
		return nil, err
	}
	return &Archiver{storage: store, cfg: cfg, encoder: encoder}, nil
}

// record is the stored artifact layout.
type record struct {
	Submission *model.Submission        `json:"submission"`
	Results    []model.SubmissionResult `json:"results"`
	ArchivedAt time.Time                `json:"archived_at"`
}

// Archive uploads one graded submission with its result rows. No-op when
// archiving is disabled.
func (a *Archiver) Archive(ctx context.Context, submission *model.Submission, results []model.SubmissionResult) error {
	if !a.cfg.Enabled {
		return nil
	}
	if submission == nil {
		return errors.ValidationError("submission", "required")
	}

	payload, err := json.Marshal(record{
		Submission: submission,
		Results:    results,
		ArchivedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, errors.InternalServerError)
	}
	compressed := a.encoder.EncodeAll(payload, nil)

	key := objectKey(submission.SubmissionID, submission.Generation)
	return a.storage.PutObject(ctx, a.cfg.Bucket, key, bytes.NewReader(compressed), int64(len(compressed)), "application/zstd")
}

// Fetch downloads and decompresses one archived record.
func (a *Archiver) Fetch(ctx context.Context, submissionID string, generation int) (*model.Submission, []model.SubmissionResult, error) {
	if !a.cfg.Enabled {
		return nil, nil, errors.New(errors.NotFound).WithMessage("archiving is disabled")
	}
	reader, err := a.storage.GetObject(ctx, a.cfg.Bucket, objectKey(submissionID, generation))
	if err != nil {
		return nil, nil, err
	}
	defer reader.Close()

	decoder, err := zstd.NewReader(reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.InternalServerError)
	}
	defer decoder.Close()

	var rec record
	if err := json.NewDecoder(decoder).Decode(&rec); err != nil {
		return nil, nil, errors.Wrap(err, errors.InternalServerError)
	}
	return rec.Submission, rec.Results, nil
}

func objectKey(submissionID string, generation int) string {
	return fmt.Sprintf("submissions/%s/g%d.json.zst", submissionID, generation)
}
