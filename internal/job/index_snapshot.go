package job

import (
	"context"

	"github.com/xxxsen/docqa/internal/vectorindex"
)

// IndexSnapshotJob periodically flushes the vector index to disk so a
// restart between upserts loses as little as possible.
type IndexSnapshotJob struct {
	index vectorindex.Index
}

func NewIndexSnapshotJob(index vectorindex.Index) *IndexSnapshotJob {
	return &IndexSnapshotJob{index: index}
}

func (j *IndexSnapshotJob) Name() string {
	return "index_snapshot"
}

func (j *IndexSnapshotJob) Run(ctx context.Context) error {
	if j.index == nil {
		return nil
	}
	return j.index.Snapshot(ctx)
}
