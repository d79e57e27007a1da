package pipeline

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/fileloader-io/fileloader/internal/filestore"
)

// FileJob names one file discovered in the drop directory, awaiting dispatch.
type FileJob struct {
	Path string
	Name string
	Size int64
}

// FileDiscovery snapshots the drop directory into an immutable ordered list of FileJobs.
// A snapshot never mutates once returned — files that arrive after Discover returns are
// picked up by the next scheduled run, not this one.
type FileDiscovery struct {
	store filestore.Store
	dir   string
}

// NewFileDiscovery creates a FileDiscovery scanning dir in store.
func NewFileDiscovery(store filestore.Store, dir string) *FileDiscovery {
	return &FileDiscovery{store: store, dir: dir}
}

// Discover lists the drop directory and returns a stable-ordered snapshot of FileJobs,
// sorted by name for deterministic dispatch order across runs. A listing failure is
// fatal to the run — spec.md's ListingFailed — since the Dispatcher has nothing to
// schedule without it.
func (d *FileDiscovery) Discover(ctx context.Context) ([]FileJob, error) {
	infos, err := d.store.List(ctx, d.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListingFailed, err)
	}

	jobs := make([]FileJob, 0, len(infos))

	for _, info := range infos {
		jobs = append(jobs, FileJob{
			Path: path.Join(d.dir, info.Name),
			Name: info.Name,
			Size: info.Size,
		})
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	return jobs, nil
}
