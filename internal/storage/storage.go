package storage

import (
	"context"

	"github.com/GoJackzi/zamauction/internal/model"
)

// Storage defines an archive sink for snapshots. Archiving is an audit
// trail; the in-memory cache never reads it back.
type Storage interface {
	SaveSnapshot(ctx context.Context, snap *model.Snapshot) error
}
