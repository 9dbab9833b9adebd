package fetcher

import (
	"context"

	"whalewatch/internal/alert"
)

// WhaleScanner inspects the latest confirmed block of one chain and returns
// the whale alerts it produced. A nil error with no alerts is a normal
// quiet cycle; an error means the chain tip could not be read and the
// caller should skip this poll.
type WhaleScanner interface {
	Scan(ctx context.Context) ([]alert.Alert, error)
}

// HeightScanner inspects one specific historical block. Implemented by
// the chains whose explorers allow addressing blocks by height.
type HeightScanner interface {
	ScanHeight(ctx context.Context, height uint64) ([]alert.Alert, error)
}
