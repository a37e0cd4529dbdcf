package rit

import (
	"context"
	"errors"

	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/sirupsen/logrus"
)

type snapshotSource interface {
	GetSnapshot(ctx context.Context, ids []string) (models.Snapshot, error)
}

// Fallback serves snapshots from primary and polls secondary whenever primary
// has no usable data, typically a quote stream that is down or reconnecting
// in front of the REST client.
type Fallback struct {
	primary   snapshotSource
	secondary snapshotSource
	logger    *logrus.Logger
}

func NewFallback(primary, secondary snapshotSource, logger *logrus.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) GetSnapshot(ctx context.Context, ids []string) (models.Snapshot, error) {
	snap, err := f.primary.GetSnapshot(ctx, ids)
	if err == nil || !errors.Is(err, models.ErrDataUnavailable) {
		return snap, err
	}
	f.logger.WithError(err).Debug("Primary market data unavailable, polling REST snapshot")
	return f.secondary.GetSnapshot(ctx, ids)
}
