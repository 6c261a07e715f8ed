package history

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// Reader is the read side of a history store.
type Reader interface {
	LastEvent(ctx context.Context, clusterID string) (*scaling.ScalingEvent, error)
	LastSuccess(ctx context.Context, clusterID string, dir scaling.Direction) (*scaling.ScalingEvent, error)
}

// Read gathers the engine's view of a cluster's history.
func Read(ctx context.Context, r Reader, clusterID string) (scaling.History, error) {
	var h scaling.History
	var err error

	if h.Last, err = r.LastEvent(ctx, clusterID); err != nil {
		return h, fmt.Errorf("%w: last event for %s: %w", errors.ErrHistoryRead, clusterID, err)
	}
	if h.LastScaleUp, err = r.LastSuccess(ctx, clusterID, scaling.DirectionUp); err != nil {
		return h, fmt.Errorf("%w: last scale up for %s: %w", errors.ErrHistoryRead, clusterID, err)
	}
	if h.LastScaleDown, err = r.LastSuccess(ctx, clusterID, scaling.DirectionDown); err != nil {
		return h, fmt.Errorf("%w: last scale down for %s: %w", errors.ErrHistoryRead, clusterID, err)
	}
	return h, nil
}

// index is the per-cluster summary every backend maintains.
type index struct {
	Last          *scaling.ScalingEvent `json:"last,omitempty"`
	LastScaleUp   *scaling.ScalingEvent `json:"last_scale_up,omitempty"`
	LastScaleDown *scaling.ScalingEvent `json:"last_scale_down,omitempty"`
}

func (ix *index) observe(ev scaling.ScalingEvent) {
	e := ev
	ix.Last = &e
	if !ev.IsSuccessfulResize() {
		return
	}
	switch ev.Direction {
	case scaling.DirectionUp:
		ix.LastScaleUp = &e
	case scaling.DirectionDown:
		ix.LastScaleDown = &e
	}
}

// seen reports whether ev is already the most recent event.
func (ix *index) seen(ev scaling.ScalingEvent) bool {
	return ix.Last != nil && ix.Last.ID == ev.ID
}

func (ix *index) lastSuccess(dir scaling.Direction) *scaling.ScalingEvent {
	switch dir {
	case scaling.DirectionUp:
		return ix.LastScaleUp
	case scaling.DirectionDown:
		return ix.LastScaleDown
	default:
		return nil
	}
}

func clone(ev *scaling.ScalingEvent) *scaling.ScalingEvent {
	if ev == nil {
		return nil
	}
	c := *ev
	return &c
}
