// Package refdata serves snapshots of the reference datasets through a
// per-kind TTL cache.
package refdata

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/worklog-cli/internal/model"
)

// ErrUnavailable wraps every storage failure seen by the gateway.
var ErrUnavailable = eris.New("refdata: reference data unavailable")

// DefaultTTL is the snapshot lifetime when none is configured.
const DefaultTTL = 5 * time.Minute

// Source lists the raw reference datasets. store.Store satisfies it.
type Source interface {
	ListFields(ctx context.Context) ([]model.Field, error)
	ListCrops(ctx context.Context) ([]model.Crop, error)
	ListMaterials(ctx context.Context) ([]model.Material, error)
}

// Gateway returns active reference records by kind.
type Gateway interface {
	Fields(ctx context.Context) ([]model.Reference, error)
	Crops(ctx context.Context) ([]model.Reference, error)
	Materials(ctx context.Context) ([]model.Reference, error)
}

type snapshot struct {
	refs    []model.Reference
	expires time.Time
	// failed is set when a refresh of this expired snapshot has failed.
	// A failed snapshot is never served again.
	failed bool
}

// CachedGateway caches one immutable snapshot per kind. An expired snapshot
// is refreshed by a single in-flight load; callers holding a previous
// snapshot are served it while that load runs. Once a refresh fails, calls
// wait on the next load and report its failure as ErrUnavailable.
type CachedGateway struct {
	src Source
	ttl time.Duration

	mu    sync.RWMutex
	snaps map[model.EntityKind]snapshot
	group singleflight.Group

	nowFunc func() time.Time
}

// NewCachedGateway creates a gateway over src. A non-positive ttl uses
// DefaultTTL.
func NewCachedGateway(src Source, ttl time.Duration) *CachedGateway {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedGateway{
		src:     src,
		ttl:     ttl,
		snaps:   make(map[model.EntityKind]snapshot),
		nowFunc: time.Now,
	}
}

func (g *CachedGateway) Fields(ctx context.Context) ([]model.Reference, error) {
	return g.get(ctx, model.KindField)
}

func (g *CachedGateway) Crops(ctx context.Context) ([]model.Reference, error) {
	return g.get(ctx, model.KindCrop)
}

func (g *CachedGateway) Materials(ctx context.Context) ([]model.Reference, error) {
	return g.get(ctx, model.KindMaterial)
}

// Invalidate drops every snapshot.
func (g *CachedGateway) Invalidate() {
	g.mu.Lock()
	g.snaps = make(map[model.EntityKind]snapshot)
	g.mu.Unlock()
}

func (g *CachedGateway) get(ctx context.Context, kind model.EntityKind) ([]model.Reference, error) {
	g.mu.RLock()
	snap, ok := g.snaps[kind]
	g.mu.RUnlock()

	if ok && g.nowFunc().Before(snap.expires) {
		return snap.refs, nil
	}

	ch := g.group.DoChan(string(kind), func() (any, error) {
		// The load outlives any single caller.
		return g.refresh(context.WithoutCancel(ctx), kind)
	})

	if ok && !snap.failed {
		// Stale-while-refresh: the flight keeps running in the background.
		select {
		case res := <-ch:
			if res.Err == nil {
				return res.Val.([]model.Reference), nil
			}
		default:
		}
		return snap.refs, nil
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.Reference), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *CachedGateway) refresh(ctx context.Context, kind model.EntityKind) ([]model.Reference, error) {
	refs, err := g.load(ctx, kind)
	if err != nil {
		zap.L().Warn("refdata: refresh failed",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		g.mu.Lock()
		if s, ok := g.snaps[kind]; ok {
			s.failed = true
			g.snaps[kind] = s
		}
		g.mu.Unlock()
		return nil, eris.Wrapf(ErrUnavailable, "load %s: %v", kind, err)
	}

	g.mu.Lock()
	g.snaps[kind] = snapshot{refs: refs, expires: g.nowFunc().Add(g.ttl)}
	g.mu.Unlock()
	return refs, nil
}

func (g *CachedGateway) load(ctx context.Context, kind model.EntityKind) ([]model.Reference, error) {
	switch kind {
	case model.KindField:
		rows, err := g.src.ListFields(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]model.Reference, 0, len(rows))
		for _, f := range rows {
			if f.IsActive() {
				f.ID = strings.TrimSpace(f.ID)
				out = append(out, f)
			}
		}
		return out, nil
	case model.KindCrop:
		rows, err := g.src.ListCrops(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]model.Reference, 0, len(rows))
		for _, c := range rows {
			if c.IsActive() {
				c.ID = strings.TrimSpace(c.ID)
				out = append(out, c)
			}
		}
		return out, nil
	case model.KindMaterial:
		rows, err := g.src.ListMaterials(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]model.Reference, 0, len(rows))
		for _, m := range rows {
			if m.IsActive() {
				m.ID = strings.TrimSpace(m.ID)
				out = append(out, m)
			}
		}
		return out, nil
	default:
		return nil, eris.Errorf("unknown entity kind %q", kind)
	}
}

var _ Gateway = (*CachedGateway)(nil)
