// Package storagetest holds behavior tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage"
)

// Run exercises a storage backend. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("context round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		record := domain.ContextRecord{
			ID:          "ctx_1772366400_ab12cd",
			Kind:        domain.ContextDiscovery,
			PrincipalID: "acme_corp",
			CreatedAt:   created,
			ExpiresAt:   created.Add(domain.ContextTTL),
			Payload: domain.ContextPayload{
				Query:         "sports enthusiasts",
				RankingMethod: "ai",
				Results:       []domain.ResultRef{{SignalID: "seg_200065", Score: 1}},
				Proposals: []domain.Proposal{{
					ID:           "custom_1_55aa",
					ContextID:    "ctx_1772366400_ab12cd",
					Name:         "Weekend Sports Viewers",
					EstimatedCPM: domain.Float(4.5),
					Estimation:   domain.EstimationTag,
				}},
			},
		}
		if err := store.CreateContext(ctx, record); err != nil {
			t.Fatalf("create context: %v", err)
		}

		got, err := store.GetContext(ctx, record.ID)
		if err != nil {
			t.Fatalf("get context: %v", err)
		}
		if got.PrincipalID != "acme_corp" || got.Kind != domain.ContextDiscovery {
			t.Fatalf("unexpected record: %+v", got)
		}
		if !got.ExpiresAt.Equal(record.ExpiresAt) {
			t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, record.ExpiresAt)
		}
		proposal, ok := got.Payload.Proposal("custom_1_55aa")
		if !ok {
			t.Fatal("expected proposal in payload")
		}
		if proposal.EstimatedCPM == nil || *proposal.EstimatedCPM != 4.5 {
			t.Fatalf("estimated cpm = %v, want 4.5", proposal.EstimatedCPM)
		}
	})

	t.Run("context duplicate id", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		record := domain.ContextRecord{ID: "ctx_dup", Kind: domain.ContextDiscovery, CreatedAt: time.Unix(1, 0), ExpiresAt: time.Unix(2, 0)}
		if err := store.CreateContext(ctx, record); err != nil {
			t.Fatalf("create context: %v", err)
		}
		if err := store.CreateContext(ctx, record); !errors.Is(err, storage.ErrAlreadyExists) {
			t.Fatalf("duplicate create err = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("context missing", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.GetContext(context.Background(), "ctx_missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("get missing err = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete expired contexts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		for i, expires := range []time.Time{base.Add(-time.Hour), base.Add(time.Hour)} {
			record := domain.ContextRecord{
				ID:        fmt.Sprintf("ctx_%d", i),
				Kind:      domain.ContextDiscovery,
				CreatedAt: expires.Add(-domain.ContextTTL),
				ExpiresAt: expires,
			}
			if err := store.CreateContext(ctx, record); err != nil {
				t.Fatalf("create context: %v", err)
			}
		}
		deleted, err := store.DeleteContextsExpiredBefore(ctx, base)
		if err != nil {
			t.Fatalf("delete expired: %v", err)
		}
		if deleted != 1 {
			t.Fatalf("deleted = %d, want 1", deleted)
		}
		if _, err := store.GetContext(ctx, "ctx_1"); err != nil {
			t.Fatalf("expected live context to remain: %v", err)
		}
	})

	t.Run("activation lifecycle", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		activation := domain.Activation{
			ID:                "act_1",
			SignalID:          "sports_enthusiasts_public",
			Platform:          "the-trade-desk",
			Account:           "acct-1",
			PrincipalID:       "acme_corp",
			Origin:            domain.OriginCatalog,
			State:             domain.StateActivating,
			CreatedAt:         created,
			AssignedSegmentID: "the-trade-desk_sports_enthusiasts_public_acct-1",
		}
		if err := store.CreateActivation(ctx, activation); err != nil {
			t.Fatalf("create activation: %v", err)
		}
		if err := store.CreateActivation(ctx, activation); !errors.Is(err, storage.ErrAlreadyExists) {
			t.Fatalf("duplicate create err = %v, want ErrAlreadyExists", err)
		}

		updated, err := store.UpdateActivation(ctx, "act_1", func(a *domain.Activation) error {
			a.State = domain.StateDeployed
			a.PlatformSegmentID = a.AssignedSegmentID
			a.UpdatedAt = created.Add(time.Hour)
			return nil
		})
		if err != nil {
			t.Fatalf("update activation: %v", err)
		}
		if updated.State != domain.StateDeployed {
			t.Fatalf("state = %q, want %q", updated.State, domain.StateDeployed)
		}

		got, err := store.GetActivation(ctx, "act_1")
		if err != nil {
			t.Fatalf("get activation: %v", err)
		}
		if got.PlatformSegmentID != "the-trade-desk_sports_enthusiasts_public_acct-1" {
			t.Fatalf("platform segment id = %q", got.PlatformSegmentID)
		}
		if !got.CreatedAt.Equal(created) {
			t.Fatalf("created_at = %v, want %v", got.CreatedAt, created)
		}
	})

	t.Run("activation update aborted", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		activation := domain.Activation{ID: "act_2", SignalID: "s", Platform: "p", Origin: domain.OriginCatalog, State: domain.StateActivating, CreatedAt: time.Unix(10, 0)}
		if err := store.CreateActivation(ctx, activation); err != nil {
			t.Fatalf("create activation: %v", err)
		}
		abort := errors.New("abort")
		if _, err := store.UpdateActivation(ctx, "act_2", func(a *domain.Activation) error {
			a.State = domain.StateFailed
			return abort
		}); !errors.Is(err, abort) {
			t.Fatalf("update err = %v, want abort", err)
		}
		got, err := store.GetActivation(ctx, "act_2")
		if err != nil {
			t.Fatalf("get activation: %v", err)
		}
		if got.State != domain.StateActivating {
			t.Fatalf("state = %q, want unchanged %q", got.State, domain.StateActivating)
		}
		if _, err := store.UpdateActivation(ctx, "act_missing", func(*domain.Activation) error { return nil }); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("update missing err = %v, want ErrNotFound", err)
		}
	})

	t.Run("concurrent contexts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("ctx_concurrent_%d", i)
				record := domain.ContextRecord{ID: id, Kind: domain.ContextDiscovery, CreatedAt: time.Unix(1, 0), ExpiresAt: time.Unix(2, 0)}
				if err := store.CreateContext(ctx, record); err != nil {
					errs <- err
					return
				}
				if _, err := store.GetContext(ctx, id); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent access: %v", err)
		}
	})
}
