package lifecycle

import (
	"context"
	"log"

	"agora/gateway/internal/cache"
	"agora/gateway/internal/remote"
	"agora/gateway/internal/space"
)

// spacesAPI is the slice of the upstream client the operations use.
type spacesAPI interface {
	PublishSpace(ctx context.Context, spacePK string, visibility space.Visibility) error
	StartSpace(ctx context.Context, spacePK string, block bool) error
	PatchSpace(ctx context.Context, spacePK string, patch remote.SpacePatch) error
	DeleteSpace(ctx context.Context, spacePK string) error
	GetIncentiveCandidates(ctx context.Context, spacePK string) (*remote.IncentiveCandidates, error)
	SelectIncentiveUsers(ctx context.Context, spacePK string, addresses []string) error
}

type Operations struct {
	cache    *cache.Optimistic
	api      spacesAPI
	toasts   Toasts
	popup    Popup
	nav      Navigator
	tr       Translator
	contract ContractCaller
}

func NewOperations(
	optimistic *cache.Optimistic,
	api spacesAPI,
	toasts Toasts,
	popup Popup,
	nav Navigator,
	tr Translator,
	contract ContractCaller,
) *Operations {
	return &Operations{
		cache:    optimistic,
		api:      api,
		toasts:   toasts,
		popup:    popup,
		nav:      nav,
		tr:       tr,
		contract: contract,
	}
}

// Publish moves a draft space to Published with the chosen visibility.
func (o *Operations) Publish(ctx context.Context, spacePK string, visibility space.Visibility) error {
	defer o.popup.Close()

	rollback, err := o.cache.Apply(ctx, cache.Key(spacePK), func(current *space.Space) (*space.Space, error) {
		current.PublishState = space.PublishStatePublished
		current.Visibility = visibility
		return current, nil
	})
	if err != nil {
		return err
	}

	if err := o.api.PublishSpace(ctx, spacePK, visibility); err != nil {
		o.rollbackQuietly(ctx, rollback)
		o.toasts.Error(o.tr.T("toast_publish_failed"))
		return err
	}

	o.invalidateQuietly(ctx, cache.Key(spacePK))
	o.toasts.Success(o.tr.T("toast_publish_success"))
	return nil
}

// Start moves the space into InProgress. Rollback is wired the same
// as every other transition.
func (o *Operations) Start(ctx context.Context, spacePK string, block bool) error {
	defer o.popup.Close()

	rollback, err := o.cache.Apply(ctx, cache.Key(spacePK), func(current *space.Space) (*space.Space, error) {
		current.Status = space.StatusInProgress
		current.BlockParticipate = block
		return current, nil
	})
	if err != nil {
		return err
	}

	if err := o.api.StartSpace(ctx, spacePK, block); err != nil {
		o.rollbackQuietly(ctx, rollback)
		o.toasts.Error(o.tr.T("toast_start_failed"))
		return err
	}

	o.toasts.Success(o.tr.T("toast_start_success"))
	return nil
}

// Finish runs the two-phase sequence: incentive selection when an
// incentive contract and candidates exist, then the finished=true
// patch. The optimistic status write happens only after both phases so
// a failed incentive phase never shows a finished space.
func (o *Operations) Finish(ctx context.Context, spacePK string, block bool) error {
	defer o.popup.Close()

	candidates, err := o.api.GetIncentiveCandidates(ctx, spacePK)
	if err != nil {
		o.toasts.Error(o.tr.T("toast_finish_failed"))
		return err
	}

	if candidates.IncentiveAddress != "" && len(candidates.Candidates) > 0 {
		if err := o.contract.SelectIncentives(ctx, candidates.IncentiveAddress, candidates.Candidates); err != nil {
			o.toasts.Error(o.tr.T("toast_finish_failed"))
			return err
		}
		addresses := make([]string, 0, len(candidates.Candidates))
		for _, candidate := range candidates.Candidates {
			addresses = append(addresses, candidate.Address)
		}
		if err := o.api.SelectIncentiveUsers(ctx, spacePK, addresses); err != nil {
			o.toasts.Error(o.tr.T("toast_finish_failed"))
			return err
		}
	}

	finished := true
	patch := remote.SpacePatch{Finished: &finished, BlockParticipate: &block}
	if err := o.api.PatchSpace(ctx, spacePK, patch); err != nil {
		o.toasts.Error(o.tr.T("toast_finish_failed"))
		return err
	}

	if _, err := o.cache.Apply(ctx, cache.Key(spacePK), func(current *space.Space) (*space.Space, error) {
		current.Status = space.StatusFinished
		return current, nil
	}); err != nil {
		log.Printf("finish %s: cache write failed: %v", spacePK, err)
	}
	o.invalidateQuietly(ctx, cache.IncentiveKey(spacePK))
	o.toasts.Success(o.tr.T("toast_finish_success"))
	return nil
}

// Delete removes the space upstream and navigates the viewer home. No
// optimistic write: the entity ceases to exist, so the cache entry is
// dropped instead.
func (o *Operations) Delete(ctx context.Context, spacePK string) error {
	defer o.popup.Close()

	if err := o.api.DeleteSpace(ctx, spacePK); err != nil {
		o.toasts.Error(o.tr.T("toast_delete_failed"))
		return err
	}

	o.invalidateQuietly(ctx, cache.Key(spacePK))
	o.nav.Navigate("/")
	o.toasts.Success(o.tr.T("toast_delete_success"))
	return nil
}

// UpdateVisibility is a single-field optimistic patch.
func (o *Operations) UpdateVisibility(ctx context.Context, spacePK string, visibility space.Visibility) error {
	defer o.popup.Close()

	rollback, err := o.cache.Apply(ctx, cache.Key(spacePK), func(current *space.Space) (*space.Space, error) {
		current.Visibility = visibility
		return current, nil
	})
	if err != nil {
		return err
	}

	if err := o.api.PatchSpace(ctx, spacePK, remote.SpacePatch{Visibility: &visibility}); err != nil {
		o.rollbackQuietly(ctx, rollback)
		o.toasts.Error(o.tr.T("toast_visibility_failed"))
		return err
	}

	o.invalidateQuietly(ctx, cache.Key(spacePK))
	o.toasts.Success(o.tr.T("toast_visibility_success"))
	return nil
}

// UpdateAnonymousParticipation toggles anonymous participation.
func (o *Operations) UpdateAnonymousParticipation(ctx context.Context, spacePK string, anonymous bool) error {
	defer o.popup.Close()

	rollback, err := o.cache.Apply(ctx, cache.Key(spacePK), func(current *space.Space) (*space.Space, error) {
		current.AnonymousParticipation = anonymous
		return current, nil
	})
	if err != nil {
		return err
	}

	if err := o.api.PatchSpace(ctx, spacePK, remote.SpacePatch{AnonymousParticipation: &anonymous}); err != nil {
		o.rollbackQuietly(ctx, rollback)
		o.toasts.Error(o.tr.T("toast_anonymity_failed"))
		return err
	}

	o.invalidateQuietly(ctx, cache.Key(spacePK))
	o.toasts.Success(o.tr.T("toast_anonymity_success"))
	return nil
}

// UpdateTitle renames the space, same optimistic single-field pattern.
func (o *Operations) UpdateTitle(ctx context.Context, spacePK, title string) error {
	rollback, err := o.cache.Apply(ctx, cache.Key(spacePK), func(current *space.Space) (*space.Space, error) {
		current.Title = title
		return current, nil
	})
	if err != nil {
		return err
	}

	if err := o.api.PatchSpace(ctx, spacePK, remote.SpacePatch{Title: &title}); err != nil {
		o.rollbackQuietly(ctx, rollback)
		o.toasts.Error(o.tr.T("toast_update_title_failed"))
		return err
	}

	o.invalidateQuietly(ctx, cache.Key(spacePK))
	o.toasts.Success(o.tr.T("toast_update_title_success"))
	return nil
}

// rollbackQuietly restores the snapshot before the error surfaces; a
// failed restore is logged, not returned, so the original cause wins.
func (o *Operations) rollbackQuietly(ctx context.Context, rollback cache.Rollback) {
	if err := rollback(ctx); err != nil {
		log.Printf("cache rollback failed: %v", err)
	}
}

func (o *Operations) invalidateQuietly(ctx context.Context, key string) {
	if err := o.cache.Invalidate(ctx, key); err != nil {
		log.Printf("cache invalidate %s failed: %v", key, err)
	}
}
