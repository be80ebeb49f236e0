package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/maxdollinger/fireup/internal/db/models"
	"github.com/maxdollinger/fireup/internal/network"
)

// allocateTap implements spec.md §4.5's tap allocator: count existing
// "tapN" devices, then linearly probe N, N+1, ... until no collision with
// any VM row's tap column is found.
func allocateTap(ctx context.Context, vms *models.VMRepository) (string, error) {
	existing, err := vms.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list vms for tap allocation: %w", err)
	}

	taken := make(map[string]bool, len(existing))
	tapCount := 0
	for _, vm := range existing {
		taken[vm.Tap] = true
		if strings.HasPrefix(vm.Tap, "tap") {
			tapCount++
		}
	}

	for n := tapCount; ; n++ {
		candidate := "tap" + strconv.Itoa(n)
		if !taken[candidate] {
			return candidate, nil
		}
	}
}

// validateExplicitTap enforces spec.md §4.5: a caller-supplied tap name is
// accepted only if no *other* VM (selfID) already owns it.
func validateExplicitTap(ctx context.Context, vms *models.VMRepository, tap, selfID string) error {
	existing, err := vms.List(ctx)
	if err != nil {
		return fmt.Errorf("list vms for tap validation: %w", err)
	}
	for _, vm := range existing {
		if vm.Tap == tap && vm.ID != selfID {
			return network.ErrTapInUse
		}
	}
	return nil
}
