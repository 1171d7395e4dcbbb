package saga

import (
	"context"
	"sort"

	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
)

// ValidateReferencesHandler проверяет, что item/location из строк саги
// существуют в каталоге. Только чтение, жёстко не падает: возвращает
// списки невалидных ссылок, исход решает координатор.
type ValidateReferencesHandler struct {
	catalog repository.CatalogRepo
}

func NewValidateReferencesHandler(catalog repository.CatalogRepo) *ValidateReferencesHandler {
	return &ValidateReferencesHandler{catalog: catalog}
}

func (h *ValidateReferencesHandler) Step() Step { return StepValidateReferences }

func (h *ValidateReferencesHandler) Handle(ctx context.Context, execID uuid.UUID, in Document) Result {
	itemIDs := make([]int64, 0, len(in.Lines))
	locationIDs := make([]int64, 0, len(in.Lines))
	seenItem := map[int64]bool{}
	seenLoc := map[int64]bool{}
	for _, l := range in.Lines {
		if !seenItem[l.ItemID] {
			seenItem[l.ItemID] = true
			itemIDs = append(itemIDs, l.ItemID)
		}
		// location опциональна на этапе брони
		if l.LocationID != 0 && !seenLoc[l.LocationID] {
			seenLoc[l.LocationID] = true
			locationIDs = append(locationIDs, l.LocationID)
		}
	}

	existingItems, err := h.catalog.ExistingItemIDs(ctx, itemIDs)
	if err != nil {
		return storeErr(err)
	}
	existingLocs, err := h.catalog.ExistingLocationIDs(ctx, locationIDs)
	if err != nil {
		return storeErr(err)
	}

	var invalidItems, invalidLocs []int64
	for _, id := range itemIDs {
		if !existingItems[id] {
			invalidItems = append(invalidItems, id)
		}
	}
	for _, id := range locationIDs {
		if !existingLocs[id] {
			invalidLocs = append(invalidLocs, id)
		}
	}
	sort.Slice(invalidItems, func(i, j int) bool { return invalidItems[i] < invalidItems[j] })
	sort.Slice(invalidLocs, func(i, j int) bool { return invalidLocs[i] < invalidLocs[j] })

	return ok(Document{
		InvalidItems:     invalidItems,
		InvalidLocations: invalidLocs,
	})
}
