package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/arkan-dev/backend-mall/internal/common"
	"github.com/arkan-dev/backend-mall/internal/pricing"
)

// ErrMalformedItem is wrapped by every item normalization failure.
var ErrMalformedItem = errors.New("malformed checkout item")

type rawItem struct {
	SkuID      string `json:"skuId"`
	Quantity   *int   `json:"quantity"`
	Selected   *bool  `json:"selected"`
	CartLineID string `json:"cartLineId"`
}

// NormalizeItems turns raw cart input into typed checkout items. Two forms
// are accepted: an array of line objects, or an object mapping SKU id to
// quantity. Malformed input fails with a validation error naming the
// missing field.
func NormalizeItems(raw json.RawMessage) ([]pricing.Item, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var arr []rawItem
	if err := json.Unmarshal(raw, &arr); err == nil {
		return normalizeArray(arr)
	}
	var obj map[string]int
	if err := json.Unmarshal(raw, &obj); err == nil {
		return normalizeObject(obj)
	}
	return nil, common.ValidationError("items must be an array of lines or a sku-to-quantity object", ErrMalformedItem)
}

func normalizeArray(arr []rawItem) ([]pricing.Item, error) {
	items := make([]pricing.Item, 0, len(arr))
	for i, raw := range arr {
		if raw.SkuID == "" {
			return nil, missingField(i, "skuId")
		}
		skuID, err := uuid.Parse(raw.SkuID)
		if err != nil {
			return nil, common.ValidationError(fmt.Sprintf("item %d: invalid skuId", i), ErrMalformedItem)
		}
		if raw.Quantity == nil {
			return nil, missingField(i, "quantity")
		}
		if *raw.Quantity <= 0 {
			return nil, common.ValidationError(fmt.Sprintf("item %d: quantity must be positive", i), ErrMalformedItem)
		}
		selected := true
		if raw.Selected != nil {
			selected = *raw.Selected
		}
		item := pricing.Item{SkuID: skuID, Quantity: *raw.Quantity, Selected: selected}
		if raw.CartLineID != "" {
			lineID, err := uuid.Parse(raw.CartLineID)
			if err != nil {
				return nil, common.ValidationError(fmt.Sprintf("item %d: invalid cartLineId", i), ErrMalformedItem)
			}
			item.CartLineID = &lineID
		}
		items = append(items, item)
	}
	return items, nil
}

func normalizeObject(obj map[string]int) ([]pricing.Item, error) {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	items := make([]pricing.Item, 0, len(obj))
	for _, key := range keys {
		qty := obj[key]
		skuID, err := uuid.Parse(key)
		if err != nil {
			return nil, common.ValidationError(fmt.Sprintf("item %q: invalid skuId", key), ErrMalformedItem)
		}
		if qty <= 0 {
			return nil, common.ValidationError(fmt.Sprintf("item %q: quantity must be positive", key), ErrMalformedItem)
		}
		items = append(items, pricing.Item{SkuID: skuID, Quantity: qty, Selected: true})
	}
	return items, nil
}

func missingField(index int, field string) error {
	return common.ValidationError(fmt.Sprintf("item %d: missing field %q", index, field), ErrMalformedItem)
}
