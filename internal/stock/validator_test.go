package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	skus map[uuid.UUID]SkuInfo
	err  error
}

func (s fakeService) GetSku(_ context.Context, id uuid.UUID) (SkuInfo, error) {
	if s.err != nil {
		return SkuInfo{}, s.err
	}
	sku, ok := s.skus[id]
	if !ok {
		return SkuInfo{}, ErrSkuNotFound
	}
	return sku, nil
}

func activeSku(id uuid.UUID, available int) SkuInfo {
	return SkuInfo{ID: id, Code: "SKU", Name: "widget", Available: available, Active: true, ProductActive: true}
}

func TestValidatePasses(t *testing.T) {
	id := uuid.New()
	v := Validator{Svc: fakeService{skus: map[uuid.UUID]SkuInfo{id: activeSku(id, 100)}}}

	result, err := v.Validate(context.Background(), []Request{{SkuID: id, Quantity: 5, Selected: true}})
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Empty(t, result.Errors)
	require.Empty(t, result.Warnings)
	require.Equal(t, 100, result.Details[id].Available)
	require.Equal(t, 5, result.Details[id].Requested)
}

func TestValidateSkipsUnselected(t *testing.T) {
	id := uuid.New()
	v := Validator{Svc: fakeService{skus: map[uuid.UUID]SkuInfo{}}}

	result, err := v.Validate(context.Background(), []Request{{SkuID: id, Quantity: 5, Selected: false}})
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Empty(t, result.Details)
}

func TestValidateInsufficientStock(t *testing.T) {
	id := uuid.New()
	v := Validator{Svc: fakeService{skus: map[uuid.UUID]SkuInfo{id: activeSku(id, 3)}}}

	result, err := v.Validate(context.Background(), []Request{{SkuID: id, Quantity: 5, Selected: true}})
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Contains(t, result.Errors[id], "only 3")
}

func TestValidateOutOfStock(t *testing.T) {
	id := uuid.New()
	v := Validator{Svc: fakeService{skus: map[uuid.UUID]SkuInfo{id: activeSku(id, 0)}}}

	result, err := v.Validate(context.Background(), []Request{{SkuID: id, Quantity: 1, Selected: true}})
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Contains(t, result.Errors[id], "out of stock")
}

func TestValidateLowStockWarning(t *testing.T) {
	id := uuid.New()
	v := Validator{Svc: fakeService{skus: map[uuid.UUID]SkuInfo{id: activeSku(id, 7)}}}

	result, err := v.Validate(context.Background(), []Request{{SkuID: id, Quantity: 2, Selected: true}})
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Empty(t, result.Errors)
	require.Contains(t, result.Warnings[id], "only 7")
}

func TestValidateCustomThreshold(t *testing.T) {
	id := uuid.New()
	v := Validator{
		Svc:               fakeService{skus: map[uuid.UUID]SkuInfo{id: activeSku(id, 7)}},
		LowStockThreshold: 5,
	}

	result, err := v.Validate(context.Background(), []Request{{SkuID: id, Quantity: 2, Selected: true}})
	require.NoError(t, err)
	require.Empty(t, result.Warnings)
}

func TestValidateInactiveSkuIsHardStop(t *testing.T) {
	active := uuid.New()
	inactive := uuid.New()
	skus := map[uuid.UUID]SkuInfo{
		active:   activeSku(active, 100),
		inactive: {ID: inactive, Name: "discontinued", Available: 100, Active: false, ProductActive: true},
	}
	v := Validator{Svc: fakeService{skus: skus}}

	_, err := v.Validate(context.Background(), []Request{
		{SkuID: active, Quantity: 1, Selected: true},
		{SkuID: inactive, Quantity: 1, Selected: true},
	})
	var inactiveErr *InactiveProductError
	require.ErrorAs(t, err, &inactiveErr)
	require.Equal(t, inactive, inactiveErr.SkuID)
}

func TestValidateInactiveProductIsHardStop(t *testing.T) {
	id := uuid.New()
	v := Validator{Svc: fakeService{skus: map[uuid.UUID]SkuInfo{
		id: {ID: id, Name: "pulled", Available: 100, Active: true, ProductActive: false},
	}}}

	_, err := v.Validate(context.Background(), []Request{{SkuID: id, Quantity: 1, Selected: true}})
	var inactiveErr *InactiveProductError
	require.ErrorAs(t, err, &inactiveErr)
}

func TestValidatePropagatesLookupFailure(t *testing.T) {
	boom := errors.New("db down")
	v := Validator{Svc: fakeService{err: boom}}

	_, err := v.Validate(context.Background(), []Request{{SkuID: uuid.New(), Quantity: 1, Selected: true}})
	require.ErrorIs(t, err, boom)
}
