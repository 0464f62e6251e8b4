package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRequirement(t *testing.T) {
	req, err := ComputeRequirement(1000, 50, 5, 200, 30)
	require.NoError(t, err)

	assert.Equal(t, 200, req.LooseFGUsed)
	assert.Equal(t, 800, req.ManufactureQuantity)
	assert.InDelta(t, 40.0, req.BaseKg, 1e-9)
	assert.InDelta(t, 42.0, req.RequiredKg, 1e-9)
	assert.InDelta(t, 12.0, req.ShortageKg, 1e-9)
	assert.True(t, req.NeedsRM())

	var stockErr *InsufficientStockError
	require.ErrorAs(t, req.Err(), &stockErr)
	assert.InDelta(t, 12.0, stockErr.ShortageKg, 1e-9)
	assert.ErrorIs(t, req.Err(), ErrInsufficientStock)
}

func TestComputeRequirementLooseStockCoversDemand(t *testing.T) {
	req, err := ComputeRequirement(100, 50, 5, 150, 0)
	require.NoError(t, err)

	assert.Equal(t, 0, req.ManufactureQuantity)
	assert.Equal(t, 100, req.LooseFGUsed)
	assert.Zero(t, req.RequiredKg)
	assert.Zero(t, req.ShortageKg)
	assert.False(t, req.NeedsRM())
	assert.NoError(t, req.Err())
}

func TestComputeRequirementNoShortage(t *testing.T) {
	req, err := ComputeRequirement(10, 125, 0, 0, 5)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, req.RequiredKg, 1e-9)
	assert.Zero(t, req.ShortageKg)
	assert.NoError(t, req.Err())
}

func TestComputeRequirementRejectsBadInput(t *testing.T) {
	cases := []struct {
		name     string
		qty      int
		grams    float64
		tol      float64
		loose    int
		sentinel error
	}{
		{"zero grams", 10, 0, 5, 0, ErrInvalidProductSpec},
		{"negative grams", 10, -1, 5, 0, ErrInvalidProductSpec},
		{"negative quantity", -1, 50, 5, 0, ErrInvalidInput},
		{"negative tolerance", 10, 50, -0.5, 0, ErrInvalidInput},
		{"tolerance over 100", 10, 50, 120, 0, ErrInvalidInput},
		{"negative loose stock", 10, 50, 5, -3, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeRequirement(tc.qty, tc.grams, tc.tol, tc.loose, 100)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.sentinel), "got %v", err)
		})
	}
}

func TestComputeMaterialSplit(t *testing.T) {
	reqs, err := ComputeMaterialSplit(800, 5, []MaterialLine{
		{Code: "RM-A", GramsPerUnit: 30, AvailableKg: 10},
		{Code: "RM-B", GramsPerUnit: 20, AvailableKg: 100},
	})
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.InDelta(t, 25.2, reqs[0].RequiredKg, 1e-9)
	assert.InDelta(t, 15.2, reqs[0].ShortageKg, 1e-9)
	assert.InDelta(t, 16.8, reqs[1].RequiredKg, 1e-9)
	assert.Zero(t, reqs[1].ShortageKg)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, FirstShortage(reqs), &stockErr)
	assert.Equal(t, "RM-A", stockErr.Reference)
}

func TestFulfillableQuantity(t *testing.T) {
	lines := []MaterialLine{{Code: "RM-A", GramsPerUnit: 50, AvailableKg: 21}}
	// 21 / (0.05 * 1.05) = 400
	assert.Equal(t, 600, FulfillableQuantity(lines, 5, 200))

	lines = append(lines, MaterialLine{Code: "RM-B", GramsPerUnit: 100, AvailableKg: 10.5})
	assert.Equal(t, 100, FulfillableQuantity(lines, 5, 0))
}

func TestValidateSpec(t *testing.T) {
	spec := &ProductSpec{
		Code:         "FG-1",
		GramsPerUnit: 50,
		Processes:    []ProcessTemplate{{Name: "Mixing", Sequence: 1}, {Name: "Packing", Sequence: 2}},
		Materials:    []MaterialLine{{Code: "RM-A", GramsPerUnit: 30}, {Code: "RM-B", GramsPerUnit: 20}},
	}
	require.NoError(t, ValidateSpec(spec))

	spec.Materials[1].GramsPerUnit = 25
	assert.ErrorIs(t, ValidateSpec(spec), ErrInvalidProductSpec)
	spec.Materials[1].GramsPerUnit = 20

	spec.Processes[1].Sequence = 3
	assert.ErrorIs(t, ValidateSpec(spec), ErrInvalidProductSpec)
	spec.Processes[1].Sequence = 2

	spec.Processes = nil
	assert.ErrorIs(t, ValidateSpec(spec), ErrInvalidProductSpec)
}
