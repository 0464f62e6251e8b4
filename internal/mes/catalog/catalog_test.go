package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
)

const sample = `
products:
  - code: VC-500
    name: Vitamin C 500mg
    attributes:
      form: tablet
    processes:
      - name: Mixing
        work_center: WC-MIX
        weight: 2
        steps: [Weigh, Blend]
      - name: Tableting
        work_center: WC-TAB
      - name: Packing
        work_center: WC-PACK
    materials:
      - code: ASC-ACID
        grams_per_unit: 40
      - code: BINDER
        grams_per_unit: 10
raw_materials:
  - code: ASC-ACID
    name: Ascorbic acid
    stock_kg: 1000
  - code: BINDER
    stock_kg: 250.5
fg_stock:
  - product_code: VC-500
    loose_units: 120
role_grants:
  - user_id: sup-1
    role: supervisor
    work_center: WC-MIX
  - user_id: head-1
    role: production_head
`

func TestParseAndValidate(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, c.Products, 1)
	assert.Equal(t, []string{"Weigh", "Blend"}, c.Products[0].Processes[0].Steps)
	assert.Len(t, c.RoleGrants, 2)

	cases := map[string]string{
		"no processes": "products:\n  - code: X\n    materials: [{code: A, grams_per_unit: 1}]\n",
		"no materials": "products:\n  - code: X\n    processes: [{name: P}]\n",
		"zero grams":   "products:\n  - code: X\n    processes: [{name: P}]\n    materials: [{code: A, grams_per_unit: 0}]\n",
		"duplicate":    "products:\n  - code: X\n    processes: [{name: P}]\n    materials: [{code: A, grams_per_unit: 1}]\n  - code: X\n    processes: [{name: P}]\n    materials: [{code: A, grams_per_unit: 1}]\n",
		"unknown role": "role_grants:\n  - user_id: u\n    role: wizard\n",
		"negative rm":  "raw_materials:\n  - code: A\n    stock_kg: -1\n",
		"malformed":    "products: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, err = Parse([]byte(cases["no processes"]))
	assert.ErrorIs(t, err, engine.ErrInvalidProductSpec)
}

func TestSeedIsRepeatable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "products.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	c, err := Load(path)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		sum, err := Seed(ctx, repos, c, nil)
		require.NoError(t, err)
		assert.Equal(t, Summary{Products: 1, RawMaterials: 2, FGStock: 1, RoleGrants: 2}, sum)
	}

	p, err := repos.Product.FindByCode(ctx, "VC-500")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, p.GramsPerUnit, 1e-9)
	require.Len(t, p.Processes, 3)
	assert.Equal(t, "Mixing", p.Processes[0].Name)
	assert.Equal(t, 2.0, p.Processes[0].Weight)
	assert.Equal(t, 1.0, p.Processes[1].Weight)
	assert.Len(t, p.Processes[0].Steps, 2)
	assert.Len(t, p.Materials, 2)
	assert.JSONEq(t, `{"form":"tablet"}`, string(p.Attributes))

	spec, err := repos.Product.GetProductSpec(ctx, "VC-500")
	require.NoError(t, err)
	assert.InDelta(t, 1250.5, spec.TotalAvailableKg(), 1e-9)

	loose, err := repos.Product.LooseUnitsAvailable(ctx, "VC-500")
	require.NoError(t, err)
	assert.Equal(t, 120, loose)

	roles, err := repos.Role.RolesOf(ctx, "sup-1")
	require.NoError(t, err)
	assert.Equal(t, []string{engine.RoleSupervisor}, roles)
	ok, err := repos.Role.IsSupervisorAt(ctx, "sup-1", "WC-MIX")
	require.NoError(t, err)
	assert.True(t, ok)

	var grants int64
	require.NoError(t, db.Table("mes_role_grants").Count(&grants).Error)
	assert.EqualValues(t, 2, grants)
}
