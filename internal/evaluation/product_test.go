package evaluation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProductNormalizeFillsOptionalFields(t *testing.T) {
	t.Parallel()

	zero := 0.0
	p := Product{Name: "  X ", Price: 10, Brand: "B", Ingredients: "   ", Rating: &zero}.Normalize()

	require.Equal(t, "X", p.Name)
	require.Equal(t, "Not specified", p.Ingredients)
	require.Equal(t, "Not specified", p.Reviews)
	require.Nil(t, p.Rating)
	require.False(t, Specified(p.Ingredients))
}

func TestProductValidate(t *testing.T) {
	t.Parallel()

	high := 6.0
	tests := []struct {
		name    string
		product Product
		wantErr string
	}{
		{name: "ok", product: Product{Name: "X", Price: 10, Brand: "B"}},
		{name: "missing name", product: Product{Price: 10, Brand: "B"}, wantErr: "name"},
		{name: "missing brand", product: Product{Name: "X", Price: 10}, wantErr: "brand"},
		{name: "zero price", product: Product{Name: "X", Brand: "B"}, wantErr: "price"},
		{name: "rating out of range", product: Product{Name: "X", Price: 1, Brand: "B", Rating: &high}, wantErr: "rating"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.product.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
