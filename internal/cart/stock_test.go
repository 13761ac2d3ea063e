package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/universal-market/internal/apperr"
)

func TestCheckAdd(t *testing.T) {
	three := 3
	tests := []struct {
		name          string
		stock         int
		inCart        *int
		qty           int
		wantErr       bool
		wantInCart    bool
		wantAvailable int
	}{
		{name: "fits", stock: 5, qty: 3},
		{name: "exactly stock", stock: 5, qty: 5},
		{name: "over stock", stock: 2, qty: 3, wantErr: true, wantAvailable: 2},
		{name: "merge fits", stock: 6, inCart: &three, qty: 3},
		{name: "merge over stock", stock: 5, inCart: &three, qty: 3, wantErr: true, wantInCart: true, wantAvailable: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAdd(tt.stock, tt.inCart, tt.qty)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindInsufficientStock, e.Kind)
			assert.Equal(t, tt.wantAvailable, e.Details["available"])
			if tt.wantInCart {
				assert.Equal(t, *tt.inCart, e.Details["currentInCart"])
			} else {
				assert.NotContains(t, e.Details, "currentInCart")
			}
		})
	}
}

func TestCheckUpdate(t *testing.T) {
	require.NoError(t, CheckUpdate(4, 4))
	err := CheckUpdate(4, 5)
	require.True(t, apperr.Is(err, apperr.KindInsufficientStock))
}
