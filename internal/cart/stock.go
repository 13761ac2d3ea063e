package cart

import "github.com/ariefcatur/universal-market/internal/apperr"

// CheckAdd validates adding qty units of a product with the given stock.
// inCart is the quantity already held by the caller, nil when there is no line.
func CheckAdd(stock int, inCart *int, qty int) error {
	if stock < qty {
		return apperr.InsufficientStock("Insufficient stock", stock, nil)
	}
	if inCart != nil && stock < *inCart+qty {
		return apperr.InsufficientStock("Insufficient stock for requested quantity", stock, inCart)
	}
	return nil
}

// CheckUpdate validates setting a line to exactly qty units.
func CheckUpdate(stock, qty int) error {
	if stock < qty {
		return apperr.InsufficientStock("Insufficient stock", stock, nil)
	}
	return nil
}
