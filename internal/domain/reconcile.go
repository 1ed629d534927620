package domain

import "time"

// MergeResult summarises a guest cart merge.
type MergeResult struct {
	Merged  int // guest lines folded into an existing customer line
	Added   int // guest lines appended
	Dropped int // guest lines discarded because the customer cart was full
}

// ValidateQuantity checks the per-line bounds.
func ValidateQuantity(quantity int) error {
	if quantity < 1 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

func clampQuantity(quantity int) int {
	if quantity > MaxQuantity {
		return MaxQuantity
	}
	return quantity
}

// AddItem inserts product or increases the quantity of its existing line.
// On error the cart is left unchanged.
func (c *Cart) AddItem(product *Product, quantity int) error {
	if err := ValidateQuantity(quantity); err != nil {
		return err
	}
	if product == nil {
		return ErrProductNotFound
	}

	i := c.indexOf(product.ID)
	if i < 0 && len(c.Items) >= MaxCartItems {
		if quantity > product.Stock {
			return ErrInsufficientStock
		}
		return ErrCartFull
	}

	next := quantity
	if i >= 0 {
		next = clampQuantity(c.Items[i].Quantity + quantity)
	}
	if next > product.Stock {
		return ErrInsufficientStock
	}

	if i >= 0 {
		c.Items[i].Quantity = next
	} else {
		c.Items = append(c.Items, LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.FirstImage(),
			Price:     product.Price,
			Quantity:  next,
		})
	}
	c.touch()
	return nil
}

// UpdateItem overwrites the quantity of an existing line and refreshes its
// catalog snapshot.
func (c *Cart) UpdateItem(product *Product, quantity int) error {
	if err := ValidateQuantity(quantity); err != nil {
		return err
	}
	if product == nil {
		return ErrProductNotFound
	}
	if quantity > product.Stock {
		return ErrInsufficientStock
	}

	i := c.indexOf(product.ID)
	if i < 0 {
		return ErrItemNotInCart
	}

	c.Items[i] = LineItem{
		ProductID: product.ID,
		Name:      product.Name,
		Image:     product.FirstImage(),
		Price:     product.Price,
		Quantity:  quantity,
	}
	c.touch()
	return nil
}

// RemoveItem deletes the line for productID. Callers must delete the cart
// document instead of saving it once IsEmpty is true.
func (c *Cart) RemoveItem(productID string) error {
	i := c.indexOf(productID)
	if i < 0 {
		return ErrItemNotInCart
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.touch()
	return nil
}

// MergeFrom folds the lines of a guest cart into c. Overlapping products have
// their quantities summed up to MaxQuantity; new products are appended while
// c holds fewer than MaxCartItems lines and dropped after that.
func (c *Cart) MergeFrom(guest *Cart) MergeResult {
	var res MergeResult
	if guest == nil {
		return res
	}

	for _, line := range guest.Items {
		if i := c.indexOf(line.ProductID); i >= 0 {
			c.Items[i].Quantity = clampQuantity(c.Items[i].Quantity + line.Quantity)
			res.Merged++
			continue
		}
		if len(c.Items) >= MaxCartItems {
			res.Dropped++
			continue
		}
		c.Items = append(c.Items, line)
		res.Added++
	}

	if res.Merged+res.Added > 0 {
		c.touch()
	}
	return res
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}
