// Package memory is an in-process implementation of every store, used for
// local runs with STORAGE=memory and by service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/universal-market/internal/auth"
	"github.com/ariefcatur/universal-market/internal/cart"
	"github.com/ariefcatur/universal-market/internal/catalog"
	"github.com/ariefcatur/universal-market/internal/payment"
)

// Store keeps users, products, cart lines and payment attempts behind one
// mutex, so every method is atomic with respect to the others.
type Store struct {
	mu sync.Mutex

	users    map[int64]auth.User
	admins   map[int64]string
	products map[int64]catalog.Product
	lines    map[int64]cart.Line
	attempts map[string]payment.Attempt

	failDecrement map[int64]error

	nextUser, nextProduct, nextLine int64
	now                             func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:         make(map[int64]auth.User),
		admins:        make(map[int64]string),
		products:      make(map[int64]catalog.Product),
		lines:         make(map[int64]cart.Line),
		attempts:      make(map[string]payment.Attempt),
		failDecrement: make(map[int64]error),
		now:           time.Now,
	}
}

// FailDecrement makes every stock decrement of productID during
// reconciliation fail with err. A nil err clears the injection.
func (s *Store) FailDecrement(productID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failDecrement, productID)
		return
	}
	s.failDecrement[productID] = err
}

func (s *Store) GrantAdmin(userID int64, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[userID] = role
}

func (s *Store) Attempt(txRef string) (payment.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[txRef]
	return a, ok
}

// ---- auth.UserStore ----

func (s *Store) CreateUser(_ context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return auth.User{}, auth.ErrEmailTaken
		}
	}
	s.nextUser++
	u.ID = s.nextUser
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

func (s *Store) AdminRole(_ context.Context, userID int64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.admins[userID]
	return role, ok, nil
}

// ---- catalog.Store ----

func (s *Store) sortedProducts(keep func(catalog.Product) bool) []catalog.Product {
	out := []catalog.Product{}
	for _, p := range s.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func matches(p catalog.Product, search string) bool {
	if search == "" {
		return true
	}
	q := strings.ToLower(search)
	return strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Description), q)
}

func (s *Store) ListProducts(_ context.Context, f catalog.Filter) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedProducts(func(p catalog.Product) bool {
		if !p.IsActive || !matches(p, f.Search) {
			return false
		}
		if len(f.Categories) > 0 && !contains(f.Categories, p.Category) {
			return false
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			return false
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			return false
		}
		return true
	}), nil
}

func (s *Store) ListAllProducts(_ context.Context, f catalog.AdminFilter) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedProducts(func(p catalog.Product) bool {
		return matches(p, f.Search) && (f.Category == "" || p.Category == f.Category)
	}), nil
}

func (s *Store) GetActiveProduct(_ context.Context, id int64) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok || !p.IsActive {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (s *Store) Categories(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for _, p := range s.products {
		if p.IsActive && !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, in catalog.ProductInput) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProduct++
	p := catalog.Product{ID: s.nextProduct, CreatedAt: s.now()}
	apply(&p, in)
	p.SellerID = in.SellerID
	s.products[p.ID] = p
	return p, nil
}

// PutProduct stores p with its own id, for seeding fixtures.
func (s *Store) PutProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.products[p.ID] = p
	if p.ID > s.nextProduct {
		s.nextProduct = p.ID
	}
}

func (s *Store) UpdateProduct(_ context.Context, id int64, in catalog.ProductInput) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	apply(&p, in)
	s.products[id] = p
	return p, nil
}

func (s *Store) DeactivateProduct(_ context.Context, id int64) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	p.IsActive = false
	s.products[id] = p
	return p, nil
}

func (s *Store) DecrementStock(_ context.Context, id int64, qty int) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	p.StockQuantity -= qty
	s.products[id] = p
	return p, nil
}

func apply(p *catalog.Product, in catalog.ProductInput) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.Category = in.Category
	p.ImageURL = in.ImageURL
	p.StockQuantity = in.StockQuantity
	p.IsActive = in.IsActive
}

// ---- cart.Store ----

func (s *Store) ListItems(_ context.Context, userID int64) ([]cart.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []cart.Item{}
	for _, l := range s.lines {
		if l.UserID != userID {
			continue
		}
		p, ok := s.products[l.ProductID]
		if !ok || !p.IsActive {
			continue
		}
		out = append(out, cart.Item{
			CartItemID:    l.ID,
			Quantity:      l.Quantity,
			AddedAt:       l.AddedAt,
			ProductID:     p.ID,
			Name:          p.Name,
			Description:   p.Description,
			Price:         p.Price,
			Category:      p.Category,
			ImageURL:      p.ImageURL,
			StockQuantity: p.StockQuantity,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CartItemID > out[j].CartItemID })
	return out, nil
}

func (s *Store) lineFor(userID, productID int64) (cart.Line, bool) {
	for _, l := range s.lines {
		if l.UserID == userID && l.ProductID == productID {
			return l, true
		}
	}
	return cart.Line{}, false
}

func (s *Store) AddItem(_ context.Context, userID, productID int64, qty int) (cart.AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok || !p.IsActive {
		return cart.AddResult{}, cart.ErrProductNotFound
	}

	line, exists := s.lineFor(userID, productID)
	var inCart *int
	if exists {
		q := line.Quantity
		inCart = &q
	}
	if err := cart.CheckAdd(p.StockQuantity, inCart, qty); err != nil {
		return cart.AddResult{}, err
	}

	if exists {
		line.Quantity += qty
	} else {
		s.nextLine++
		line = cart.Line{ID: s.nextLine, UserID: userID, ProductID: productID, Quantity: qty, AddedAt: s.now()}
	}
	s.lines[line.ID] = line
	return cart.AddResult{Line: line, Updated: exists, ProductName: p.Name}, nil
}

func (s *Store) UpdateItem(_ context.Context, userID, lineID int64, qty int) (cart.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.lines[lineID]
	if !ok || line.UserID != userID {
		return cart.Line{}, cart.ErrLineNotFound
	}
	p, ok := s.products[line.ProductID]
	if !ok {
		return cart.Line{}, cart.ErrLineNotFound
	}
	if err := cart.CheckUpdate(p.StockQuantity, qty); err != nil {
		return cart.Line{}, err
	}
	line.Quantity = qty
	s.lines[lineID] = line
	return line, nil
}

func (s *Store) RemoveItem(_ context.Context, userID, lineID int64) (cart.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.lines[lineID]
	if !ok || line.UserID != userID {
		return cart.Line{}, cart.ErrLineNotFound
	}
	delete(s.lines, lineID)
	return line, nil
}

func (s *Store) Clear(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(userID), nil
}

func (s *Store) clearLocked(userID int64) int {
	n := 0
	for id, l := range s.lines {
		if l.UserID == userID {
			delete(s.lines, id)
			n++
		}
	}
	return n
}

// ---- payment.Store ----

func (s *Store) CartTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	items, err := s.ListItems(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return cart.Total(items), nil
}

func (s *Store) CreateAttempt(_ context.Context, a payment.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.attempts[a.TxRef] = a
	return nil
}

func (s *Store) GetAttempt(_ context.Context, txRef string) (payment.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[txRef]
	if !ok {
		return payment.Attempt{}, payment.ErrAttemptNotFound
	}
	return a, nil
}

func (s *Store) MarkFailed(_ context.Context, txRef, gatewayRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[txRef]
	if !ok || !payment.CanTransition(a.Status, payment.StatusFailed) {
		return payment.ErrAttemptNotFound
	}
	a.Status = payment.StatusFailed
	if gatewayRef != "" {
		a.GatewayRef = gatewayRef
	}
	s.attempts[txRef] = a
	return nil
}

func (s *Store) Reconcile(_ context.Context, txRef string, userID int64, gatewayRef string) (payment.ReconcileReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report := payment.ReconcileReport{TxRef: txRef, UserID: userID, Lines: []payment.LineResult{}}

	a, ok := s.attempts[txRef]
	if !ok {
		a = payment.Attempt{TxRef: txRef, UserID: userID, Status: payment.StatusInitialized, CreatedAt: s.now()}
	}
	if !payment.CanTransition(a.Status, payment.StatusReconciled) {
		report.AlreadyReconciled = true
		return report, nil
	}
	now := s.now()
	a.Status = payment.StatusReconciled
	a.ReconciledAt = &now
	if gatewayRef != "" {
		a.GatewayRef = gatewayRef
	}
	s.attempts[txRef] = a

	ids := make([]int64, 0)
	for id, l := range s.lines {
		if l.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		l := s.lines[id]
		res := payment.LineResult{ProductID: l.ProductID, Quantity: l.Quantity}
		p, ok := s.products[l.ProductID]
		switch {
		case s.failDecrement[l.ProductID] != nil:
			res.Error = s.failDecrement[l.ProductID].Error()
		case !ok:
			res.Error = "product not found"
		default:
			p.StockQuantity -= l.Quantity
			s.products[p.ID] = p
			res.Applied = true
		}
		report.Lines = append(report.Lines, res)
	}
	report.ItemsCleared = s.clearLocked(userID)
	return report, nil
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
