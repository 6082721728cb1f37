package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// memState is the full contents of the in-memory store
type memState struct {
	customers map[int64]models.Customer
	addresses map[int64]models.Address
	products  map[int64]models.Product
	orders    map[int64]models.Order
	items     []models.OrderItem
	nextID    int64
}

func newMemState() *memState {
	return &memState{
		customers: make(map[int64]models.Customer),
		addresses: make(map[int64]models.Address),
		products:  make(map[int64]models.Product),
		orders:    make(map[int64]models.Order),
		nextID:    1000,
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.items = append(c.items, s.items...)
	c.nextID = s.nextID
	return c
}

func (s *memState) id() (int64, time.Time) {
	s.nextID++
	return s.nextID, baseTime.Add(time.Duration(s.nextID) * time.Second)
}

// memGateway is an in-memory store.Gateway. Transactions work on a copy that replaces
// the committed state on Commit, so rollback leaves no trace.
type memGateway struct {
	mu        sync.Mutex
	state     *memState
	failures  map[string]error
	begins    int
	commits   int
	rollbacks int

	// interleave runs once inside the next SaveAddress to stage a concurrent writer's row
	interleave func(st *memState)
}

func newMemGateway() *memGateway {
	return &memGateway{state: newMemState(), failures: make(map[string]error)}
}

func (g *memGateway) repo() *memRepo {
	return &memRepo{g: g, st: func() *memState { return g.state }}
}

// failOn makes the named repository operation return err
func (g *memGateway) failOn(op string, err error) {
	g.failures[op] = err
}

func (g *memGateway) BeginTx(ctx context.Context) (store.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures["BeginTx"]; err != nil {
		return nil, err
	}
	g.begins++
	snapshot := g.state.clone()
	return &memTx{memRepo: &memRepo{g: g, st: func() *memState { return snapshot }}, snapshot: snapshot}, nil
}

// seeding helpers write straight to the committed state

func (g *memGateway) addProduct(id int64, quantity int, price string) {
	g.state.products[id] = models.Product{
		ID:        id,
		Name:      fmt.Sprintf("Dates #%d", id),
		Price:     decimalFrom(price),
		Quantity:  quantity,
		CreatedAt: baseTime,
	}
}

func (g *memGateway) addCustomer(c models.Customer) models.Customer {
	if c.ID == 0 {
		c.ID, c.CreatedAt = g.state.id()
	}
	g.state.customers[c.ID] = c
	return c
}

func (g *memGateway) addAddress(a models.Address) models.Address {
	if a.ID == 0 {
		a.ID, a.CreatedAt = g.state.id()
	} else if a.CreatedAt.IsZero() {
		a.CreatedAt = baseTime.Add(time.Duration(a.ID) * time.Second)
	}
	g.state.addresses[a.ID] = a
	return a
}

func (g *memGateway) product(id int64) models.Product {
	return g.state.products[id]
}

func (g *memGateway) orders() []models.Order {
	var out []models.Order
	for _, o := range g.state.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *memGateway) customersByEmail(email string) []models.Customer {
	var out []models.Customer
	for _, c := range g.state.customers {
		if strings.EqualFold(c.Email, email) {
			out = append(out, c)
		}
	}
	return out
}

func (g *memGateway) activeAddresses(customerID int64, t models.AddressType) []models.Address {
	var out []models.Address
	for _, a := range g.state.addresses {
		if a.CustomerID == customerID && a.Type == t && a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memTx struct {
	*memRepo
	snapshot *memState
	done     bool
}

func (t *memTx) Commit() error {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	if err := t.g.failures["Commit"]; err != nil {
		return err
	}
	t.done = true
	t.g.state = t.snapshot
	t.g.commits++
	return nil
}

func (t *memTx) Rollback() error {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	t.g.rollbacks++
	return nil
}

// memRepo implements store.Repository over one memState
type memRepo struct {
	g  *memGateway
	st func() *memState
}

func (r *memRepo) fail(op string) error {
	return r.g.failures[op]
}

func (r *memRepo) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	if err := r.fail("GetCustomerByID"); err != nil {
		return nil, err
	}
	c, ok := r.st().customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (r *memRepo) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	if err := r.fail("GetCustomerByEmail"); err != nil {
		return nil, err
	}
	for _, c := range r.st().customers {
		if strings.EqualFold(c.Email, email) {
			c := c
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *memRepo) GetCustomerByVerificationToken(ctx context.Context, token string) (*models.Customer, error) {
	for _, c := range r.st().customers {
		if c.VerificationToken.Valid && c.VerificationToken.String == token {
			c := c
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *memRepo) GetCustomerByResetToken(ctx context.Context, token string) (*models.Customer, error) {
	for _, c := range r.st().customers {
		if c.ResetToken.Valid && c.ResetToken.String == token {
			c := c
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *memRepo) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	if err := r.fail("CreateCustomer"); err != nil {
		return err
	}
	if _, err := r.GetCustomerByEmail(ctx, customer.Email); err == nil {
		return store.ErrDuplicate
	}
	customer.ID, customer.CreatedAt = r.st().id()
	customer.UpdatedAt = customer.CreatedAt
	r.st().customers[customer.ID] = *customer
	return nil
}

func (r *memRepo) CreateGuestCustomer(ctx context.Context, email string) (*models.Customer, error) {
	if err := r.fail("CreateGuestCustomer"); err != nil {
		return nil, err
	}
	if existing, err := r.GetCustomerByEmail(ctx, email); err == nil {
		return existing, nil
	}
	c := models.Customer{Email: email, Status: models.CustomerStatusGuest, IsGuest: true}
	c.ID, c.CreatedAt = r.st().id()
	c.UpdatedAt = c.CreatedAt
	r.st().customers[c.ID] = c
	return &c, nil
}

func (r *memRepo) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	if err := r.fail("UpdateCustomer"); err != nil {
		return err
	}
	if _, ok := r.st().customers[customer.ID]; !ok {
		return store.ErrNotFound
	}
	r.st().customers[customer.ID] = *customer
	return nil
}

func (r *memRepo) GetAddressByID(ctx context.Context, id, customerID int64) (*models.Address, error) {
	a, ok := r.st().addresses[id]
	if !ok || a.CustomerID != customerID {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (r *memRepo) GetActiveAddress(ctx context.Context, customerID int64, addressType models.AddressType) (*models.Address, error) {
	var candidates []models.Address
	for _, a := range r.st().addresses {
		if a.CustomerID == customerID && a.Type == addressType && a.IsActive {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.IsPrimary != b.IsPrimary {
			return a.IsPrimary
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return &candidates[0], nil
}

func (r *memRepo) ListAddresses(ctx context.Context, customerID int64) ([]models.Address, error) {
	var out []models.Address
	for _, a := range r.st().addresses {
		if a.CustomerID == customerID && a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) ListAddressesByType(ctx context.Context, customerID int64, addressType models.AddressType) ([]models.Address, error) {
	all, _ := r.ListAddresses(ctx, customerID)
	var out []models.Address
	for _, a := range all {
		if a.Type == addressType {
			out = append(out, a)
		}
	}
	return out, nil
}

// SaveAddress enforces the one-primary-per-type index like the Postgres schema does
func (r *memRepo) SaveAddress(ctx context.Context, address *models.Address) error {
	if err := r.fail("SaveAddress"); err != nil {
		return err
	}
	st := r.st()
	if hook := r.g.interleave; hook != nil {
		r.g.interleave = nil
		hook(st)
	}

	if address.ID != 0 {
		existing, ok := st.addresses[address.ID]
		if !ok || existing.CustomerID != address.CustomerID {
			return store.ErrNotFound
		}
		address.CreatedAt = existing.CreatedAt
	}

	if address.IsPrimary && address.IsActive {
		for _, a := range st.addresses {
			if a.ID != address.ID && a.CustomerID == address.CustomerID && a.Type == address.Type &&
				a.IsPrimary && a.IsActive {
				return store.ErrDuplicate
			}
		}
	}

	if address.ID == 0 {
		address.ID, address.CreatedAt = st.id()
	}
	st.addresses[address.ID] = *address
	return nil
}

func (r *memRepo) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := r.st().products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r *memRepo) LockProductByID(ctx context.Context, id int64) (*models.Product, error) {
	if err := r.fail("LockProductByID"); err != nil {
		return nil, err
	}
	return r.GetProductByID(ctx, id)
}

func (r *memRepo) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	if err := r.fail("DecrementStock"); err != nil {
		return err
	}
	p, ok := r.st().products[productID]
	if !ok || p.Quantity < quantity {
		return store.ErrInsufficientStock
	}
	p.Quantity -= quantity
	r.st().products[productID] = p
	return nil
}

func (r *memRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.fail("CreateOrder"); err != nil {
		return err
	}
	order.ID, order.CreatedAt = r.st().id()
	r.st().orders[order.ID] = *order
	return nil
}

func (r *memRepo) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	if err := r.fail("CreateOrderItem"); err != nil {
		return err
	}
	if _, ok := r.st().orders[item.OrderID]; !ok {
		return fmt.Errorf("order %d does not exist", item.OrderID)
	}
	item.ID, item.CreatedAt = r.st().id()
	r.st().items = append(r.st().items, *item)
	return nil
}

func (r *memRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	if err := r.fail("GetOrderByID"); err != nil {
		return nil, err
	}
	o, ok := r.st().orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (r *memRepo) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var out []models.OrderItem
	for _, item := range r.st().items {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	return out, nil
}

// the gateway itself reads and writes the committed state outside any transaction

func (g *memGateway) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	return g.repo().GetCustomerByID(ctx, id)
}

func (g *memGateway) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return g.repo().GetCustomerByEmail(ctx, email)
}

func (g *memGateway) GetCustomerByVerificationToken(ctx context.Context, token string) (*models.Customer, error) {
	return g.repo().GetCustomerByVerificationToken(ctx, token)
}

func (g *memGateway) GetCustomerByResetToken(ctx context.Context, token string) (*models.Customer, error) {
	return g.repo().GetCustomerByResetToken(ctx, token)
}

func (g *memGateway) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return g.repo().CreateCustomer(ctx, customer)
}

func (g *memGateway) CreateGuestCustomer(ctx context.Context, email string) (*models.Customer, error) {
	return g.repo().CreateGuestCustomer(ctx, email)
}

func (g *memGateway) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	return g.repo().UpdateCustomer(ctx, customer)
}

func (g *memGateway) GetAddressByID(ctx context.Context, id, customerID int64) (*models.Address, error) {
	return g.repo().GetAddressByID(ctx, id, customerID)
}

func (g *memGateway) GetActiveAddress(ctx context.Context, customerID int64, addressType models.AddressType) (*models.Address, error) {
	return g.repo().GetActiveAddress(ctx, customerID, addressType)
}

func (g *memGateway) ListAddresses(ctx context.Context, customerID int64) ([]models.Address, error) {
	return g.repo().ListAddresses(ctx, customerID)
}

func (g *memGateway) ListAddressesByType(ctx context.Context, customerID int64, addressType models.AddressType) ([]models.Address, error) {
	return g.repo().ListAddressesByType(ctx, customerID, addressType)
}

func (g *memGateway) SaveAddress(ctx context.Context, address *models.Address) error {
	return g.repo().SaveAddress(ctx, address)
}

func (g *memGateway) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return g.repo().GetProductByID(ctx, id)
}

func (g *memGateway) LockProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return g.repo().LockProductByID(ctx, id)
}

func (g *memGateway) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	return g.repo().DecrementStock(ctx, productID, quantity)
}

func (g *memGateway) CreateOrder(ctx context.Context, order *models.Order) error {
	return g.repo().CreateOrder(ctx, order)
}

func (g *memGateway) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	return g.repo().CreateOrderItem(ctx, item)
}

func (g *memGateway) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return g.repo().GetOrderByID(ctx, id)
}

func (g *memGateway) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return g.repo().GetOrderItemsByOrderID(ctx, orderID)
}
