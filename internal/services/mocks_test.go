package services

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"transcomarapa/internal/domain"
	"transcomarapa/internal/models"
	"transcomarapa/internal/utils"
	"transcomarapa/pkg/logger"
	"transcomarapa/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestLogger() *logger.Logger {
	log, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stdout"})
	if err != nil {
		panic(err)
	}
	log.SetOutput(io.Discard)
	return log
}

// fakeTx runs the function directly; the fakes below are already atomic
// enough for single-goroutine tests.
type fakeTx struct{}

func (fakeTx) RunTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

type fakeCache struct {
	mu    sync.Mutex
	items map[string]cacheItem
	now   func() time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string]cacheItem), now: time.Now}
}

func (c *fakeCache) alive(item cacheItem) bool {
	return item.expiresAt.IsZero() || item.expiresAt.After(c.now())
}

func (c *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok || !c.alive(item) {
		return domain.ErrNotFound
	}
	return json.Unmarshal(item.value, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem{value: data, expiresAt: c.expiry(expiration)}
	return nil
}

func (c *fakeCache) expiry(expiration time.Duration) time.Time {
	if expiration <= 0 {
		return time.Time{}
	}
	return c.now().Add(expiration)
}

func (c *fakeCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.items, key)
	}
	return nil
}

func (c *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	return ok && c.alive(item), nil
}

func (c *fakeCache) SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[key]; ok && c.alive(item) {
		return false, nil
	}
	c.items[key] = cacheItem{value: []byte(`"` + value + `"`), expiresAt: c.expiry(expiration)}
	return true, nil
}

func (c *fakeCache) ReleaseIfHeld(ctx context.Context, key, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok || !c.alive(item) || string(item.value) != `"`+token+`"` {
		return false, nil
	}
	delete(c.items, key)
	return true, nil
}

func (c *fakeCache) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok || !c.alive(item) {
		return 0, nil
	}
	if item.expiresAt.IsZero() {
		return -1, nil
	}
	return item.expiresAt.Sub(c.now()), nil
}

func (c *fakeCache) Ping(ctx context.Context) error { return nil }

type fakeTripRepo struct {
	trips map[primitive.ObjectID]*models.Trip
}

func newFakeTripRepo(trips ...*models.Trip) *fakeTripRepo {
	repo := &fakeTripRepo{trips: make(map[primitive.ObjectID]*models.Trip)}
	for _, t := range trips {
		repo.trips[t.ID] = t
	}
	return repo
}

func (r *fakeTripRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error) {
	trip, ok := r.trips[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return trip, nil
}

func (r *fakeTripRepo) ListSellable(ctx context.Context, from time.Time, params *utils.PaginationParams) ([]*models.Trip, int64, error) {
	var out []*models.Trip
	for _, t := range r.trips {
		if t.Sellable(from) {
			out = append(out, t)
		}
	}
	return out, int64(len(out)), nil
}

type fakeUserRepo struct {
	users map[primitive.ObjectID]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[primitive.ObjectID]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByDocumentID(ctx context.Context, documentID string) (*models.User, error) {
	for _, u := range r.users {
		if u.DocumentID == documentID {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeSaleRepo struct {
	mu    sync.Mutex
	sales map[primitive.ObjectID]*models.Sale
}

func newFakeSaleRepo() *fakeSaleRepo {
	return &fakeSaleRepo{sales: make(map[primitive.ObjectID]*models.Sale)}
}

func (r *fakeSaleRepo) Create(ctx context.Context, sale *models.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sale.ID.IsZero() {
		sale.ID = primitive.NewObjectID()
	}
	sale.CreatedAt = time.Now()
	sale.UpdatedAt = sale.CreatedAt
	copied := *sale
	r.sales[sale.ID] = &copied
	return nil
}

func (r *fakeSaleRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *sale
	return &copied, nil
}

func (r *fakeSaleRepo) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.SaleStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[id]
	if !ok {
		return domain.ErrNotFound
	}
	sale.Status = status
	sale.UpdatedAt = time.Now()
	return nil
}

func (r *fakeSaleRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sales[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.sales, id)
	return nil
}

func (r *fakeSaleRepo) ListByCustomer(ctx context.Context, customerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Sale, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Sale
	for _, s := range r.sales {
		if s.CustomerID == customerID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[primitive.ObjectID]*models.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[primitive.ObjectID]*models.Ticket)}
}

// CreateMany enforces the same (trip, seat) uniqueness the storage index
// does, and like it, names only the seats that actually collided.
func (r *fakeTicketRepo) CreateMany(ctx context.Context, tickets []*models.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var conflicts []int
	for _, t := range tickets {
		for _, existing := range r.tickets {
			if existing.TripID == t.TripID && existing.Seat == t.Seat {
				conflicts = append(conflicts, t.Seat)
				break
			}
		}
	}
	if len(conflicts) > 0 {
		return &domain.SeatUnavailableError{Seats: conflicts}
	}
	for _, t := range tickets {
		if t.ID.IsZero() {
			t.ID = primitive.NewObjectID()
		}
		t.CreatedAt = time.Now()
		copied := *t
		r.tickets[t.ID] = &copied
	}
	return nil
}

func (r *fakeTicketRepo) GetBySaleID(ctx context.Context, saleID primitive.ObjectID) ([]*models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Ticket
	for _, t := range r.tickets {
		if t.SaleID == saleID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) SoldSeats(ctx context.Context, tripID primitive.ObjectID) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var seats []int
	for _, t := range r.tickets {
		if t.TripID == tripID {
			seats = append(seats, t.Seat)
		}
	}
	return seats, nil
}

func (r *fakeTicketRepo) CountByTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error) {
	seats, _ := r.SoldSeats(ctx, tripID)
	return int64(len(seats)), nil
}

func (r *fakeTicketRepo) DeleteBySaleID(ctx context.Context, saleID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tickets {
		if t.SaleID == saleID {
			delete(r.tickets, id)
		}
	}
	return nil
}

type fakeParcelRepo struct {
	mu      sync.Mutex
	parcels map[primitive.ObjectID]*models.Parcel
}

func newFakeParcelRepo() *fakeParcelRepo {
	return &fakeParcelRepo{parcels: make(map[primitive.ObjectID]*models.Parcel)}
}

func (r *fakeParcelRepo) Create(ctx context.Context, parcel *models.Parcel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	parcel.CreatedAt = time.Now()
	parcel.UpdatedAt = parcel.CreatedAt
	copied := *parcel
	r.parcels[parcel.SaleID] = &copied
	return nil
}

func (r *fakeParcelRepo) GetBySaleID(ctx context.Context, saleID primitive.ObjectID) (*models.Parcel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parcel, ok := r.parcels[saleID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *parcel
	return &copied, nil
}

func (r *fakeParcelRepo) AddCollected(ctx context.Context, saleID primitive.ObjectID, origin, destination float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	parcel, ok := r.parcels[saleID]
	if !ok {
		return domain.ErrNotFound
	}
	parcel.CollectedOrigin += origin
	parcel.CollectedDestination += destination
	parcel.UpdatedAt = time.Now()
	return nil
}

func (r *fakeParcelRepo) DeleteBySaleID(ctx context.Context, saleID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.parcels, saleID)
	return nil
}

type fakeEntryRepo struct {
	mu      sync.Mutex
	entries map[primitive.ObjectID]*models.PaymentEntry
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{entries: make(map[primitive.ObjectID]*models.PaymentEntry)}
}

func (r *fakeEntryRepo) Create(ctx context.Context, entry *models.PaymentEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	copied := *entry
	r.entries[entry.ID] = &copied
	return nil
}

func (r *fakeEntryRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (r *fakeEntryRepo) GetBySaleID(ctx context.Context, saleID primitive.ObjectID) ([]*models.PaymentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PaymentEntry
	for _, e := range r.entries {
		if e.SaleID == saleID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeEntryRepo) GetByCorrelationID(ctx context.Context, correlationID string) (*models.PaymentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if correlationID == "" {
		return nil, domain.ErrNotFound
	}
	for _, e := range r.entries {
		if e.CorrelationID == correlationID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeEntryRepo) GetByExternalRef(ctx context.Context, externalRef string) (*models.PaymentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if externalRef == "" {
		return nil, domain.ErrNotFound
	}
	for _, e := range r.entries {
		if e.ExternalRef == externalRef {
			copied := *e
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeEntryRepo) GetByIntentID(ctx context.Context, intentID string) (*models.PaymentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.PaymentIntentID == intentID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeEntryRepo) Settle(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, paidAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	if entry.Status != models.PaymentStatusPending {
		return domain.ErrAlreadySettled
	}
	entry.Status = status
	if status == models.PaymentStatusPaid {
		at := paidAt
		entry.PaidAt = &at
	}
	entry.UpdatedAt = time.Now()
	return nil
}

func (r *fakeEntryRepo) SetQRDetails(ctx context.Context, id primitive.ObjectID, qrImage, correlationID, externalRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	entry.QRImage = qrImage
	entry.CorrelationID = correlationID
	entry.ExternalRef = externalRef
	return nil
}

func (r *fakeEntryRepo) SetIntentDetails(ctx context.Context, id primitive.ObjectID, intentID, settlementCurrency string, settlementAmount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	entry.PaymentIntentID = intentID
	entry.SettlementCurrency = settlementCurrency
	entry.SettlementAmount = settlementAmount
	return nil
}

func (r *fakeEntryRepo) SumPaidBySale(ctx context.Context, saleID primitive.ObjectID) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum float64
	for _, e := range r.entries {
		if e.SaleID == saleID && e.Status == models.PaymentStatusPaid {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (r *fakeEntryRepo) FindStalePending(ctx context.Context, cutoff time.Time) ([]*models.PaymentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PaymentEntry
	for _, e := range r.entries {
		if e.Status != models.PaymentStatusPending {
			continue
		}
		if e.Method != models.PaymentMethodQR && e.Method != models.PaymentMethodCard {
			continue
		}
		if e.CreatedAt.Before(cutoff) {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeEntryRepo) DeleteBySaleID(ctx context.Context, saleID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.SaleID == saleID {
			delete(r.entries, id)
		}
	}
	return nil
}

// setCreatedAt backdates an entry for reaper tests.
func (r *fakeEntryRepo) setCreatedAt(id primitive.ObjectID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.CreatedAt = at
	}
}

type fakeQRGateway struct {
	requestFn func(ctx context.Context, req *payment.QRRequest) (*payment.QRResponse, error)
	pollFn    func(ctx context.Context, correlationID string) (payment.ProviderStatus, error)
	requests  []*payment.QRRequest
}

func (g *fakeQRGateway) RequestQR(ctx context.Context, req *payment.QRRequest) (*payment.QRResponse, error) {
	g.requests = append(g.requests, req)
	if g.requestFn != nil {
		return g.requestFn(ctx, req)
	}
	return &payment.QRResponse{QRImage: "base64-qr", ExternalRef: "pf-123"}, nil
}

func (g *fakeQRGateway) PollStatus(ctx context.Context, correlationID string) (payment.ProviderStatus, error) {
	if g.pollFn != nil {
		return g.pollFn(ctx, correlationID)
	}
	return payment.StatusPending, nil
}

type fakeCardGateway struct {
	createFn func(ctx context.Context, req *payment.IntentRequest) (*payment.IntentResponse, error)
	statusFn func(ctx context.Context, intentID string) (payment.ProviderStatus, error)
	verifyFn func(body []byte, signature string) (*payment.WebhookEvent, error)
}

func (g *fakeCardGateway) CreateIntent(ctx context.Context, req *payment.IntentRequest) (*payment.IntentResponse, error) {
	if g.createFn != nil {
		return g.createFn(ctx, req)
	}
	return &payment.IntentResponse{
		IntentID:           "pi_test",
		ClientSecret:       "pi_test_secret",
		SettlementCurrency: "USD",
		SettlementAmount:   req.Amount * 0.145,
	}, nil
}

func (g *fakeCardGateway) GetIntentStatus(ctx context.Context, intentID string) (payment.ProviderStatus, error) {
	if g.statusFn != nil {
		return g.statusFn(ctx, intentID)
	}
	return payment.StatusPending, nil
}

func (g *fakeCardGateway) VerifyWebhook(body []byte, signature string) (*payment.WebhookEvent, error) {
	if g.verifyFn != nil {
		return g.verifyFn(body, signature)
	}
	return nil, domain.ErrInvalidSignature
}
