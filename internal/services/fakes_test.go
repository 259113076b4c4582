package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kalamitra/api/internal/catalog"
	domain "github.com/kalamitra/api/internal/domain"
	"github.com/kalamitra/api/internal/payments"
	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/platform/mail"
	"github.com/kalamitra/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string {
	switch {
	case e.notFound:
		return "repository: not found"
	case e.conflict:
		return "repository: conflict"
	case e.unavailable:
		return "repository: unavailable"
	}
	return "repository: error"
}

func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var errRepoNotFound = stubRepoError{notFound: true}

type memoryListingRepo struct {
	mu        sync.Mutex
	docs      map[string]catalog.Document
	order     []string
	nextID    int
	insertErr error
	findErr   error
	queries   []repositories.ListingQuery
	stock     map[string]int
	deleted   []string
}

var _ repositories.ListingRepository = (*memoryListingRepo)(nil)

func newMemoryListingRepo(docs ...catalog.Document) *memoryListingRepo {
	repo := &memoryListingRepo{docs: map[string]catalog.Document{}, stock: map[string]int{}}
	for _, doc := range docs {
		id := fmt.Sprint(doc[catalog.FieldID])
		repo.docs[id] = doc
		repo.order = append(repo.order, id)
	}
	return repo
}

func (r *memoryListingRepo) matches(doc catalog.Document, q repositories.ListingQuery) bool {
	if q.ArtistID != "" && doc[catalog.FieldArtistID] != q.ArtistID {
		return false
	}
	if q.Category != "" && doc[catalog.FieldCategory] != q.Category {
		return false
	}
	if q.Status != "" && doc[catalog.FieldStatus] != q.Status {
		return false
	}
	return true
}

func (r *memoryListingRepo) Find(_ context.Context, q repositories.ListingQuery) ([]catalog.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []catalog.Document
	for _, id := range r.order {
		if doc, ok := r.docs[id]; ok && r.matches(doc, q) {
			out = append(out, doc)
		}
	}
	if q.Skip >= len(out) {
		return []catalog.Document{}, nil
	}
	out = out[q.Skip:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memoryListingRepo) Count(_ context.Context, q repositories.ListingQuery) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, doc := range r.docs {
		if r.matches(doc, q) {
			n++
		}
	}
	return n, nil
}

func (r *memoryListingRepo) FindByID(_ context.Context, id string) (catalog.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, errRepoNotFound
	}
	return doc, nil
}

func (r *memoryListingRepo) FindByIDs(_ context.Context, ids []string) (map[string]catalog.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]catalog.Document, len(ids))
	for _, id := range ids {
		if doc, ok := r.docs[id]; ok {
			out[id] = doc
		}
	}
	return out, nil
}

func (r *memoryListingRepo) Insert(_ context.Context, doc catalog.Document) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return "", r.insertErr
	}
	r.nextID++
	id := fmt.Sprintf("lst-%d", r.nextID)
	stored := catalog.Document{}
	for k, v := range doc {
		stored[k] = v
	}
	stored[catalog.FieldID] = id
	r.docs[id] = stored
	r.order = append(r.order, id)
	return id, nil
}

func (r *memoryListingRepo) UpdateStatus(_ context.Context, id string, status domain.ListingStatus, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return errRepoNotFound
	}
	doc[catalog.FieldStatus] = string(status)
	doc[catalog.FieldUpdatedAt] = updatedAt
	return nil
}

func (r *memoryListingRepo) AppendReview(_ context.Context, id string, review map[string]any, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return errRepoNotFound
	}
	reviews, _ := doc[catalog.FieldReviews].([]any)
	doc[catalog.FieldReviews] = append(reviews, review)
	doc[catalog.FieldUpdatedAt] = updatedAt
	return nil
}

func (r *memoryListingRepo) AdjustStock(_ context.Context, id string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return errRepoNotFound
	}
	r.stock[id] += delta
	return nil
}

func (r *memoryListingRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return errRepoNotFound
	}
	delete(r.docs, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type memoryImageStore struct {
	mu      sync.Mutex
	images  map[string]domain.Image
	nextID  int
	putErr  error
	failAt  int
	deleted []string
}

var _ repositories.ImageStore = (*memoryImageStore)(nil)

func newMemoryImageStore() *memoryImageStore {
	return &memoryImageStore{images: map[string]domain.Image{}}
}

func (s *memoryImageStore) Put(_ context.Context, upload domain.ImageUpload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if s.putErr != nil && s.nextID >= s.failAt {
		return "", s.putErr
	}
	id := fmt.Sprintf("img-%d", s.nextID)
	s.images[id] = domain.Image{Data: upload.Data, ContentType: upload.ContentType}
	return id, nil
}

func (s *memoryImageStore) Get(_ context.Context, id string) (domain.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return domain.Image{}, errRepoNotFound
	}
	return img, nil
}

func (s *memoryImageStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	if _, ok := s.images[id]; !ok {
		return errRepoNotFound
	}
	delete(s.images, id)
	return nil
}

type stubGenerator struct {
	listing GeneratedListing
	err     error
	calls   []GenerateListingCommand
}

func (g *stubGenerator) Generate(_ context.Context, cmd GenerateListingCommand) (GeneratedListing, error) {
	g.calls = append(g.calls, cmd)
	return g.listing, g.err
}

type captureEvents struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (c *captureEvents) Publish(_ context.Context, event domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

type memoryOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	order     []string
	nextID    int
	insertErr error
	markCalls int
	// lostRace makes MarkPaid behave as if another delivery confirmed the order first.
	lostRace bool
}

var _ repositories.OrderRepository = (*memoryOrderRepo)(nil)

func newMemoryOrderRepo(orders ...domain.Order) *memoryOrderRepo {
	repo := &memoryOrderRepo{orders: map[string]domain.Order{}}
	for _, o := range orders {
		repo.orders[o.ID] = o
		repo.order = append(repo.order, o.ID)
	}
	return repo
}

func (r *memoryOrderRepo) Insert(_ context.Context, order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return domain.Order{}, r.insertErr
	}
	r.nextID++
	order.ID = fmt.Sprintf("ord-%d", r.nextID)
	r.orders[order.ID] = order
	r.order = append(r.order, order.ID)
	return order, nil
}

func (r *memoryOrderRepo) filter(keep func(domain.Order) bool) []domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Order{}
	for _, id := range r.order {
		if o := r.orders[id]; keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func (r *memoryOrderRepo) FindByBuyerEmail(_ context.Context, email string) ([]domain.Order, error) {
	return r.filter(func(o domain.Order) bool { return strings.EqualFold(o.BuyerEmail, email) }), nil
}

func (r *memoryOrderRepo) FindByArtist(_ context.Context, artistID string) ([]domain.Order, error) {
	return r.filter(func(o domain.Order) bool { return o.ArtistID == artistID }), nil
}

func (r *memoryOrderRepo) FindByCheckoutSession(_ context.Context, sessionID string) (domain.Order, error) {
	found := r.filter(func(o domain.Order) bool { return o.CheckoutSessionID == sessionID })
	if len(found) == 0 {
		return domain.Order{}, errRepoNotFound
	}
	return found[0], nil
}

func (r *memoryOrderRepo) AttachCheckoutSession(_ context.Context, orderID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return errRepoNotFound
	}
	o.CheckoutSessionID = sessionID
	r.orders[orderID] = o
	return nil
}

func (r *memoryOrderRepo) MarkPaid(_ context.Context, orderID string, update repositories.OrderPaymentUpdate) (domain.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markCalls++
	o, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, false, errRepoNotFound
	}
	if r.lostRace {
		o.Status = domain.OrderStatusConfirmed
		o.PaymentMethod = "Card"
		r.orders[orderID] = o
	}
	if o.Status != domain.OrderStatusPending {
		return o, false, nil
	}
	o.Status = update.Status
	o.PaymentMethod = update.PaymentMethod
	o.PaymentIntentID = update.PaymentIntentID
	r.orders[orderID] = o
	return o, true, nil
}

type memoryUserRepo struct {
	mu        sync.Mutex
	profiles  map[string]domain.UserProfile
	createErr error
	deleted   []string
}

var _ repositories.UserRepository = (*memoryUserRepo)(nil)

func newMemoryUserRepo(profiles ...domain.UserProfile) *memoryUserRepo {
	repo := &memoryUserRepo{profiles: map[string]domain.UserProfile{}}
	for _, p := range profiles {
		repo.profiles[p.ID] = p
	}
	return repo
}

func (r *memoryUserRepo) FindByID(_ context.Context, id string) (domain.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return domain.UserProfile{}, errRepoNotFound
	}
	return p, nil
}

func (r *memoryUserRepo) Create(_ context.Context, profile domain.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, exists := r.profiles[profile.ID]; exists {
		return stubRepoError{conflict: true}
	}
	r.profiles[profile.ID] = profile
	return nil
}

func (r *memoryUserRepo) Update(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[profile.ID]; !ok {
		return domain.UserProfile{}, errRepoNotFound
	}
	r.profiles[profile.ID] = profile
	return profile, nil
}

func (r *memoryUserRepo) UpdateArtisan(_ context.Context, id string, mutate func(*domain.UserProfile) error) (domain.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return domain.UserProfile{}, errRepoNotFound
	}
	if err := mutate(&p); err != nil {
		return domain.UserProfile{}, err
	}
	r.profiles[id] = p
	return p, nil
}

func (r *memoryUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[id]; !ok {
		return errRepoNotFound
	}
	delete(r.profiles, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type captureMailer struct {
	messages []mail.Message
	err      error
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.messages = append(m.messages, msg)
	return m.err
}

type fakePaymentProvider struct {
	session  payments.CheckoutSession
	err      error
	requests []payments.CheckoutSessionRequest
	event    payments.WebhookEvent
	parseErr error
}

func (p *fakePaymentProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	p.requests = append(p.requests, req)
	return p.session, p.err
}

func (p *fakePaymentProvider) ParseWebhook(payload []byte, signature string) (payments.WebhookEvent, error) {
	if p.parseErr != nil {
		return payments.WebhookEvent{}, p.parseErr
	}
	if signature == "" {
		return payments.WebhookEvent{}, payments.ErrInvalidSignature
	}
	return p.event, nil
}

type fakeIdentityAdmin struct {
	uid        string
	createErr  error
	setRoleErr error
	created    []auth.NewUser
	roles      map[string]string
	updates    []auth.UserUpdate
	updateErr  error
	deleted    []string
	deleteErr  error
}

func (f *fakeIdentityAdmin) CreateUser(_ context.Context, user auth.NewUser) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, user)
	return f.uid, nil
}

func (f *fakeIdentityAdmin) SetRole(_ context.Context, uid, role string) error {
	if f.setRoleErr != nil {
		return f.setRoleErr
	}
	if f.roles == nil {
		f.roles = map[string]string{}
	}
	f.roles[uid] = role
	return nil
}

func (f *fakeIdentityAdmin) UpdateUser(_ context.Context, _ string, update auth.UserUpdate) error {
	f.updates = append(f.updates, update)
	return f.updateErr
}

func (f *fakeIdentityAdmin) DeleteUser(_ context.Context, uid string) error {
	f.deleted = append(f.deleted, uid)
	return f.deleteErr
}

type stubAuthenticator struct {
	identity *auth.Identity
	err      error
}

func (s stubAuthenticator) Authenticate(context.Context, string) (*auth.Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.identity == nil {
		return nil, errors.New("no identity")
	}
	return s.identity, nil
}

func strPtr(s string) *string { return &s }

func intPtr(v int) *int { return &v }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
