package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/ai"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/auth"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/listings"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/logger"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/packages"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/payments"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/users"
)

type fakeUsers struct {
	byEmail map[string]*models.User
	nextID  int64
}

func (f *fakeUsers) Create(_ context.Context, u *models.User, role string) error {
	if _, ok := f.byEmail[u.Email]; ok {
		return users.ErrEmailTaken
	}
	f.nextID++
	u.ID = f.nextID
	u.Roles = []string{role}
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return u, nil
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []int64
}

func (q *fakeQueue) Enqueue(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return true
}

type fakeExpirer struct {
	result packages.Result
	err    error
	users  []int64
	scans  int
}

func (f *fakeExpirer) ProcessExpiredPackages(context.Context) (packages.Result, error) {
	f.scans++
	return f.result, f.err
}

func (f *fakeExpirer) ProcessExpiredPackageForUser(_ context.Context, userID int64) (packages.Result, error) {
	f.users = append(f.users, userID)
	return f.result, f.err
}

type fakePayments struct {
	checkout *payments.Checkout
	err      error
	outcome  payments.Outcome
	txn      *models.PaymentTransaction
	png      []byte
	values   url.Values
}

func (f *fakePayments) Checkout(_ context.Context, userID, planID int64, ip string) (*payments.Checkout, error) {
	return f.checkout, f.err
}

func (f *fakePayments) HandleReturn(_ context.Context, v url.Values) (payments.Outcome, error) {
	f.values = v
	return f.outcome, f.err
}

func (f *fakePayments) Status(context.Context, string) (*models.PaymentTransaction, error) {
	return f.txn, f.err
}

func (f *fakePayments) QRCode(context.Context, int64, string) ([]byte, error) {
	return f.png, f.err
}

// fakeListings records the last call and returns err for every method.
type fakeListings struct {
	err      error
	filter   listings.Filter
	inquiry  *models.Inquiry
	review   *models.Review
	photo    []byte
	photoCT  string
	deleted  int64
	property *models.Property
}

func (f *fakeListings) Search(_ context.Context, fl listings.Filter) (*listings.Page, error) {
	f.filter = fl
	return &listings.Page{Items: []models.Property{}, Page: 1, PageSize: 12}, f.err
}

func (f *fakeListings) GetBySlug(context.Context, string) (*models.Property, error) {
	return f.property, f.err
}

func (f *fakeListings) Create(_ context.Context, _ int64, in listings.CreateInput) (*models.Property, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Property{ID: 1, Title: in.Title}, nil
}

func (f *fakeListings) Delete(_ context.Context, _, id int64) error {
	f.deleted = id
	return f.err
}

func (f *fakeListings) ListForAgent(context.Context, int64) ([]models.Property, error) {
	return []models.Property{}, f.err
}

func (f *fakeListings) AddPhoto(_ context.Context, _, propertyID int64, _, ct string, data []byte) (*models.PropertyPhoto, error) {
	f.photo, f.photoCT = data, ct
	if f.err != nil {
		return nil, f.err
	}
	return &models.PropertyPhoto{ID: 9, PropertyID: propertyID}, nil
}

func (f *fakeListings) ToggleFavorite(context.Context, int64, int64) (bool, error) {
	return true, f.err
}

func (f *fakeListings) ListFavorites(context.Context, int64) ([]models.Property, error) {
	return []models.Property{}, f.err
}

func (f *fakeListings) AddInquiry(_ context.Context, in *models.Inquiry) error {
	f.inquiry = in
	return f.err
}

func (f *fakeListings) AddReview(_ context.Context, r *models.Review) error {
	f.review = r
	return f.err
}

func (f *fakeListings) ListReviews(context.Context, int64) ([]models.Review, error) {
	return []models.Review{}, f.err
}

type fakeChatter struct {
	role   string
	userID *int64
}

func (f *fakeChatter) Chat(_ context.Context, userID *int64, role, msg string) (ai.Reply, error) {
	f.role, f.userID = role, userID
	return ai.Reply{Response: "re: " + msg, TokensUsed: 1}, nil
}

func newTestHandlers() *Handlers {
	return &Handlers{
		Users:       &fakeUsers{byEmail: map[string]*models.User{}},
		Tokens:      auth.NewTokens("test-secret", 0),
		Listings:    &fakeListings{},
		Payments:    &fakePayments{},
		Expiration:  &fakeExpirer{},
		LoginChecks: &fakeQueue{},
		BasicRole:   models.RoleUser,
		ResultURL:   "http://front/payment/result",
		Log:         logger.Discard(),
	}
}

// as installs a session the way the auth middleware would.
func as(s *auth.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s != nil {
			auth.SetSession(c, *s)
		}
		c.Next()
	}
}

func serve(t *testing.T, method, path string, session *auth.Session, handler gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Handle(method, path, as(session), handler)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
