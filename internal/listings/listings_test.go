package listings

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/lock"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/logger"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/media"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type memStorage struct {
	saved   []string
	deleted []string
}

func (m *memStorage) Save(_ context.Context, name, _ string, _ []byte) (media.Object, error) {
	key := "k-" + name
	m.saved = append(m.saved, key)
	return media.Object{Key: key, URL: "http://cdn/" + key}, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, *memStorage) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage := &memStorage{}
	s := NewService(db, nil, storage, lock.NewLocalLocker(), logger.Discard())
	s.now = func() time.Time { return testNow }
	return s, mock, storage
}

var planCols = []string{"id", "name", "description", "price", "duration_days", "max_listings", "is_public", "created_at"}

func TestFilterNormalize(t *testing.T) {
	f := Filter{Page: -3, PageSize: 500, Query: "  can ho  "}
	f.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, MaxPageSize, f.PageSize)
	assert.Equal(t, "can ho", f.Query)

	f = Filter{}
	f.Normalize()
	assert.Equal(t, DefaultPageSize, f.PageSize)
	assert.Equal(t, uint(defaultNearPrecision), f.Precision)
}

func TestBuildWhereWithEveryFilter(t *testing.T) {
	minPrice := decimal.NewFromInt(1_000_000_000)
	maxPrice := decimal.NewFromInt(5_000_000_000)
	f := Filter{
		Query:       "view",
		City:        "Ho Chi Minh",
		MinPrice:    &minPrice,
		MaxPrice:    &maxPrice,
		MinBedrooms: 2,
		Near:        &Point{Lat: 10.7769, Lng: 106.7009},
	}
	f.Normalize()

	where, args := buildWhere(f)

	assert.Contains(t, where, "p.status = ?")
	assert.Contains(t, where, "(p.title LIKE ? OR p.description LIKE ?)")
	assert.Contains(t, where, "p.city = ?")
	assert.Contains(t, where, "p.price >= ?")
	assert.Contains(t, where, "p.price <= ?")
	assert.Contains(t, where, "p.bedrooms >= ?")
	assert.Contains(t, where, "LEFT(p.geohash, ?) IN (")
	assert.Equal(t, strings.Count(where, "?"), len(args))
	assert.Equal(t, models.PropertyStatusPublished, args[0])
	assert.Equal(t, "%view%", args[1])
}

func TestNearCellsIncludesNeighbours(t *testing.T) {
	cells := NearCells(Point{Lat: 21.0285, Lng: 105.8542}, 5)
	require.Len(t, cells, 9)
	for _, c := range cells {
		assert.Len(t, c, 5)
	}
}

func TestSearchWithNoMatchesSkipsPageQuery(t *testing.T) {
	s, mock, _ := newMockService(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM properties p WHERE p.status = \\?").
		WithArgs(models.PropertyStatusPublished).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	page, err := s.Search(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.TotalPages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeSlug(t *testing.T) {
	got := MakeSlug("Căn hộ Vinhomes Central Park 3PN")
	assert.Regexp(t, regexp.MustCompile(`^can-ho-vinhomes-central-park-3pn-[0-9a-f]{8}$`), got)
	assert.NotEqual(t, got, MakeSlug("Căn hộ Vinhomes Central Park 3PN"))
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}$`), MakeSlug("!!!"))
}

func validInput() CreateInput {
	lat, lng := 10.7769, 106.7009
	return CreateInput{
		Title:      "Nhà phố Quận 1",
		Price:      decimal.NewFromInt(12_000_000_000),
		Bedrooms:   3,
		Address:    "12 Nguyen Hue",
		City:       "Ho Chi Minh",
		Latitude:   &lat,
		Longitude:  &lng,
		Features:   []FeatureInput{{Name: "Direction", Value: "South"}},
		AmenityIDs: []int64{4},
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	s, _, _ := newMockService(t)

	in := validInput()
	in.Price = decimal.Zero
	_, err := s.Create(context.Background(), 1, in)
	assert.ErrorIs(t, err, ErrInvalidListing)

	in = validInput()
	in.Longitude = nil
	_, err = s.Create(context.Background(), 1, in)
	assert.ErrorIs(t, err, ErrInvalidListing)
}

func TestCreateRequiresAgent(t *testing.T) {
	s, mock, _ := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users WHERE id = \\? FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT id FROM agents WHERE user_id = \\?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), 1, validInput())
	assert.ErrorIs(t, err, ErrNotAgent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEnforcesListingLimit(t *testing.T) {
	s, mock, _ := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users WHERE id = \\? FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT id FROM agents").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery("FROM user_service_packages usp").
		WithArgs(int64(1), testNow).
		WillReturnRows(sqlmock.NewRows(planCols).AddRow(1, "Basic", "", "99000", 30, 2, true, testNow))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM properties WHERE agent_id = \\?").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), 1, validInput())
	assert.ErrorIs(t, err, ErrListingLimit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithUnlimitedPlan(t *testing.T) {
	s, mock, _ := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users WHERE id = \\? FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT id FROM agents").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery("FROM user_service_packages usp").
		WithArgs(int64(1), testNow).
		WillReturnRows(sqlmock.NewRows(planCols).AddRow(2, "Vip", "", "499000", 30, nil, true, testNow))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM properties").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(250))
	mock.ExpectExec("INSERT INTO properties").
		WillReturnResult(sqlmock.NewResult(77, 1))
	mock.ExpectExec("INSERT INTO property_features").
		WithArgs(int64(77), "Direction", "South").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO property_amenities").
		WithArgs(int64(77), int64(4)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p, err := s.Create(context.Background(), 1, validInput())
	require.NoError(t, err)

	assert.Equal(t, int64(77), p.ID)
	assert.Equal(t, int64(10), p.AgentID)
	assert.True(t, strings.HasPrefix(p.Slug, "nha-pho-quan-1-"))
	require.NotNil(t, p.Geohash)
	assert.True(t, strings.HasPrefix(*p.Geohash, NearCells(Point{Lat: 10.7769, Lng: 106.7009}, 5)[0]))
	assert.Equal(t, models.PropertyStatusPublished, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFailsWhenFeatureIDIsUnavailable(t *testing.T) {
	s, mock, _ := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users WHERE id = \\? FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT id FROM agents").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery("FROM user_service_packages usp").
		WithArgs(int64(1), testNow).
		WillReturnRows(sqlmock.NewRows(planCols).AddRow(2, "Vip", "", "499000", 30, nil, true, testNow))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM properties").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO properties").
		WillReturnResult(sqlmock.NewResult(77, 1))
	mock.ExpectExec("INSERT INTO property_features").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("no insert id")))
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), 1, validInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get new feature ID")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPropertyIDsForAgentLocksRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM properties WHERE agent_id = \\? ORDER BY id FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(8))

	ids, err := PropertyIDsForAgent(context.Background(), db, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 8}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOtherAgentsProperty(t *testing.T) {
	s, mock, storage := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT agent_id FROM properties WHERE id = \\? FOR UPDATE").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"agent_id"}).AddRow(99))
	mock.ExpectQuery("SELECT id FROM agents").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectRollback()

	assert.ErrorIs(t, s.Delete(context.Background(), 1, 5), ErrForbidden)
	assert.Empty(t, storage.deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRemovesRowsThenFiles(t *testing.T) {
	s, mock, storage := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT agent_id FROM properties").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"agent_id"}).AddRow(10))
	mock.ExpectQuery("SELECT id FROM agents").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery("SELECT storage_key FROM property_photos").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("a.jpg").AddRow("b.jpg"))
	for range dependentTables {
		mock.ExpectExec("DELETE FROM").WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("DELETE FROM properties WHERE id = \\?").WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), 1, 5))
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, storage.deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingProperty(t *testing.T) {
	s, mock, _ := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT agent_id FROM properties").
		WithArgs(int64(5)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	assert.ErrorIs(t, s.Delete(context.Background(), 1, 5), ErrNotFound)
}

func TestToggleFavorite(t *testing.T) {
	s, mock, _ := newMockService(t)

	mock.ExpectQuery("SELECT id FROM properties WHERE id = \\?").WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec("DELETE FROM favorites").WithArgs(int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO favorites").WithArgs(int64(1), int64(5), testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	on, err := s.ToggleFavorite(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.True(t, on)

	mock.ExpectQuery("SELECT id FROM properties WHERE id = \\?").WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec("DELETE FROM favorites").WithArgs(int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	on, err = s.ToggleFavorite(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.False(t, on)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddReviewRules(t *testing.T) {
	s, mock, _ := newMockService(t)

	assert.ErrorIs(t, s.AddReview(context.Background(), &models.Review{PropertyID: 5, UserID: 1, Rating: 0}), ErrInvalidRating)
	assert.ErrorIs(t, s.AddReview(context.Background(), &models.Review{PropertyID: 5, UserID: 1, Rating: 6}), ErrInvalidRating)

	mock.ExpectQuery("SELECT id FROM properties").WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM reviews").WithArgs(int64(5), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := s.AddReview(context.Background(), &models.Review{PropertyID: 5, UserID: 1, Rating: 4})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddInquiryAllowsAnonymous(t *testing.T) {
	s, mock, _ := newMockService(t)

	mock.ExpectQuery("SELECT id FROM properties").WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec("INSERT INTO inquiries").
		WithArgs(int64(5), nil, "Lan", "lan@example.com", "", "Is it still available?", testNow).
		WillReturnResult(sqlmock.NewResult(3, 1))

	in := &models.Inquiry{PropertyID: 5, Name: " Lan ", Email: "lan@example.com", Message: "Is it still available?"}
	require.NoError(t, s.AddInquiry(context.Background(), in))
	assert.Equal(t, int64(3), in.ID)

	err := s.AddInquiry(context.Background(), &models.Inquiry{PropertyID: 5, Name: "Lan", Email: "nope", Message: "hi"})
	assert.ErrorIs(t, err, ErrInvalidInquiry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddPhotoRejectsBadType(t *testing.T) {
	s, _, storage := newMockService(t)

	_, err := s.AddPhoto(context.Background(), 1, 5, "doc.pdf", "application/pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, media.ErrUnsupportedType)
	assert.Empty(t, storage.saved)
}

func TestAddPhotoCleansUpWhenNotOwner(t *testing.T) {
	s, mock, storage := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT agent_id FROM properties").WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"agent_id"}).AddRow(99))
	mock.ExpectQuery("SELECT id FROM agents").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.AddPhoto(context.Background(), 1, 5, "front.jpg", "image/jpeg", []byte{0xff, 0xd8})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, storage.saved, storage.deleted)
}
