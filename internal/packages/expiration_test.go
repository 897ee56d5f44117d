package packages

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/lock"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/logger"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestService(store Store, remover ObjectRemover, opts Options) *Service {
	s := NewService(store, lock.NewLocalLocker(), remover, logger.Discard(), opts)
	s.now = func() time.Time { return testNow }
	return s
}

// seedAgentWithListings creates user 1 / agent 10 with three properties,
// each with two photos and one review, and an active package.
func seedAgentWithListings(m *memStore, end time.Time) {
	m.addAgent(1, 10, models.RoleAgent, models.RoleUser)
	m.addPackage(100, 1, end, true)
	m.addProperty(1001, 10, []string{"a1.jpg", "a2.jpg"}, 1)
	m.addProperty(1002, 10, []string{"b1.jpg", "b2.jpg"}, 1)
	m.addProperty(1003, 10, []string{"c1.jpg", "c2.jpg"}, 1)
}

func TestExpiredAgentIsDemotedAndListingsRemoved(t *testing.T) {
	m := newMemStore()
	seedAgentWithListings(m, testNow.Add(-24*time.Hour))
	remover := &recordingRemover{}

	res, err := newTestService(m, remover, Options{}).ProcessExpiredPackages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.PackagesExpired)
	assert.Equal(t, 1, res.UsersDemoted)
	assert.Equal(t, 3, res.PropertiesDeleted)
	assert.Equal(t, []int64{1}, res.UserIDs)

	st := m.snapshot()
	assert.False(t, st.packages[100].IsActive)
	assert.Equal(t, []string{models.RoleUser}, st.roles[1])
	assert.Empty(t, st.properties)
	assert.Empty(t, st.photos)
	assert.Empty(t, st.reviews)
	assert.Equal(t, 1, st.notifications[1])
	assert.ElementsMatch(t, []string{"a1.jpg", "a2.jpg", "b1.jpg", "b2.jpg", "c1.jpg", "c2.jpg"}, remover.keys)
}

func TestPackageEndingExactlyNowIsExpired(t *testing.T) {
	m := newMemStore()
	m.addAgent(1, 10, models.RoleAgent)
	m.addPackage(100, 1, testNow, true)

	res, err := newTestService(m, nil, Options{}).ProcessExpiredPackages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.PackagesExpired)
}

func TestFuturePackageIsUntouched(t *testing.T) {
	m := newMemStore()
	seedAgentWithListings(m, testNow.Add(time.Minute))

	res, err := newTestService(m, nil, Options{}).ProcessExpiredPackages(context.Background())
	require.NoError(t, err)

	assert.Zero(t, res.PackagesExpired)
	assert.Empty(t, res.UserIDs)
	st := m.snapshot()
	assert.True(t, st.packages[100].IsActive)
	assert.Len(t, st.properties, 3)
	assert.ElementsMatch(t, []string{models.RoleAgent, models.RoleUser}, st.roles[1])
}

func TestInactivePackagePastEndDateIsIgnored(t *testing.T) {
	m := newMemStore()
	seedAgentWithListings(m, testNow.Add(-time.Hour))
	p := m.state.packages[100]
	p.IsActive = false
	m.state.packages[100] = p

	res, err := newTestService(m, nil, Options{}).ProcessExpiredPackages(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.PackagesExpired)
	assert.Len(t, m.snapshot().properties, 3)
}

func TestTwoExpiredPackagesForOneUserAreOneTransaction(t *testing.T) {
	m := newMemStore()
	seedAgentWithListings(m, testNow.Add(-48*time.Hour))
	m.addPackage(101, 1, testNow.Add(-time.Hour), true)

	res, err := newTestService(m, nil, Options{}).ProcessExpiredPackages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.PackagesExpired)
	assert.Equal(t, 1, res.UsersDemoted)
	assert.Equal(t, 3, res.PropertiesDeleted)
	assert.Equal(t, 1, m.commits)
	st := m.snapshot()
	assert.False(t, st.packages[100].IsActive)
	assert.False(t, st.packages[101].IsActive)
}

func TestOnlyTheExpiredOfTwoActivePackagesIsDeactivated(t *testing.T) {
	m := newMemStore()
	seedAgentWithListings(m, testNow.Add(-time.Hour))
	m.addPackage(101, 1, testNow.AddDate(0, 0, 30), true)

	res, err := newTestService(m, nil, Options{}).ProcessExpiredPackages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.PackagesExpired)
	assert.Equal(t, []int64{1}, res.UserIDs)
	st := m.snapshot()
	assert.False(t, st.packages[100].IsActive)
	assert.True(t, st.packages[101].IsActive)
	require.NotNil(t, st.packages[101].EndDate)
	assert.Equal(t, testNow.AddDate(0, 0, 30), *st.packages[101].EndDate)
}

func TestUserWithoutAgentRecordIsOnlyDemoted(t *testing.T) {
	m := newMemStore()
	m.state.roles[2] = []string{models.RoleAgent}
	m.addPackage(200, 2, testNow.Add(-time.Hour), true)
	seedAgentWithListings(m, testNow.Add(24*time.Hour))

	res, err := newTestService(m, nil, Options{}).ProcessExpiredPackages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.UsersDemoted)
	assert.Zero(t, res.PropertiesDeleted)
	st := m.snapshot()
	assert.Equal(t, []string{models.RoleUser}, st.roles[2])
	assert.Len(t, st.properties, 3, "another agent's listings are kept")
}

func TestSecondPassIsNoOp(t *testing.T) {
	m := newMemStore()
	seedAgentWithListings(m, testNow.Add(-time.Hour))
	svc := newTestService(m, nil, Options{})

	_, err := svc.ProcessExpiredPackages(context.Background())
	require.NoError(t, err)
	res, err := svc.ProcessExpiredPackages(context.Background())
	require.NoError(t, err)

	assert.Zero(t, res.PackagesExpired)
	assert.Equal(t, 1, m.snapshot().notifications[1])
}

func TestFailureRollsBackWholeUser(t *testing.T) {
	m := newMemStore()
	seedAgentWithListings(m, testNow.Add(-time.Hour))
	m.failOn = "DeletePropertyCascade"
	remover := &recordingRemover{}

	_, err := newTestService(m, remover, Options{}).ProcessExpiredPackages(context.Background())
	require.ErrorIs(t, err, errInjected)

	st := m.snapshot()
	assert.True(t, st.packages[100].IsActive)
	assert.ElementsMatch(t, []string{models.RoleAgent, models.RoleUser}, st.roles[1])
	assert.Len(t, st.properties, 3)
	assert.Len(t, st.photos, 3)
	assert.Empty(t, remover.keys, "no files are removed for a rolled back user")
}

func TestFailureStopsThePass(t *testing.T) {
	m := newMemStore()
	m.addAgent(1, 10, models.RoleAgent)
	m.addPackage(100, 1, testNow.Add(-time.Hour), true)
	m.addAgent(2, 20, models.RoleAgent)
	m.addPackage(200, 2, testNow.Add(-time.Hour), true)
	m.failOn = "Notify"

	res, err := newTestService(m, nil, Options{}).ProcessExpiredPackages(context.Background())
	require.Error(t, err)
	assert.Zero(t, res.PackagesExpired)

	st := m.snapshot()
	assert.True(t, st.packages[100].IsActive)
	assert.True(t, st.packages[200].IsActive, "later users are not attempted")
}

func TestFindExpiredFailureIsReturned(t *testing.T) {
	m := newMemStore()
	m.failOn = "FindExpired"

	_, err := newTestService(m, nil, Options{}).ProcessExpiredPackages(context.Background())
	assert.ErrorIs(t, err, errInjected)
}

func TestRemoverFailureDoesNotFailThePass(t *testing.T) {
	m := newMemStore()
	seedAgentWithListings(m, testNow.Add(-time.Hour))
	remover := &recordingRemover{err: errors.New("bucket unavailable")}

	res, err := newTestService(m, remover, Options{}).ProcessExpiredPackages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.PropertiesDeleted)
	assert.Len(t, remover.keys, 6)
}

func TestForUserOnlyTouchesThatUser(t *testing.T) {
	m := newMemStore()
	m.addAgent(1, 10, models.RoleAgent)
	m.addPackage(100, 1, testNow.Add(-time.Hour), true)
	m.addAgent(2, 20, models.RoleAgent)
	m.addPackage(200, 2, testNow.Add(-time.Hour), true)

	res, err := newTestService(m, nil, Options{}).ProcessExpiredPackageForUser(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, []int64{2}, res.UserIDs)
	st := m.snapshot()
	assert.True(t, st.packages[100].IsActive)
	assert.False(t, st.packages[200].IsActive)
}

func TestGracePeriodDelaysExpiration(t *testing.T) {
	m := newMemStore()
	seedAgentWithListings(m, testNow.Add(-time.Hour))
	svc := newTestService(m, nil, Options{GracePeriod: 24 * time.Hour})

	res, err := svc.ProcessExpiredPackages(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.PackagesExpired)

	svc.now = func() time.Time { return testNow.Add(24 * time.Hour) }
	res, err = svc.ProcessExpiredPackages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.PackagesExpired)
}

func TestCustomBasicRole(t *testing.T) {
	m := newMemStore()
	m.addAgent(1, 10, models.RoleAgent)
	m.addPackage(100, 1, testNow.Add(-time.Hour), true)

	_, err := newTestService(m, nil, Options{BasicRole: "Member"}).ProcessExpiredPackages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Member"}, m.snapshot().roles[1])
}

func TestConcurrentPassesExpireOnce(t *testing.T) {
	m := newMemStore()
	seedAgentWithListings(m, testNow.Add(-time.Hour))
	svc := newTestService(m, nil, Options{})

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			results[i], err = svc.ProcessExpiredPackages(context.Background())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += r.PackagesExpired
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, m.snapshot().notifications[1])
}
