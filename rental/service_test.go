package rental

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/icrowley/fake"
	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rentease/db"
	"rentease/model"
	"rentease/payment"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	db      *gorm.DB
	gateway *payment.Fake
	owner   model.AuthUser
	tenant  model.AuthUser
	other   model.AuthUser
	admin   model.AuthUser
	house   model.House
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	d, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "rentease.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(d))

	gw := &payment.Fake{}
	svc := NewService(d, gw, "usd", 200*time.Millisecond)
	svc.Now = func() time.Time { return fixedNow }

	f := &fixture{svc: svc, db: d, gateway: gw}
	f.owner = createUser(t, d, model.RoleUser)
	f.tenant = createUser(t, d, model.RoleUser)
	f.other = createUser(t, d, model.RoleUser)
	f.admin = createUser(t, d, model.RoleUser, model.RoleAdmin)
	f.house = createHouse(t, d, f.owner.ID, true)

	return f
}

func createUser(t *testing.T, d *gorm.DB, roles ...string) model.AuthUser {
	t.Helper()

	u := model.User{
		Email:           fake.EmailAddress(),
		Username:        fake.UserName() + fake.DigitsN(6),
		Roles:           roles,
		IsEmailVerified: true,
	}
	require.NoError(t, d.Create(&u).Error)
	return u.AuthUser()
}

func createHouse(t *testing.T, d *gorm.DB, ownerID string, approved bool) model.House {
	t.Helper()

	h := model.House{
		OwnerID:     ownerID,
		Title:       fake.Title(),
		Description: fake.Sentence(),
		Location:    fake.City(),
		Price:       decimal.RequireFromString("100.00"),
		Approved:    approved,
	}
	require.NoError(t, d.Create(&h).Error)
	return h
}

func reloadHouse(t *testing.T, d *gorm.DB, id string) model.House {
	t.Helper()
	var h model.House
	require.NoError(t, d.First(&h, "id = ?", id).Error)
	return h
}

func reloadRequest(t *testing.T, d *gorm.DB, id string) model.RentRequest {
	t.Helper()
	var r model.RentRequest
	require.NoError(t, d.First(&r, "id = ?", id).Error)
	return r
}

func intPtr(i int) *int { return &i }

func TestCreateDefaults(t *testing.T) {
	f := newFixture(t)

	req, err := f.svc.Create(context.Background(), f.tenant, model.SubmitRentRequest{HouseID: f.house.ID, Message: "Hi"})
	require.NoError(t, err)

	assert.Equal(t, model.RentStatusPending, req.Status)
	assert.False(t, req.Paid)
	assert.Equal(t, model.DefaultRentDuration, req.Duration)
	assert.Equal(t, "Hi", req.Message)
	require.NotNil(t, req.Tenant)
	assert.Equal(t, f.tenant.ID, req.Tenant.ID)
}

func TestCreateRejectsNonPositiveDuration(t *testing.T) {
	f := newFixture(t)

	for _, d := range []int{0, -5} {
		_, err := f.svc.Create(context.Background(), f.tenant, model.SubmitRentRequest{HouseID: f.house.ID, Duration: intPtr(d)})
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestCreatePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: "does-not-exist"})
	assert.ErrorIs(t, err, ErrValidation)

	hidden := createHouse(t, f.db, f.owner.ID, false)
	_, err = f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: hidden.ID})
	assert.ErrorIs(t, err, ErrValidation, "unapproved houses are not visible to other users")

	_, err = f.svc.Create(ctx, f.owner, model.SubmitRentRequest{HouseID: f.house.ID})
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Contains(t, rerr.Message, "your own house")

	_, err = f.svc.Create(ctx, f.owner, model.SubmitRentRequest{HouseID: hidden.ID})
	assert.ErrorIs(t, err, ErrValidation, "owners can not rent their own unapproved house either")
}

func TestCreateOnlyOncePerTenantAndHouse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID, Duration: intPtr(7)})
	assert.ErrorIs(t, err, ErrValidation)

	var count int64
	f.db.Model(&model.RentRequest{}).Where("tenant_id = ? AND house_id = ?", f.tenant.ID, f.house.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreateBlockedWhileBooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	until := fixedNow.Add(24 * time.Hour)
	require.NoError(t, f.db.Model(&model.House{}).Where("id = ?", f.house.ID).Update("booked_until", until).Error)

	for _, actor := range []model.AuthUser{f.tenant, f.other, f.admin, f.owner} {
		_, err := f.svc.Create(ctx, actor, model.SubmitRentRequest{HouseID: f.house.ID})
		assert.ErrorIs(t, err, ErrValidation)
	}

	// An expired booking window no longer blocks.
	past := fixedNow.Add(-time.Hour)
	require.NoError(t, f.db.Model(&model.House{}).Where("id = ?", f.house.ID).Update("booked_until", past).Error)
	_, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	assert.NoError(t, err)
}

func TestCreateCheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Booked and owned at the same time: the booking check comes first.
	until := fixedNow.Add(time.Hour)
	require.NoError(t, f.db.Model(&model.House{}).Where("id = ?", f.house.ID).Update("booked_until", until).Error)

	_, err := f.svc.Create(ctx, f.owner, model.SubmitRentRequest{HouseID: f.house.ID})
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Contains(t, rerr.Message, "already booked")
}

func TestAcceptAndRejectAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.tenant, req.ID)
	assert.ErrorIs(t, err, ErrForbidden, "tenant can see but not decide")

	_, err = f.svc.Accept(ctx, f.other, req.ID)
	assert.ErrorIs(t, err, ErrNotFound, "strangers can not see the request")

	_, err = f.svc.Reject(ctx, f.other, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.svc.Accept(ctx, f.owner, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RentStatusApproved, got.Status)
	assert.False(t, got.Paid)
	assert.Nil(t, reloadHouse(t, f.db, f.house.ID).BookedUntil)
}

func TestAdminCanDecide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	require.NoError(t, err)

	got, err := f.svc.Reject(ctx, f.admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RentStatusRejected, got.Status)
}

func TestRejectIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := f.svc.Reject(ctx, f.owner, req.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RentStatusRejected, got.Status)
	}
}

func TestDecisionsAreFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, f.owner, req.ID)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.owner, req.ID)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, model.RentStatusRejected, reloadRequest(t, f.db, req.ID).Status)
}

func TestPayHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID, Duration: intPtr(30)})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, f.owner, req.ID)
	require.NoError(t, err)

	res, err := f.svc.Pay(ctx, f.tenant, req.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ClientSecret)
	assert.True(t, res.BookedUntil.Equal(fixedNow.AddDate(0, 0, 30)))

	calls := f.gateway.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(10000), calls[0].Amount)
	assert.Equal(t, "usd", calls[0].Currency)
	assert.Equal(t, "Payment for house: "+f.house.Title, calls[0].Description)

	assert.True(t, reloadRequest(t, f.db, req.ID).Paid)
	house := reloadHouse(t, f.db, f.house.ID)
	require.NotNil(t, house.BookedUntil)
	assert.True(t, house.BookedUntil.Equal(fixedNow.AddDate(0, 0, 30)), house.BookedUntil.String())

	// A second tenant can not request the booked house.
	_, err = f.svc.Create(ctx, f.other, model.SubmitRentRequest{HouseID: f.house.ID})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPayRequiresTenantAndApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, f.tenant, req.ID)
	assert.ErrorIs(t, err, ErrValidation, "pending requests can not be paid")

	_, err = f.svc.Accept(ctx, f.owner, req.ID)
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, f.owner, req.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Pay(ctx, f.admin, req.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Pay(ctx, f.other, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, f.gateway.Calls())
}

func TestPayFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, f.owner, req.ID)
	require.NoError(t, err)

	f.gateway.Err = errors.New("Your card was declined.")
	_, err = f.svc.Pay(ctx, f.tenant, req.ID)
	require.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, "Your card was declined.", err.Error())

	assert.False(t, reloadRequest(t, f.db, req.ID).Paid)
	assert.Nil(t, reloadHouse(t, f.db, f.house.ID).BookedUntil)

	// The tenant can try again once the card works.
	f.gateway.Err = nil
	_, err = f.svc.Pay(ctx, f.tenant, req.ID)
	require.NoError(t, err)
	assert.True(t, reloadRequest(t, f.db, req.ID).Paid)
}

func TestPayTimeoutIsAmbiguous(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, f.owner, req.ID)
	require.NoError(t, err)

	f.gateway.Block = true
	_, err = f.svc.Pay(ctx, f.tenant, req.ID)
	assert.ErrorIs(t, err, ErrPaymentUnknown)

	assert.False(t, reloadRequest(t, f.db, req.ID).Paid)
	assert.Nil(t, reloadHouse(t, f.db, f.house.ID).BookedUntil)
}

func TestPayOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, f.owner, req.ID)
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, f.tenant, req.ID)
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, f.tenant, req.ID)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, f.gateway.Calls(), 1)

	// A paid request can no longer be rejected.
	_, err = f.svc.Reject(ctx, f.owner, req.ID)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, model.RentStatusApproved, reloadRequest(t, f.db, req.ID).Status)
}

func TestListVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	otherHouse := createHouse(t, f.db, f.other.ID, true)

	r1, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	require.NoError(t, err)
	r2, err := f.svc.Create(ctx, f.tenant, model.SubmitRentRequest{HouseID: otherHouse.ID})
	require.NoError(t, err)

	ids := func(actor model.AuthUser) []string {
		reqs, err := f.svc.List(ctx, actor)
		require.NoError(t, err)
		out := []string{}
		for _, r := range reqs {
			out = append(out, r.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []string{r1.ID, r2.ID}, ids(f.tenant))
	assert.ElementsMatch(t, []string{r1.ID}, ids(f.owner))
	assert.ElementsMatch(t, []string{r2.ID}, ids(f.other))
	assert.ElementsMatch(t, []string{r1.ID, r2.ID}, ids(f.admin))

	_, err = f.svc.Get(ctx, f.other, r1.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func approvedRequest(t *testing.T, f *fixture, tenant model.AuthUser, days int) model.RentRequest {
	t.Helper()
	ctx := context.Background()

	req, err := f.svc.Create(ctx, tenant, model.SubmitRentRequest{HouseID: f.house.ID, Duration: intPtr(days)})
	require.NoError(t, err)
	req, err = f.svc.Accept(ctx, f.owner, req.ID)
	require.NoError(t, err)
	return req
}

func TestPayRefusedWhileHouseIsBooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := approvedRequest(t, f, f.tenant, 30)
	second := approvedRequest(t, f, f.other, 2)

	_, err := f.svc.Pay(ctx, f.tenant, first.ID)
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, f.other, second.ID)
	require.ErrorIs(t, err, ErrValidation)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "house_id", rerr.Field)
	assert.Contains(t, rerr.Message, "already booked")

	assert.Len(t, f.gateway.Calls(), 1)
	assert.False(t, reloadRequest(t, f.db, second.ID).Paid)
	house := reloadHouse(t, f.db, f.house.ID)
	require.NotNil(t, house.BookedUntil)
	assert.True(t, house.BookedUntil.Equal(fixedNow.AddDate(0, 0, 30)), house.BookedUntil.String())

	// Once the first stay is over the second tenant can pay.
	f.svc.Now = func() time.Time { return fixedNow.AddDate(0, 0, 31) }
	res, err := f.svc.Pay(ctx, f.other, second.ID)
	require.NoError(t, err)
	assert.True(t, res.BookedUntil.Equal(fixedNow.AddDate(0, 0, 33)))
}

func TestPayLogsChargeWhenBookingFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := approvedRequest(t, f, f.tenant, 7)

	err := f.db.Callback().Update().Before("gorm:update").Register("test:fail_booking", func(tx *gorm.DB) {
		if tx.Statement.Table == "houses" {
			tx.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	out := log.Output()
	log.SetOutput(&buf)
	defer log.SetOutput(out)

	_, err = f.svc.Pay(ctx, f.tenant, req.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Len(t, f.gateway.Calls(), 1)
	assert.False(t, reloadRequest(t, f.db, req.ID).Paid)
	assert.Contains(t, buf.String(), "pi_fake_1")
	assert.Contains(t, buf.String(), "reconcile manually")
}

func TestConcurrentPayChargesOnce(t *testing.T) {
	f := newFixture(t)
	req := approvedRequest(t, f, f.tenant, 5)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Pay(context.Background(), f.tenant, req.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.gateway.Calls(), 1)
	assert.True(t, reloadRequest(t, f.db, req.ID).Paid)
}

func TestConcurrentDecisionsSettleOnOneStatus(t *testing.T) {
	f := newFixture(t)

	req, err := f.svc.Create(context.Background(), f.tenant, model.SubmitRentRequest{HouseID: f.house.ID})
	require.NoError(t, err)

	const workers = 8
	targets := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				targets[i] = model.RentStatusApproved
				_, errs[i] = f.svc.Accept(context.Background(), f.owner, req.ID)
			} else {
				targets[i] = model.RentStatusRejected
				_, errs[i] = f.svc.Reject(context.Background(), f.owner, req.ID)
			}
		}(i)
	}
	wg.Wait()

	final := reloadRequest(t, f.db, req.ID).Status
	require.Contains(t, []string{model.RentStatusApproved, model.RentStatusRejected}, final)

	// Repeating the winning decision succeeds, the other one is refused.
	for i, err := range errs {
		if targets[i] == final {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrValidation)
		}
	}
}
