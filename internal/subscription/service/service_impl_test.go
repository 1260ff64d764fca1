package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/communityhq/billingcore/internal/clock"
	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
	communityrepo "github.com/communityhq/billingcore/internal/community/repository"
	"github.com/communityhq/billingcore/internal/config"
	gatewaydomain "github.com/communityhq/billingcore/internal/gateway/domain"
	subscriptiondomain "github.com/communityhq/billingcore/internal/subscription/domain"
	subscriptionrepo "github.com/communityhq/billingcore/internal/subscription/repository"
	transactiondomain "github.com/communityhq/billingcore/internal/transaction/domain"
	transactionrepo "github.com/communityhq/billingcore/internal/transaction/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)

type fakeGateway struct {
	signatureOK bool
	cancelErr   error

	cancelCalls []string
	cancelAtEnd []bool
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, req gatewaydomain.CreateSubscriptionRequest) (*gatewaydomain.Subscription, error) {
	return nil, gatewaydomain.ErrGatewayUnavailable
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, subscriptionID string, atCycleEnd bool) error {
	g.cancelCalls = append(g.cancelCalls, subscriptionID)
	g.cancelAtEnd = append(g.cancelAtEnd, atCycleEnd)
	return g.cancelErr
}

func (g *fakeGateway) VerifySignature(subscriptionID, paymentID, signature string) bool {
	return g.signatureOK
}

func (g *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (*gatewaydomain.Payment, error) {
	return nil, gatewaydomain.ErrNotFound
}

type fakeStatusCache struct {
	invalidated []string
}

func (c *fakeStatusCache) Get(ctx context.Context, slug string) (communitydomain.StatusSnapshot, bool) {
	return communitydomain.StatusSnapshot{}, false
}

func (c *fakeStatusCache) Set(ctx context.Context, slug string, snapshot communitydomain.StatusSnapshot) {
}

func (c *fakeStatusCache) Invalidate(ctx context.Context, slug string) {
	c.invalidated = append(c.invalidated, slug)
}

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clk     *clock.FakeClock
	gateway *fakeGateway
	cache   *fakeStatusCache
	svc     subscriptiondomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&communitydomain.Community{},
		&subscriptiondomain.Record{},
		&subscriptiondomain.Event{},
		&transactiondomain.Transaction{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	gateway := &fakeGateway{signatureOK: true}
	statusCache := &fakeStatusCache{}
	clk := clock.NewFakeClock(testNow)
	svc := NewService(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clk,
		Repo:          subscriptionrepo.Provide(),
		CommunityRepo: communityrepo.Provide(),
		TxnRepo:       transactionrepo.Provide(),
		Gateway:       gateway,
		StatusCache:   statusCache,
		Cfg:           config.Config{},
	})

	return &fixture{
		db:      db,
		node:    node,
		clk:     clk,
		gateway: gateway,
		cache:   statusCache,
		svc:     svc,
	}
}

func (f *fixture) community(t *testing.T, mutate func(*communitydomain.Community)) *communitydomain.Community {
	t.Helper()
	c := &communitydomain.Community{
		ID:            f.node.Generate(),
		Slug:          "book-club",
		Name:          "Book Club",
		AdminID:       f.node.Generate(),
		PaymentStatus: communitydomain.PaymentStatusUnpaid,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, f.db.Create(c).Error)
	return c
}

func (f *fixture) record(t *testing.T, c *communitydomain.Community, mutate func(*subscriptiondomain.Record)) *subscriptiondomain.Record {
	t.Helper()
	start := testNow.Add(-time.Hour)
	end := testNow.Add(30 * 24 * time.Hour)
	r := &subscriptiondomain.Record{
		ID:                    f.node.Generate(),
		GatewaySubscriptionID: "sub_100",
		AdminID:               c.AdminID,
		CommunityID:           c.ID,
		Status:                subscriptiondomain.StatusAuthenticated,
		CurrentStart:          &start,
		CurrentEnd:            &end,
		AuthAttempts:          3,
		RetryAttempts:         2,
		ConsecutiveFailures:   1,
		CreatedAt:             testNow,
		UpdatedAt:             testNow,
	}
	if mutate != nil {
		mutate(r)
	}
	require.NoError(t, f.db.Create(r).Error)
	return r
}

func TestVerifyAndActivateRejectsMissingFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyAndActivate(context.Background(), subscriptiondomain.VerifyAndActivateRequest{
		GatewaySubscriptionID: "sub_100",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidRequest)
}

func TestVerifyAndActivateForeignSubscriptionID(t *testing.T) {
	f := newFixture(t)
	c := f.community(t, nil)
	f.record(t, c, nil)

	// A different admin presenting a valid subscription id gets not-found,
	// never a signature hint.
	_, err := f.svc.VerifyAndActivate(context.Background(), subscriptiondomain.VerifyAndActivateRequest{
		GatewaySubscriptionID: "sub_100",
		GatewayPaymentID:      "pay_1",
		Signature:             "sig",
		AdminID:               f.node.Generate(),
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrRecordNotFound)

	var count int64
	f.db.Model(&subscriptiondomain.Event{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestVerifyAndActivateBadSignature(t *testing.T) {
	f := newFixture(t)
	f.gateway.signatureOK = false
	c := f.community(t, nil)
	r := f.record(t, c, nil)

	_, err := f.svc.VerifyAndActivate(context.Background(), subscriptiondomain.VerifyAndActivateRequest{
		GatewaySubscriptionID: "sub_100",
		GatewayPaymentID:      "pay_1",
		Signature:             "forged",
		AdminID:               c.AdminID,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidSignature)

	var got subscriptiondomain.Record
	require.NoError(t, f.db.Where("id = ?", r.ID).First(&got).Error)
	assert.Equal(t, subscriptiondomain.StatusAuthenticated, got.Status)
	assert.Equal(t, 0, got.PaidCount)
}

func TestVerifyAndActivateSuccess(t *testing.T) {
	f := newFixture(t)
	trialEnd := testNow.Add(5 * 24 * time.Hour)
	c := f.community(t, func(c *communitydomain.Community) {
		c.Trial = communitydomain.TrialInfo{
			Activated:    true,
			HasUsedTrial: true,
			EndDate:      &trialEnd,
		}
	})
	r := f.record(t, c, nil)

	result, err := f.svc.VerifyAndActivate(context.Background(), subscriptiondomain.VerifyAndActivateRequest{
		GatewaySubscriptionID: "sub_100",
		GatewayPaymentID:      "pay_1",
		Signature:             "sig",
		AdminID:               c.AdminID,
		Amount:                49900,
	})
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, result.Status)
	assert.True(t, result.TrialConverted)

	var got subscriptiondomain.Record
	require.NoError(t, f.db.Where("id = ?", r.ID).First(&got).Error)
	assert.Equal(t, subscriptiondomain.StatusActive, got.Status)
	assert.Equal(t, 1, got.PaidCount)
	assert.Equal(t, 0, got.AuthAttempts)
	assert.Equal(t, 0, got.RetryAttempts)
	assert.Equal(t, 0, got.ConsecutiveFailures)

	var community communitydomain.Community
	require.NoError(t, f.db.Where("id = ?", c.ID).First(&community).Error)
	assert.Equal(t, communitydomain.PaymentStatusPaid, community.PaymentStatus)
	require.NotNil(t, community.SubscriptionID)
	assert.Equal(t, "sub_100", *community.SubscriptionID)
	assert.True(t, community.Trial.Converted)
	assert.False(t, community.Trial.Activated)

	var events int64
	f.db.Model(&subscriptiondomain.Event{}).Where("record_id = ?", r.ID).Count(&events)
	assert.EqualValues(t, 1, events)

	var txn transactiondomain.Transaction
	require.NoError(t, f.db.First(&txn).Error)
	assert.Equal(t, "pay_1", txn.GatewayPaymentID)
	assert.EqualValues(t, 49900, txn.Amount)
	assert.Equal(t, "INR", txn.Currency)
	assert.Equal(t, transactiondomain.TransactionStatusCaptured, txn.Status)
}

func TestVerifyAndActivateSubstitutesGarbagePeriod(t *testing.T) {
	f := newFixture(t)
	c := f.community(t, nil)
	epoch := time.Date(1970, time.January, 1, 5, 0, 0, 0, time.UTC)
	f.record(t, c, func(r *subscriptiondomain.Record) {
		r.CurrentStart = &epoch
		r.CurrentEnd = &epoch
	})

	result, err := f.svc.VerifyAndActivate(context.Background(), subscriptiondomain.VerifyAndActivateRequest{
		GatewaySubscriptionID: "sub_100",
		GatewayPaymentID:      "pay_1",
		Signature:             "sig",
		AdminID:               c.AdminID,
	})
	require.NoError(t, err)
	assert.Equal(t, testNow, result.PeriodStart)
	assert.Equal(t, testNow.Add(30*24*time.Hour), result.PeriodEnd)
}

func TestVerifyAndActivateAcceptsCommunityIDFromBody(t *testing.T) {
	f := newFixture(t)
	c := f.community(t, nil)
	f.record(t, c, func(r *subscriptiondomain.Record) {
		r.CommunityID = 0 // pre-link record; the request names the community
	})

	body := fmt.Sprintf(
		`{"subscription_id":"sub_100","payment_id":"pay_1","signature":"sig","community_id":%q}`,
		c.ID.String(),
	)
	var req subscriptiondomain.VerifyAndActivateRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, c.ID, req.CommunityID)
	req.AdminID = c.AdminID

	result, err := f.svc.VerifyAndActivate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, c.ID.String(), result.CommunityID)

	var community communitydomain.Community
	require.NoError(t, f.db.Where("id = ?", c.ID).First(&community).Error)
	assert.Equal(t, communitydomain.PaymentStatusPaid, community.PaymentStatus)
}

func TestHistoryListsAuthoritativeRecordEvents(t *testing.T) {
	f := newFixture(t)
	c := f.community(t, nil)
	f.record(t, c, nil)

	_, err := f.svc.VerifyAndActivate(context.Background(), subscriptiondomain.VerifyAndActivateRequest{
		GatewaySubscriptionID: "sub_100",
		GatewayPaymentID:      "pay_1",
		Signature:             "sig",
		AdminID:               c.AdminID,
	})
	require.NoError(t, err)

	_, err = f.svc.History(context.Background(), c.Slug, f.node.Generate())
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotCommunityAdmin)

	events, err := f.svc.History(context.Background(), c.Slug, c.AdminID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "payment.verified", events[0].Name)
	assert.True(t, events[0].Processed)
}

func TestHistoryWithoutActiveRecord(t *testing.T) {
	f := newFixture(t)
	c := f.community(t, nil)

	_, err := f.svc.History(context.Background(), c.Slug, c.AdminID)
	assert.ErrorIs(t, err, subscriptiondomain.ErrNoActiveRecord)
}

func TestBillingWritesInvalidateStatusSnapshot(t *testing.T) {
	f := newFixture(t)
	c := f.community(t, nil)
	f.record(t, c, nil)

	_, err := f.svc.VerifyAndActivate(context.Background(), subscriptiondomain.VerifyAndActivateRequest{
		GatewaySubscriptionID: "sub_100",
		GatewayPaymentID:      "pay_1",
		Signature:             "sig",
		AdminID:               c.AdminID,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{c.Slug}, f.cache.invalidated)

	_, err = f.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{
		CommunitySlug: c.Slug,
		CallerID:      c.AdminID,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{c.Slug, c.Slug}, f.cache.invalidated)
}

func TestCancelRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	c := f.community(t, nil)
	f.record(t, c, func(r *subscriptiondomain.Record) {
		r.Status = subscriptiondomain.StatusActive
	})

	_, err := f.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{
		CommunitySlug: c.Slug,
		CallerID:      f.node.Generate(),
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotCommunityAdmin)
	assert.Empty(t, f.gateway.cancelCalls)
}

func TestCancelNoActiveRecord(t *testing.T) {
	f := newFixture(t)
	c := f.community(t, nil)
	f.record(t, c, func(r *subscriptiondomain.Record) {
		r.Status = subscriptiondomain.StatusCancelled
	})

	_, err := f.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{
		CommunitySlug: c.Slug,
		CallerID:      c.AdminID,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNoActiveRecord)
}

func TestCancelGatewayFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.gateway.cancelErr = gatewaydomain.ErrGatewayUnavailable
	subID := "sub_100"
	c := f.community(t, func(c *communitydomain.Community) {
		c.PaymentStatus = communitydomain.PaymentStatusPaid
		c.SubscriptionID = &subID
	})
	r := f.record(t, c, func(r *subscriptiondomain.Record) {
		r.Status = subscriptiondomain.StatusActive
	})

	_, err := f.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{
		CommunitySlug: c.Slug,
		CallerID:      c.AdminID,
	})
	assert.ErrorIs(t, err, gatewaydomain.ErrGatewayUnavailable)

	var got subscriptiondomain.Record
	require.NoError(t, f.db.Where("id = ?", r.ID).First(&got).Error)
	assert.Equal(t, subscriptiondomain.StatusActive, got.Status)
	assert.Nil(t, got.CancelledAt)

	var community communitydomain.Community
	require.NoError(t, f.db.Where("id = ?", c.ID).First(&community).Error)
	assert.Equal(t, communitydomain.PaymentStatusPaid, community.PaymentStatus)
}

func TestCancelImmediate(t *testing.T) {
	f := newFixture(t)
	subID := "sub_100"
	c := f.community(t, func(c *communitydomain.Community) {
		c.PaymentStatus = communitydomain.PaymentStatusPaid
		c.SubscriptionID = &subID
	})
	r := f.record(t, c, func(r *subscriptiondomain.Record) {
		r.Status = subscriptiondomain.StatusActive
	})

	result, err := f.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{
		CommunitySlug: c.Slug,
		CallerID:      c.AdminID,
	})
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusCancelled, result.Status)
	assert.False(t, result.CancelAtCycleEnd)
	require.Equal(t, []string{"sub_100"}, f.gateway.cancelCalls)
	assert.Equal(t, []bool{false}, f.gateway.cancelAtEnd)

	var got subscriptiondomain.Record
	require.NoError(t, f.db.Where("id = ?", r.ID).First(&got).Error)
	assert.Equal(t, subscriptiondomain.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	var community communitydomain.Community
	require.NoError(t, f.db.Where("id = ?", c.ID).First(&community).Error)
	assert.Equal(t, communitydomain.PaymentStatusUnpaid, community.PaymentStatus)
	assert.Nil(t, community.SubscriptionID)
}

func TestCancelAtCycleEndKeepsAccess(t *testing.T) {
	f := newFixture(t)
	subID := "sub_100"
	c := f.community(t, func(c *communitydomain.Community) {
		c.PaymentStatus = communitydomain.PaymentStatusPaid
		c.SubscriptionID = &subID
	})
	periodEnd := testNow.Add(20 * 24 * time.Hour)
	r := f.record(t, c, func(r *subscriptiondomain.Record) {
		r.Status = subscriptiondomain.StatusActive
		r.CurrentEnd = &periodEnd
	})

	result, err := f.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{
		CommunitySlug:    c.Slug,
		CallerID:         c.AdminID,
		CancelAtCycleEnd: true,
	})
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, result.Status)
	assert.True(t, result.CancelAtCycleEnd)
	require.NotNil(t, result.AccessUntil)
	assert.True(t, periodEnd.Equal(*result.AccessUntil))

	var got subscriptiondomain.Record
	require.NoError(t, f.db.Where("id = ?", r.ID).First(&got).Error)
	assert.Equal(t, subscriptiondomain.StatusActive, got.Status)
	assert.True(t, got.CancelAtCycleEnd)

	// Paid access continues until the sweep expires the record.
	var community communitydomain.Community
	require.NoError(t, f.db.Where("id = ?", c.ID).First(&community).Error)
	assert.Equal(t, communitydomain.PaymentStatusPaid, community.PaymentStatus)
}
