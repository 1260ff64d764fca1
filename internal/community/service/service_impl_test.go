package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/communityhq/billingcore/internal/clock"
	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
	communityrepo "github.com/communityhq/billingcore/internal/community/repository"
	"github.com/communityhq/billingcore/internal/config"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, time.April, 1, 8, 0, 0, 0, time.UTC)

const trialDays = 14

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	clk  *clock.FakeClock
	svc  communitydomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&communitydomain.Community{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(testNow)
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  communityrepo.Provide(),
		Cfg:   config.Config{Trial: config.TrialConfig{Days: trialDays}},
	})

	return &fixture{db: db, node: node, clk: clk, svc: svc}
}

func TestCreateCommunity(t *testing.T) {
	f := newFixture(t)
	adminID := f.node.Generate()

	community, err := f.svc.Create(context.Background(), communitydomain.CreateCommunityRequest{
		Name:       "The Reading Room",
		AdminEmail: "owner@example.com",
		AdminID:    adminID,
	})
	require.NoError(t, err)
	assert.Equal(t, "the-reading-room", community.Slug)
	assert.Equal(t, adminID, community.AdminID)
	assert.Equal(t, communitydomain.PaymentStatusUnpaid, community.PaymentStatus)
	assert.False(t, community.Trial.HasUsedTrial)
}

func TestCreateCommunityRejectsEmptyName(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), communitydomain.CreateCommunityRequest{
		Name:    "   ",
		AdminID: f.node.Generate(),
	})
	assert.ErrorIs(t, err, communitydomain.ErrInvalidName)
}

func TestCreateCommunityDuplicateSlug(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), communitydomain.CreateCommunityRequest{
		Name:    "Chess Club",
		AdminID: f.node.Generate(),
	})
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), communitydomain.CreateCommunityRequest{
		Name:    "Chess Club",
		AdminID: f.node.Generate(),
	})
	assert.ErrorIs(t, err, communitydomain.ErrSlugTaken)
}

func TestGetStatusNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetStatus(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, communitydomain.ErrCommunityNotFound)
}

func TestGetStatusAnonymousHidesAdminFields(t *testing.T) {
	f := newFixture(t)
	community, err := f.svc.Create(context.Background(), communitydomain.CreateCommunityRequest{
		Name:    "Chess Club",
		AdminID: f.node.Generate(),
	})
	require.NoError(t, err)

	snapshot, err := f.svc.GetStatus(context.Background(), community.Slug, 0)
	require.NoError(t, err)
	assert.False(t, snapshot.HasActiveTrialOrPayment)
	assert.True(t, snapshot.TrialEligible)
	assert.False(t, snapshot.IsAdmin)
	assert.Empty(t, snapshot.PaymentStatus)
	assert.Nil(t, snapshot.Trial)
}

func TestGetStatusAdminSeesFullState(t *testing.T) {
	f := newFixture(t)
	community, err := f.svc.Create(context.Background(), communitydomain.CreateCommunityRequest{
		Name:    "Chess Club",
		AdminID: f.node.Generate(),
	})
	require.NoError(t, err)

	snapshot, err := f.svc.GetStatus(context.Background(), community.Slug, community.AdminID)
	require.NoError(t, err)
	assert.True(t, snapshot.IsAdmin)
	assert.Equal(t, string(communitydomain.PaymentStatusUnpaid), snapshot.PaymentStatus)
	require.NotNil(t, snapshot.Trial)
}

func TestGetStatusFailsOpenOnMalformedGrant(t *testing.T) {
	f := newFixture(t)
	community, err := f.svc.Create(context.Background(), communitydomain.CreateCommunityRequest{
		Name:    "Chess Club",
		AdminID: f.node.Generate(),
	})
	require.NoError(t, err)

	// Activated trial with no end date: malformed grant data.
	require.NoError(t, f.db.Model(&communitydomain.Community{}).
		Where("id = ?", community.ID).
		Updates(map[string]any{"trial_activated": true, "trial_has_used": true}).Error)

	snapshot, err := f.svc.GetStatus(context.Background(), community.Slug, community.AdminID)
	require.NoError(t, err)
	assert.True(t, snapshot.HasActiveTrialOrPayment, "malformed data must not lock out a community")
	assert.True(t, snapshot.DataFault)
}

func TestStartTrial(t *testing.T) {
	f := newFixture(t)
	community, err := f.svc.Create(context.Background(), communitydomain.CreateCommunityRequest{
		Name:    "Chess Club",
		AdminID: f.node.Generate(),
	})
	require.NoError(t, err)

	result, err := f.svc.StartTrial(context.Background(), community.Slug, community.AdminID)
	require.NoError(t, err)
	assert.Equal(t, trialDays, result.Days)
	assert.Equal(t, testNow, result.StartDate)
	assert.Equal(t, testNow.Add(trialDays*24*time.Hour), result.EndDate)

	var got communitydomain.Community
	require.NoError(t, f.db.Where("id = ?", community.ID).First(&got).Error)
	assert.True(t, got.Trial.Activated)
	assert.True(t, got.Trial.HasUsedTrial)
	require.NotNil(t, got.Trial.EndDate)
}

func TestStartTrialRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	community, err := f.svc.Create(context.Background(), communitydomain.CreateCommunityRequest{
		Name:    "Chess Club",
		AdminID: f.node.Generate(),
	})
	require.NoError(t, err)

	_, err = f.svc.StartTrial(context.Background(), community.Slug, f.node.Generate())
	assert.ErrorIs(t, err, communitydomain.ErrNotCommunityAdmin)
}

func TestStartTrialOncePerCommunity(t *testing.T) {
	f := newFixture(t)
	community, err := f.svc.Create(context.Background(), communitydomain.CreateCommunityRequest{
		Name:    "Chess Club",
		AdminID: f.node.Generate(),
	})
	require.NoError(t, err)

	_, err = f.svc.StartTrial(context.Background(), community.Slug, community.AdminID)
	require.NoError(t, err)

	// While the trial is running the blocker is live access.
	_, err = f.svc.StartTrial(context.Background(), community.Slug, community.AdminID)
	assert.ErrorIs(t, err, communitydomain.ErrAlreadyHasAccess)

	// After it lapses the blocker is the used flag; the trial never repeats.
	f.clk.Advance((trialDays + 1) * 24 * time.Hour)
	_, err = f.svc.StartTrial(context.Background(), community.Slug, community.AdminID)
	assert.ErrorIs(t, err, communitydomain.ErrTrialAlreadyUsed)
}

func TestStartTrialBlockedWhenPaid(t *testing.T) {
	f := newFixture(t)
	community, err := f.svc.Create(context.Background(), communitydomain.CreateCommunityRequest{
		Name:    "Chess Club",
		AdminID: f.node.Generate(),
	})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&communitydomain.Community{}).
		Where("id = ?", community.ID).
		Update("payment_status", communitydomain.PaymentStatusPaid).Error)

	_, err = f.svc.StartTrial(context.Background(), community.Slug, community.AdminID)
	assert.ErrorIs(t, err, communitydomain.ErrAlreadyHasAccess)
}
