package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentModel "funnel_backend/internals/features/funnel/payments/model"
	"funnel_backend/internals/features/funnel/sessions/model"
	stepModel "funnel_backend/internals/features/funnel/steps/model"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := model.NewState(time.Now())
	s.Data.LegalName = "Maria Silva"
	s.Secret = &paymentModel.Secret{Kind: paymentModel.KindSetupIntent, Value: "seti_1_secret_x"}
	require.NoError(t, store.Create(ctx, s))
	require.Error(t, store.Create(ctx, s))

	s.Step = stepModel.StepPayment
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepPayment, got.Step)
	assert.Equal(t, "Maria Silva", got.Data.LegalName)
	require.NotNil(t, got.Secret)
	assert.Equal(t, paymentModel.KindSetupIntent, got.Secret.Kind)
	assert.Equal(t, model.StateVersion, got.Version)
}

func TestMemoryStore_NotFound(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RejectsUnknownVersion(t *testing.T) {
	store := NewMemoryStore()
	id := uuid.New()
	store.Put(id, []byte(`{"version":7,"id":"`+id.String()+`","step":"sms"}`))

	_, err := store.Get(context.Background(), id)
	require.ErrorIs(t, err, model.ErrUnknownVersion)

	store.Put(id, []byte(`not json`))
	_, err = store.Get(context.Background(), id)
	require.ErrorIs(t, err, model.ErrCorruptState)
}

func TestTokens_IssueParse(t *testing.T) {
	tokens := NewTokens("s3cret", time.Hour)
	s := model.NewState(time.Now())
	s.Flags = model.Flags{Verified: true, Role: model.RoleDonor, ActiveSubscription: true, FirstAccess: true}

	raw, exp, err := tokens.Issue(s)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	id, claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, s.ID, id)
	assert.True(t, claims.Verified)
	assert.Equal(t, model.RoleDonor, claims.Role)
	assert.True(t, claims.ActiveSubscription)
	assert.True(t, claims.FirstAccess)
}

func TestTokens_Rejects(t *testing.T) {
	s := model.NewState(time.Now())

	raw, _, err := NewTokens("one", time.Hour).Issue(s)
	require.NoError(t, err)
	_, _, err = NewTokens("two", time.Hour).Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokens("one", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	raw, _, err = expired.Issue(s)
	require.NoError(t, err)
	_, _, err = NewTokens("one", time.Hour).Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = NewTokens("one", time.Hour).Parse("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}
