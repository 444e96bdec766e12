package steam

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillingTypePaid(t *testing.T) {
	paid := []BillingType{
		BillingBillOnceOnly, BillingBillMonthly, BillingBillOnceOrCDKey,
		BillingRepurchaseable, BillingRental, BillingProofOfPrepurchaseOnly, BillingGift,
	}
	for _, b := range paid {
		assert.True(t, b.Paid(), "billing type %d", b)
	}

	free := []BillingType{BillingNoCost, BillingFreeOnDemand, BillingGuestPass, BillingAutoGrant}
	for _, b := range free {
		assert.False(t, b.Paid(), "billing type %d", b)
	}
}

func TestAuthErrorPredicates(t *testing.T) {
	assert.True(t, (&AuthError{Result: ResultTryAnotherCM}).Retryable())
	assert.False(t, (&AuthError{Result: ResultAccessDenied}).Retryable())

	assert.True(t, (&AuthError{Result: ResultAccessDenied}).TokenExpired())
	assert.True(t, (&AuthError{Result: ResultInvalidPassword}).TokenExpired())
	assert.True(t, (&AuthError{Result: ResultExpired}).TokenExpired())
	assert.False(t, (&AuthError{Result: ResultTryAnotherCM}).TokenExpired())

	assert.Equal(t, "login failure: AccessDenied", (&AuthError{Result: ResultAccessDenied}).Error())
}

func TestManifestIterIsOnePass(t *testing.T) {
	it := &sliceIter{raws: []*RawManifest{
		{DepotID: 1, GID: 10},
		{DepotID: 2, GID: 20},
	}}
	ctx := context.Background()

	first, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), first.DepotID)

	second, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), second.DepotID)

	_, err = it.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	_, err = it.Next(ctx)
	assert.ErrorIs(t, err, io.EOF, "iterator stays exhausted")
}

func TestManifestIterHonorsContext(t *testing.T) {
	it := &sliceIter{raws: []*RawManifest{{DepotID: 1}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := it.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
