package steam

// BillingType classifies how a package was acquired.
type BillingType uint32

const (
	BillingNoCost                 BillingType = 0
	BillingBillOnceOnly           BillingType = 1
	BillingBillMonthly            BillingType = 2
	BillingProofOfPrepurchaseOnly BillingType = 3
	BillingGuestPass              BillingType = 4
	BillingHardwarePromo          BillingType = 5
	BillingGift                   BillingType = 6
	BillingAutoGrant              BillingType = 7
	BillingOEMTicket              BillingType = 8
	BillingRecurringOption        BillingType = 9
	BillingBillOnceOrCDKey        BillingType = 10
	BillingRepurchaseable         BillingType = 11
	BillingFreeOnDemand           BillingType = 12
	BillingRental                 BillingType = 13
)

// paidBillingTypes is the allow-list of classifications treated as
// "owned outright". Free-to-play and unclassified packages are excluded
// so the default run does not pull irrelevant manifests.
var paidBillingTypes = map[BillingType]bool{
	BillingBillOnceOnly:           true,
	BillingBillMonthly:            true,
	BillingBillOnceOrCDKey:        true,
	BillingRepurchaseable:         true,
	BillingRental:                 true,
	BillingProofOfPrepurchaseOnly: true,
	BillingGift:                   true,
}

// Paid reports whether the billing type counts as owned outright.
func (b BillingType) Paid() bool {
	return paidBillingTypes[b]
}
