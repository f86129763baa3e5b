package integration_test

const (
	TestUserId      = 1
	OtherUserId     = 2
	TestScreeningId = 1
	TestPromoCode   = "SAVE20"
	TestReturnUrl   = "http://localhost:3000/payments/vnpay/return"
)
