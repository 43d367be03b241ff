package feestax

import "errors"

// ErrNoFeeData is returned when neither the payment intent's latest charge
// nor the charge list yields a settled balance transaction.
var ErrNoFeeData = errors.New("no settled fee data for payment intent")
