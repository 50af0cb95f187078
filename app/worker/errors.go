package worker

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPayload        = errors.New("invalid job payload")
	ErrOrderNotFound         = errors.New("order not found")
	ErrTrackingCodeCollision = errors.New("tracking code collision")
	ErrCampaignNotFound      = errors.New("lead campaign not found")
)

// DataConsistencyError reports a remote payment that exists without its
// local order update.
type DataConsistencyError struct {
	OrderID         string
	RemotePaymentID string
	Err             error
}

func (e *DataConsistencyError) Error() string {
	return fmt.Sprintf("order %s not updated with remote payment %s: %v", e.OrderID, e.RemotePaymentID, e.Err)
}

func (e *DataConsistencyError) Unwrap() error {
	return e.Err
}

func invalidPayload(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
}
