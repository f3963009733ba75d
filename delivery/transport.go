// ABOUTME: This file declares the outbound transport port for delivery attempts
// ABOUTME: Implementations translate failures into the delivery error taxonomy
package delivery

import (
	"context"

	"news-courier/models"
)

// Transport sends one payload to one destination. A failed send returns a
// classified *Error so callers can route between retry and dead-letter.
type Transport interface {
	Send(ctx context.Context, destination string, payload *models.DeliveryPayload) error
}
