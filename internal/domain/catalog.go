package domain

import "errors"

// ErrCatalogUnavailable is returned when the remote catalog cannot be reached
// or answers with an unexpected status.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// Storage keys shared by the stores. Cart keys are built by CartKey.
const (
	KeyProductsExtra = "productsExtra"
	KeyClientsExtra  = "clientsExtra"
	KeyAuthUser      = "authUser"
	KeyNextUserID    = "nextUserId"
	KeyAppTheme      = "appTheme"
)
