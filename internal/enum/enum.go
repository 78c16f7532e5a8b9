package enum

// Code tables for details and orders. Codes are stored as-is in the
// database (CHECK constrained); display text is resolved here, never in SQL.

const (
	FlavourMargarita int16 = 1
	FlavourMarinara  int16 = 2
	FlavourSalami    int16 = 3
)

const (
	SizeSmall  int16 = 1
	SizeMedium int16 = 2
	SizeLarge  int16 = 3
)

const (
	StatusReceived       int16 = 1
	StatusInProcess      int16 = 2
	StatusOutForDelivery int16 = 3
	StatusDelivered      int16 = 4
	StatusReturned       int16 = 5
)

var flavourDisplay = map[int16]string{
	FlavourMargarita: "margarita",
	FlavourMarinara:  "marinara",
	FlavourSalami:    "salami",
}

var sizeDisplay = map[int16]string{
	SizeSmall:  "Small",
	SizeMedium: "Medium",
	SizeLarge:  "Large",
}

var statusDisplay = map[int16]string{
	StatusReceived:       "Received",
	StatusInProcess:      "In Process",
	StatusOutForDelivery: "Out For Delivery",
	StatusDelivered:      "Delivered",
	StatusReturned:       "Returned",
}

// FlavourDisplay returns the display text for a flavour code, or "" for
// unknown codes.
func FlavourDisplay(code int16) string { return flavourDisplay[code] }

// SizeDisplay returns the display text for a size code, or "" for unknown codes.
func SizeDisplay(code int16) string { return sizeDisplay[code] }

// StatusDisplay returns the display text for a status code, or "" for
// unknown codes.
func StatusDisplay(code int16) string { return statusDisplay[code] }

// ValidFlavour reports whether code is a known flavour.
func ValidFlavour(code int16) bool {
	_, ok := flavourDisplay[code]
	return ok
}

// ValidSize reports whether code is a known size.
func ValidSize(code int16) bool {
	_, ok := sizeDisplay[code]
	return ok
}

// ValidStatus reports whether code is a known order status.
func ValidStatus(code int16) bool {
	_, ok := statusDisplay[code]
	return ok
}
