package enums

import "slices"

// ListingStatus tracks moderation and sale state of a vehicle listing.
type ListingStatus string

const (
	ListingStatusPending  ListingStatus = "pending"
	ListingStatusActive   ListingStatus = "active"
	ListingStatusSold     ListingStatus = "sold"
	ListingStatusRejected ListingStatus = "rejected"
)

var validListingStatuses = []ListingStatus{
	ListingStatusPending,
	ListingStatusActive,
	ListingStatusSold,
	ListingStatusRejected,
}

var listingTransitions = map[ListingStatus][]ListingStatus{
	ListingStatusPending: {ListingStatusActive, ListingStatusRejected},
	ListingStatusActive:  {ListingStatusSold},
	ListingStatusSold:    {ListingStatusActive},
}

// String implements fmt.Stringer.
func (s ListingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ListingStatus.
func (s ListingStatus) IsValid() bool {
	return slices.Contains(validListingStatuses, s)
}

// CanTransitionTo reports whether next is reachable from s.
func (s ListingStatus) CanTransitionTo(next ListingStatus) bool {
	return slices.Contains(listingTransitions[s], next)
}

// ParseListingStatus converts raw input into a ListingStatus.
func ParseListingStatus(value string) (ListingStatus, error) {
	return parse("listing status", validListingStatuses, value)
}
