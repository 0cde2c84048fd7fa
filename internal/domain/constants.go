package domain

// SearchRadiusM bounds both the quote ceiling's driver pool and driver
// search's shortlist to drivers within this many meters of a route's
// origin.
const SearchRadiusM = 2000.0
