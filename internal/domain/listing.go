package domain

// Listing is a tradeable symbol discovered from a universe source.
type Listing struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name"`
}
