package models

// Plan is a static catalog entry; prices are in whole currency units.
type Plan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Credits     int64  `json:"credits"`
	Description string `json:"description"`
}
