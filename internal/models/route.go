package models

// Route is the set of bus stops a work order visits
type Route struct {
	ID        int    `json:"id"`
	Name      string `json:"route_name"`
	Points    []int  `json:"route_points"` // bus stop IDs
	Completed bool   `json:"completed"`
}
