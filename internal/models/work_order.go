package models

// WorkOrder is the order a field worker has taken. Only one may be active on a
// device at a time and its presence gates location tracking.
type WorkOrder struct {
	ID           int     `json:"id"`
	Completed    bool    `json:"completada"`
	CreationDate string  `json:"creation_date,omitempty"`
	CompleteDate *string `json:"complete_date,omitempty"`
	StopsVisited []int   `json:"stops_visited,omitempty"`
	UserID       *int    `json:"user_id,omitempty"`
	RouteID      *int    `json:"route_id,omitempty"`
}

// Active reports whether tracking should run for this order
func (w *WorkOrder) Active() bool {
	return w != nil && !w.Completed
}
