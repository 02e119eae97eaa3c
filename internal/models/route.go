package models

// Route is an ordered, immutable partition of bins. BinIDs order is the
// traversal order; Center is the mean of the member bin coordinates.
type Route struct {
	ID     string     `json:"route_id"`
	Name   string     `json:"name"`
	BinIDs []string   `json:"bin_ids"`
	Center Coordinate `json:"center"`
}

// RouteDefinition is the catalog input shape of a route
type RouteDefinition struct {
	ID     string   `json:"route_id"`
	Name   string   `json:"name"`
	BinIDs []string `json:"bin_ids"`
}

// RouteBinRow is a bin membership row from the route_bins table
type RouteBinRow struct {
	RouteID       string `db:"route_id"`
	BinID         string `db:"bin_id"`
	SequenceOrder int    `db:"sequence_order"`
}

// RouteRow is a route header row from the routes table
type RouteRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

// RouteProgress summarizes how many distinct bins of a route have a record
type RouteProgress struct {
	Collected int `json:"collected"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// NextDestination is the nearest bin of a route that has no record yet
type NextDestination struct {
	BinID          string     `json:"bin_id"`
	Address        string     `json:"address"`
	Coordinate     Coordinate `json:"coordinate"`
	DistanceMeters float64    `json:"distance_meters"`
}

// RouteSegments partitions route bins for presentation. Navigation holds
// [current fix, next destination] or is empty.
type RouteSegments struct {
	RouteID    string       `json:"route_id"`
	Completed  []Coordinate `json:"completed"`
	Remaining  []Coordinate `json:"remaining"`
	Navigation []Coordinate `json:"navigation"`
}

// MapMarker is a bin marker for the map renderer
type MapMarker struct {
	BinID      string     `json:"bin_id"`
	Coordinate Coordinate `json:"coordinate"`
	Status     BinStatus  `json:"status"`
	Color      string     `json:"color"`
}

// MapState is everything the map renderer needs for one route
type MapState struct {
	RouteID               string       `json:"route_id"`
	Center                Coordinate   `json:"center"`
	CompletedCoordinates  []Coordinate `json:"completed_coordinates"`
	RemainingCoordinates  []Coordinate `json:"remaining_coordinates"`
	NavigationCoordinates []Coordinate `json:"navigation_coordinates"`
	Markers               []MapMarker  `json:"markers"`
}
