package domain

import "time"

// Contest is the slice of contest metadata the discussion service needs to
// validate that a room refers to a real contest. The full contest catalog
// (platforms, problems, scraping) is owned by the dashboard, not this service.
type Contest struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Platform  string    `json:"platform"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	URL       string    `json:"url,omitempty"`
}

// Live reports whether the contest is running at the given instant.
func (c Contest) Live(at time.Time) bool {
	return !at.Before(c.StartTime) && at.Before(c.EndTime)
}
