package domain

import "time"

// Story represents a submitted link stored in the database
type Story struct {
	ID        int64     `json:"id" bson:"_id"`
	URL       string    `json:"url" bson:"url"`
	Title     string    `json:"title" bson:"title"`
	Votes     int64     `json:"votes" bson:"votes"`
	CreatedOn time.Time `json:"createdOn" bson:"createdOn"`
}
