package model

// RankedUser is one named row of a leaderboard.
type RankedUser struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Count  int    `json:"count"`
}

// Leaderboard is the top of a ranking plus the number of users ranked.
type Leaderboard struct {
	Window       Window       `json:"window"`
	Participants int          `json:"participants"`
	Entries      []RankedUser `json:"entries"`
}

// Image is a rendered PNG with the file name the chat front end attaches it under.
type Image struct {
	Name string
	Data []byte
}
