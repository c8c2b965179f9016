package models

// Status is the progress summary shown to a labeling user
type Status struct {
	IndividualDoneCount int `json:"individual_done_count"`
	UserCount           int `json:"user_count"`
	LocationDoneCount   int `json:"location_is_done_count"`
	AnswerCount         int `json:"answer_count"`
}
