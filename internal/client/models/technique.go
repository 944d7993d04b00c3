package models

type Technique struct {
	ID           string   `json:"id"`
	Category     string   `json:"category"`
	Difficulty   string   `json:"difficulty"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Steps        []string `json:"steps"`
	Warnings     []string `json:"warnings"`
	Tips         []string `json:"tips"`
	TimeEstimate string   `json:"time_estimate"`
}
