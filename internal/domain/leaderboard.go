package domain

type LeaderboardEntry struct {
	Position     int    `json:"position"`
	GroupName    string `json:"groupName"`
	Points       int    `json:"points"`
	Area         string `json:"area"`
	AreaPosition int    `json:"areaPosition"`
	IsAreaLeader bool   `json:"isAreaLeader"`
}
