package dto

type RecordUsageRequest struct {
	Token      string `json:"token" binding:"required"`
	Model      string `json:"model" binding:"required"`
	TokensUsed int64  `json:"tokens_used" binding:"omitempty,gte=0"`
	IP         string `json:"ip" binding:"required"`
}

type TimelineRequest struct {
	Days  int    `form:"days,default=7" binding:"gte=1"`
	Token string `form:"token"`
}

type RecentUsageRequest struct {
	Limit int `form:"limit,default=100" binding:"gte=1,lte=10000"`
}
