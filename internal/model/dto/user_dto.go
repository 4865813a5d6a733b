package dto

type UserInfo struct {
	ID               int64  `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email,omitempty"`
	EmailVerified    bool   `json:"email_verified"`
	SubscriptionTier string `json:"subscription_tier"`
	SubscriptionEnd  string `json:"subscription_expires_at,omitempty"`
	EssayQuota       int    `json:"essay_quota"`
	EssaysUsed       int    `json:"essays_used"`
	EssayCredits     int    `json:"essay_credits"`
}

type UpdateProfileRequest struct {
	Username *string `json:"username" binding:"omitempty,min=3,max=50"`
	Email    *string `json:"email" binding:"omitempty,email"`
}

// QuotaInfo is what the dashboard shows next to the "Generate" button.
type QuotaInfo struct {
	Tier         string `json:"tier"`
	Quota        int    `json:"quota"` // -1 when unlimited
	Used         int    `json:"used"`
	Remaining    int    `json:"remaining"` // -1 when unlimited
	Credits      int    `json:"credits"`
	CanGenerate  bool   `json:"can_generate"`
	CycleResetAt string `json:"cycle_reset_at,omitempty"`
}
