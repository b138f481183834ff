package dto

// OnlineStatusResponse reports whether a single user resolves online.
type OnlineStatusResponse struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

// OnlineCountResponse reports the size of the current online set.
type OnlineCountResponse struct {
	Count int `json:"count"`
}

// OnlineListResponse lists the users currently resolving online.
type OnlineListResponse struct {
	UserIDs []string `json:"user_ids"`
}
