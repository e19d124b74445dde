package model

import "time"

// LiveStream は配信者が登録したライブ配信のメタデータを表す。
type LiveStream struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Platform    Provider
	StreamURL   string
	ScheduledAt time.Time
	CreatedAt   time.Time
}

// UpcomingLive はYouTube側で予約済みのライブ配信を表す。
type UpcomingLive struct {
	BroadcastID        string
	Title              string
	Description        string
	ScheduledStartTime *time.Time
	ThumbnailURL       string
}
