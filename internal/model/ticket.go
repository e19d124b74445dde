package model

import "time"

// TicketStatus はサポートチケットの状態を表す。
type TicketStatus string

const (
	// TicketStatusOpen は未回答のチケット。
	TicketStatusOpen TicketStatus = "open"
	// TicketStatusAnswered は管理者が回答済みのチケット。
	TicketStatusAnswered TicketStatus = "answered"
)

// Ticket はユーザーが起票したサポートチケットを表す。
// 常に1人のユーザーに帰属し、本人または管理者のみ読み書きできる。
type Ticket struct {
	ID        string
	UserID    string
	Subject   string
	Body      string
	Status    TicketStatus
	Reply     string
	RepliedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
