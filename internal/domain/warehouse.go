package domain

import "time"

// ChannelCategory classifies a channel by its name.
type ChannelCategory string

const (
	CategoryPharmaceutical ChannelCategory = "Pharmaceutical"
	CategoryCosmetics      ChannelCategory = "Cosmetics"
	CategoryMedical        ChannelCategory = "Medical"
)

// ChannelDimension is one row of marts.dim_channels. ChannelKey is assigned
// on first insert and never reassigned; the remaining columns are refreshed
// on every load.
type ChannelDimension struct {
	ChannelKey          int64           `json:"channel_key" db:"channel_key"`
	ChannelName         string          `json:"channel_name" db:"channel_name"`
	Category            ChannelCategory `json:"channel_type" db:"channel_type"`
	FirstSeenAt         time.Time       `json:"first_post_date" db:"first_post_date"`
	LastSeenAt          time.Time       `json:"last_post_date" db:"last_post_date"`
	TotalRecords        int64           `json:"total_posts" db:"total_posts"`
	AvgViews            float64         `json:"avg_views" db:"avg_views"`
	AvgForwards         float64         `json:"avg_forwards" db:"avg_forwards"`
	TotalWithAttachment int64           `json:"total_images" db:"total_images"`
}

// DateDimension is one row of marts.dim_dates. Rows are insert-only.
type DateDimension struct {
	DateKey    int       `json:"date_key" db:"date_key"`
	FullDate   time.Time `json:"full_date" db:"full_date"`
	DayOfWeek  int       `json:"day_of_week" db:"day_of_week"`
	DayName    string    `json:"day_name" db:"day_name"`
	WeekOfYear int       `json:"week_of_year" db:"week_of_year"`
	Month      int       `json:"month" db:"month"`
	MonthName  string    `json:"month_name" db:"month_name"`
	Quarter    int       `json:"quarter" db:"quarter"`
	Year       int       `json:"year" db:"year"`
	IsWeekend  bool      `json:"is_weekend" db:"is_weekend"`
}

// FactRecord is one row of marts.fct_messages. RecordKey is the idempotency
// key; an existing row is never overwritten.
type FactRecord struct {
	RecordKey      string    `json:"message_key" db:"message_key"`
	SourceRecordID int64     `json:"message_id" db:"message_id"`
	ChannelKey     int64     `json:"channel_key" db:"channel_key"`
	DateKey        int       `json:"date_key" db:"date_key"`
	Text           string    `json:"message_text" db:"message_text"`
	TextLength     int       `json:"message_length" db:"message_length"`
	ViewCount      int64     `json:"view_count" db:"view_count"`
	ForwardCount   int64     `json:"forward_count" db:"forward_count"`
	HasAttachment  bool      `json:"has_image" db:"has_image"`
	CapturedAt     time.Time `json:"message_date" db:"message_date"`
}
