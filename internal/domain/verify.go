package domain

// WarehouseCounts holds row counts per warehouse table.
type WarehouseCounts struct {
	Raw      int64 `json:"raw"`
	Staging  int64 `json:"staging"`
	Channels int64 `json:"dim_channels"`
	Dates    int64 `json:"dim_dates"`
	Facts    int64 `json:"fct_messages"`
}

// CategoryCount is one row of the per-category channel breakdown.
type CategoryCount struct {
	Category ChannelCategory `json:"channel_type"`
	Channels int64           `json:"channels"`
	Records  int64           `json:"records"`
}
