package transfer

// GraphErrorResponse is the error envelope the Graph API returns on any
// non-2xx response.
type GraphErrorResponse struct {
	Error GraphError `json:"error"`
}

type GraphError struct {
	Message        string `json:"message"`
	Type           string `json:"type"`
	Code           int    `json:"code"`
	ErrorSubcode   int    `json:"error_subcode"`
	IsTransient    bool   `json:"is_transient"`
	ErrorUserTitle string `json:"error_user_title"`
	ErrorUserMsg   string `json:"error_user_msg"`
	FbtraceID      string `json:"fbtrace_id"`
}

type GraphPaging struct {
	Cursors struct {
		Before string `json:"before"`
		After  string `json:"after"`
	} `json:"cursors"`
	// Next is the absolute URL of the following page, empty on the last one.
	Next string `json:"next"`
}

type GraphPage[T any] struct {
	Data   []T         `json:"data"`
	Paging GraphPaging `json:"paging"`
}

type GraphName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RawAd struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	EffectiveStatus string        `json:"effective_status"`
	UpdatedTime     string        `json:"updated_time"`
	Campaign        GraphName     `json:"campaign"`
	Adset           GraphName     `json:"adset"`
	Creative        RawAdCreative `json:"creative"`
}

type RawAdCreative struct {
	ID           string `json:"id"`
	ThumbnailURL string `json:"thumbnail_url"`
	ImageURL     string `json:"image_url"`
	VideoID      string `json:"video_id"`
	ObjectStory  struct {
		VideoData struct {
			VideoID  string `json:"video_id"`
			ImageURL string `json:"image_url"`
		} `json:"video_data"`
	} `json:"object_story_spec"`
}

// ActionValue is one entry of the Graph actions arrays. Values come as
// decimal strings.
type ActionValue struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

type RawInsightRow struct {
	AccountID                   string        `json:"account_id"`
	AdID                        string        `json:"ad_id"`
	AdName                      string        `json:"ad_name"`
	CampaignName                string        `json:"campaign_name"`
	AdsetName                   string        `json:"adset_name"`
	DateStart                   string        `json:"date_start"`
	DateStop                    string        `json:"date_stop"`
	Spend                       string        `json:"spend"`
	Impressions                 string        `json:"impressions"`
	Reach                       string        `json:"reach"`
	Clicks                      string        `json:"clicks"`
	Actions                     []ActionValue `json:"actions"`
	ActionValues                []ActionValue `json:"action_values"`
	VideoThruplayWatchedActions []ActionValue `json:"video_thruplay_watched_actions"`
}

type DebugTokenResponse struct {
	Data struct {
		AppID     string   `json:"app_id"`
		IsValid   bool     `json:"is_valid"`
		ExpiresAt int64    `json:"expires_at"`
		Scopes    []string `json:"scopes"`
		Error     *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"data"`
}

type VideoSourceResponse struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}
