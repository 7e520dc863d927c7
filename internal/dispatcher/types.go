package dispatcher

// CaptureSummary is one catalog entry's wire representation in a `list`
// response.
type CaptureSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	AudioCodec string `json:"audio_codec,omitempty"`
	VideoCodec string `json:"video_codec,omitempty"`
	Viewers    int    `json:"viewers"`
	Degraded   bool   `json:"degraded,omitempty"`
}

// ListResponse is the `list` success reply.
type ListResponse struct {
	Transcode string           `json:"transcode"`
	List      []CaptureSummary `json:"list"`
}

// UpdateResponse is the `update` success reply.
type UpdateResponse struct {
	Transcode string `json:"transcode"`
}

// ConfigureRequest carries whatever fields a `configure` call wants to
// inspect; spec.md §6 only requires the verb itself, so every field here
// is optional and currently unused by reads (present for forward
// compatibility with a future write-side `configure`).
type ConfigureRequest struct{}

// ConfigureResponse echoes the effective settings (SPEC_FULL.md §C.3):
// not just the raw request fields but what the server actually resolved
// path/rtmp to.
type ConfigureResponse struct {
	Transcode string `json:"transcode"`
	Path      string `json:"path"`
	RTMPBase  string `json:"rtmp"`
	Events    bool   `json:"events"`
}

// TranscodeRequest is the `transcode` request body.
type TranscodeRequest struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	Offer              string `json:"offer"`
	Bitrate            uint64 `json:"bitrate,omitempty"`
	KeyframeIntervalMs int    `json:"keyframe_interval,omitempty"`
}

// TranscodeResponse is the `transcode` success reply.
type TranscodeResponse struct {
	Transcode string `json:"transcode"`
	ID        string `json:"id"`
	Answer    string `json:"answer"`
}

// PlayRequest is the `play` request body.
type PlayRequest struct {
	ID string `json:"id"`
}

// PlayResponse is the `play` success reply.
type PlayResponse struct {
	Transcode string `json:"transcode"`
	Offer     string `json:"offer"`
}

// StartRequest is the `start` request body.
type StartRequest struct {
	Answer string `json:"answer"`
}

// StartResponse is the `start` success reply.
type StartResponse struct {
	Transcode string `json:"transcode"`
}

// StopResponse is the `stop` success reply.
type StopResponse struct {
	Transcode string `json:"transcode"`
}

// PendingResponse is the immediate acknowledgement an asynchronous verb
// receives while its real work runs on the dispatcher's worker; the
// eventual result (success or error) is delivered through a Notifier.
type PendingResponse struct {
	Transcode string `json:"transcode"`
	Status    string `json:"status"`
}

// DoneEvent is pushed to a client on peer-connection loss (spec.md §6).
type DoneEvent struct {
	Transcode string `json:"transcode"`
}
