package fal

// EditArguments is the JSON body submitted to the multiple-angles endpoint.
type EditArguments struct {
	ImageURLs           []string `json:"image_urls"`
	GuidanceScale       float64  `json:"guidance_scale"`
	NumInferenceSteps   int      `json:"num_inference_steps"`
	Acceleration        string   `json:"acceleration"`
	NegativePrompt      string   `json:"negative_prompt"`
	EnableSafetyChecker bool     `json:"enable_safety_checker"`
	OutputFormat        string   `json:"output_format"`
	NumImages           int      `json:"num_images"`
	RotateRightLeft     float64  `json:"rotate_right_left"`
	MoveForward         float64  `json:"move_forward"`
	VerticalAngle       float64  `json:"vertical_angle"`
	WideAngleLens       bool     `json:"wide_angle_lens"`
	LoraScale           float64  `json:"lora_scale"`
	Seed                *int64   `json:"seed,omitempty"`
}

// Fixed request extras sent with every generation.
const (
	DefaultAcceleration   = "regular"
	DefaultNegativePrompt = " "
)

// Queue job states reported by the status endpoint.
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

// submission is the queue's answer to a POST.
type submission struct {
	RequestID   string `json:"request_id"`
	ResponseURL string `json:"response_url"`
	StatusURL   string `json:"status_url"`
	CancelURL   string `json:"cancel_url"`
}

// jobStatus is the body of GET status_url.
type jobStatus struct {
	Status        string `json:"status"`
	QueuePosition *int   `json:"queue_position,omitempty"`
	ResponseURL   string `json:"response_url,omitempty"`
	Error         string `json:"error,omitempty"`
	ErrorType     string `json:"error_type,omitempty"`
}

// Image is one generated image hosted on the FAL CDN.
type Image struct {
	URL         string `json:"url"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	FileName    string `json:"file_name,omitempty"`
}

// Result is the completed job payload.
type Result struct {
	Images []Image `json:"images"`
	Seed   int64   `json:"seed"`

	// Filled by the client, not part of the payload.
	RequestID string `json:"-"`
	Attempts  int    `json:"-"`
}
