package response

type Error struct {
	Error string `json:"error"`
}

type Recognize struct {
	ImageID       string `json:"imageId"`
	RecognitionID string `json:"recognitionId"`
	Status        string `json:"status"`
}

type Recognition struct {
	ID             string  `json:"id"`
	ImageID        string  `json:"imageId"`
	Status         string  `json:"status"`
	ResultType     *string `json:"resultType,omitempty"`
	RawText        *string `json:"rawText,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Engine         *string `json:"engine,omitempty"`
	Aligned        *bool   `json:"aligned,omitempty"`
	QRData         *string `json:"qrData,omitempty"`
	QRFormat       *string `json:"qrFormat,omitempty"`
	QRLocation     *QRLocation `json:"qrLocation,omitempty"`
	ProcessingTime *int64  `json:"processingTime,omitempty"`
	Error          *string `json:"error,omitempty"`
	CompletedAt    *string `json:"completedAt,omitempty"`
}

type QRLocation struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Image struct {
	ImageID string `json:"imageId"`
	Type    string `json:"type"`
	URL     string `json:"url"`
}

type Health struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}
