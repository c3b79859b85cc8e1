package domain

// Artifact is a rendered profile document.
type Artifact struct {
	Key         string // blob store key
	Name        string // attachment file name
	Path        string // local copy, empty when not materialised
	ContentType string
	Size        int64
	Data        []byte
}

// Notification carries what the notifier needs for one message.
type Notification struct {
	Contact    string
	Name       string
	ProfileID  string
	ProfileKey string
	Artifact   *Artifact
}
