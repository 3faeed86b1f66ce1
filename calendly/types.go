package calendly

type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Invitee struct {
	Name                string `json:"name"`
	Email               string `json:"email"`
	QuestionsAndAnswers []QA   `json:"questions_and_answers"`
	Timezone            string `json:"timezone"`
}

// Event is a hosted Calendly event enriched with its invitees.
type Event struct {
	Name      string    `json:"name"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Status    string    `json:"status"`
	Location  string    `json:"location"`
	Invitees  []Invitee `json:"invitees"`
}

// Link is a single-use (or capped) scheduling link for an event type.
type Link struct {
	URL       string `json:"url"`
	Owner     string `json:"owner,omitempty"`
	OwnerType string `json:"owner_type,omitempty"`
}
