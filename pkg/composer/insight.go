package composer

type SectionStyle string

const (
	StyleSentence SectionStyle = "sentence"
	StyleBullets  SectionStyle = "bullets"
	StyleBoth     SectionStyle = "both"
)

// Section is one block of the rendered answer.
type Section struct {
	Heading string       `json:"heading"`
	Style   SectionStyle `json:"style"`
	Text    string       `json:"text"`
	Bullets []string     `json:"bullets"`
}

// Presentation is the layout plan chosen by the insight generator.
type Presentation struct {
	Title     string    `json:"title"`
	ShowTable bool      `json:"show_table"`
	Sections  []Section `json:"sections"`
}

// Insight is the insight generator's output. The composer only reads it.
type Insight struct {
	FinalText          string       `json:"final_text"`
	Presentation       Presentation `json:"presentation"`
	SuggestedQuestions []string     `json:"suggested_questions"`
	SuggestedNextSteps []string     `json:"suggested_next_steps"`
	DataPresence       string       `json:"data_presence"`
}

func (s Section) empty() bool {
	return s.Heading == "" && s.Text == "" && len(nonEmpty(s.Bullets)) == 0
}
