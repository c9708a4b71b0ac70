package quiz

type QuizQuestion struct {
	ID                 int      `json:"id" jsonschema:"required"`
	Question           string   `json:"question" jsonschema:"required,description=A multiple choice question related to the topic"`
	Options            []string `json:"options" jsonschema:"required,description=4 possible answers"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex" jsonschema:"required,description=Index of the correct answer (0-3)"`
	Explanation        string   `json:"explanation" jsonschema:"required,description=Why this answer is correct"`
}

// Topics offered by the quiz screen.
var Topics = []string{"Education", "Environment", "Technology", "Health", "Travel", "Work", "Culture", "Crime"}
