package lesson

type Task struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Done     bool   `json:"done"`
	Deadline *int64 `json:"deadline,omitempty"`
}

type LessonNote struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	Body      string `json:"body"`
	Tasks     []Task `json:"tasks"`
}

// GlobalNotes is the free-text scratchpad kept per user.
type GlobalNotes struct {
	Text    string `json:"text"`
	SavedAt int64  `json:"savedAt"`
}

// Deadline is one row of the upcoming deadlines view.
type Deadline struct {
	LessonID    string `json:"lessonId"`
	LessonTitle string `json:"lessonTitle"`
	TaskID      string `json:"taskId"`
	Text        string `json:"text"`
	Deadline    int64  `json:"deadline"`
}
