package vocab

// WordAnalysis is the structured lookup result returned by the AI gateway.
type WordAnalysis struct {
	Word         string   `json:"word" jsonschema:"required,description=The word being analyzed capitalized correctly"`
	IPA          string   `json:"ipa" jsonschema:"required,description=IPA phonetic transcription"`
	Type         string   `json:"type" jsonschema:"required,description=Part of speech (noun, verb, adj, etc.)"`
	ShortMeaning string   `json:"short_meaning" jsonschema:"required,description=A very short direct Vietnamese translation"`
	MeaningVI    string   `json:"meaning_vi" jsonschema:"required,description=Detailed meaning in Vietnamese"`
	MeaningEN    string   `json:"meaning_en" jsonschema:"required,description=Definition in English (IELTS academic level)"`
	Example      string   `json:"example" jsonschema:"required,description=An example sentence using the word in an IELTS context"`
	Synonyms     []string `json:"synonyms" jsonschema:"required,description=List of 3 advanced synonyms useful for IELTS"`
	Antonyms     []string `json:"antonyms" jsonschema:"required,description=List of 3 antonyms useful for IELTS context"`
}

// VocabItem is one saved word. Word uniqueness is not enforced.
type VocabItem struct {
	ID           string   `json:"id"`
	Word         string   `json:"word"`
	IPA          string   `json:"ipa"`
	Type         string   `json:"type"`
	ShortMeaning string   `json:"short_meaning"`
	MeaningVI    string   `json:"meaning_vi"`
	MeaningEN    string   `json:"meaning_en"`
	Example      string   `json:"example"`
	Synonyms     []string `json:"synonyms,omitempty"`
	Antonyms     []string `json:"antonyms,omitempty"`
	CreatedAt    int64    `json:"createdAt"`
	Mastered     bool     `json:"mastered,omitempty"`
	Note         string   `json:"note,omitempty"`
}

// Snapshot is the export/import document.
type Snapshot struct {
	Version    int         `json:"version"`
	ExportedAt int64       `json:"exportedAt"`
	Items      []VocabItem `json:"items"`
}

type ImportMode string

const (
	ImportOverwrite ImportMode = "overwrite"
	ImportMerge     ImportMode = "merge"
)
