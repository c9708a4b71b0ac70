package aigateway

import "fmt"

const (
	vocabTutorSystem = "You are an expert IELTS tutor. Your goal is to help students expand their academic vocabulary. Provide precise and high-band score outputs."

	textTutorSystem = "You are a friendly and strict IELTS Examiner/Tutor. You help students practice English. You correct their grammar mistakes and suggest better vocabulary. You explain things clearly in Vietnamese when asked, but prefer English for practice."

	speakingTutorSystem = "You are an IELTS Speaking Tutor. You talk like in a normal conversation, give concise answers, and correct pronunciation and grammar when needed. Speak naturally and conversationally."
)

func analyzePrompt(word string) string {
	return fmt.Sprintf("Analyze the English word: %q for an IELTS student. Provide accurate definitions, IPA, and examples.", word)
}

func examplePrompt(word string) string {
	return fmt.Sprintf("Generate a new, distinct, high-quality IELTS academic example sentence for the word %q. Return only the sentence text.", word)
}

func quizPrompt(topic string) string {
	return fmt.Sprintf("Create a 5-question multiple choice quiz for IELTS preparation about the topic: %q. The questions should test vocabulary, grammar, or reading comprehension suitable for IELTS Band 7.0+.", topic)
}
