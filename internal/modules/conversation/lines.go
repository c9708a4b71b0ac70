package conversation

import (
	"fmt"
	"strings"
	"time"
)

const (
	ErrorReply        = "Sorry, I encountered an error. Please try again."
	ClosingNotice     = "I haven't heard anything for a while, so I'll close the voice session in a moment."
	ForcedStopNotice  = "Voice chat stopped after a long silence. Switch to voice mode again when you are ready."
	CaptureStopNotice = "Voice input stopped: %s. Press the microphone to try again."
)

var silencePrompts = [...]string{
	1: "Take your time. Whenever you're ready, just start speaking.",
	2: "I'm still here. Try answering in a few sentences, even a short answer is fine.",
}

var welcomeTemplates = []string{
	"%s, %s! I'm your IELTS speaking partner. How has your day been so far?",
	"%s, %s! Ready for some speaking practice? Let's start easy: what did you do today?",
	"%s, %s! It's great to hear from you. Which topic would you like to talk about today?",
	"%s, %s! Let's warm up. Can you describe the place where you live?",
}

// Greeting maps the hour to morning (5-11), afternoon (12-16) or evening.
func Greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return "Good morning"
	case h >= 12 && h < 17:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// WelcomeLine picks one template from the pool; pick receives the pool size.
func WelcomeLine(name string, at time.Time, pick func(n int) int) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "there"
	}
	i := 0
	if pick != nil {
		i = pick(len(welcomeTemplates))
		if i < 0 || i >= len(welcomeTemplates) {
			i = 0
		}
	}
	return fmt.Sprintf(welcomeTemplates[i], Greeting(at), name)
}

// SilencePrompt returns the prompt spoken at stage 1 or 2.
func SilencePrompt(stage int) string {
	if stage < 1 || stage >= len(silencePrompts) {
		return ""
	}
	return silencePrompts[stage]
}
