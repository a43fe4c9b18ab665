package rag

import "fmt"

const allSessionsSummary = "Provide a comprehensive summary of all the lecture sessions, highlighting key topics and themes."

// Prompt frames a question with transcript context for the AI command.
func Prompt(question string, context string) string {
	return fmt.Sprintf(`You are an AI assistant helping with lecture transcript analysis.

CONTEXT (Lecture Transcripts):
%s

QUESTION: %s

Please provide a comprehensive answer based on the lecture content above. If the information isn't available in the transcripts, please say so clearly.`, context, question)
}

func sessionSummaryQuestion(date string) string {
	return fmt.Sprintf("Provide a detailed summary of this lecture session from %s", date)
}
