package meeting

import "go.aimuz.me/huddle/llm"

// DefaultQuestionPrompt instructs the model for direct questions.
const DefaultQuestionPrompt = "You are an expert interview and meeting assistant. " +
	"Provide DIRECT ANSWERS to questions. Do NOT summarize unless asked. " +
	"If there's a coding question, provide the solution. " +
	"Be concise and accurate."

// DefaultSystemPrompt frames summary and action item requests.
const DefaultSystemPrompt = "You are an expert interview and meeting assistant. " +
	"When given a question and meeting transcript context, provide the DIRECT ANSWER to the question. " +
	"Do NOT summarize the transcript unless explicitly asked. " +
	"If the transcript contains a question being asked, answer it directly. " +
	"If it's a coding question, provide the code solution. " +
	"If it's a technical question, give the precise answer. " +
	"Be concise and accurate."

const (
	transcriptContextPrefix = "Current meeting/interview transcript:\n"

	summaryInstruction = "Please provide a concise summary of this meeting transcript. " +
		"Include key discussion points and any decisions made. " +
		"Format as bullet points."

	actionItemsInstruction = "Extract all action items from this meeting transcript. " +
		"For each action item, identify who is responsible if mentioned. " +
		"Format as a numbered list."
)

// buildQuestionMessages lays out a question turn: instruction, transcript
// context when there is any, prior exchanges, then the question.
func buildQuestionMessages(instruction, transcript string, history []Exchange, question string) []llm.Message {
	msgs := make([]llm.Message, 0, 3+2*len(history))
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: instruction})
	if transcript != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: transcriptContextPrefix + transcript})
	}
	for _, ex := range history {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: ex.Question},
			llm.Message{Role: llm.RoleAssistant, Content: ex.Answer},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
}

// buildTranscriptMessages asks for a one-shot transformation of the whole
// transcript. History is neither read nor written.
func buildTranscriptMessages(system, instruction, transcript string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: instruction + "\n\nTranscript:\n" + transcript},
	}
}
