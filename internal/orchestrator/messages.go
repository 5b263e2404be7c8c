package orchestrator

// Fixed utterances. Everything else the assistant says comes from the
// understanding service or the claim summary.
const (
	GreetingMessage = "Hello! Thank you for calling InsurTech. How may I assist you today?"

	CompletionMessage = "Thank you! Your claim has been created successfully. " +
		"A human operator will contact you to finish the report. Goodbye!"

	ChangeRequestMessage = "I understand you'd like to make changes. Which detail would you like to update?"

	ReaskMessage = "Could you please confirm: is the information I summarized correct? " +
		"Say 'yes' to confirm or tell me what to change."

	EmergencyMessage = "I understand this is urgent. I'm connecting you with the emergency team " +
		"who can better assist you. Please hold in line!"

	FrustrationMessage = "I can understand that there is a bit of frustration. " +
		"Let me connect you with a specialist who can better help you right away. Please hold."

	TechnicalApologyMessage = "I apologize, I'm having technical difficulties. Let me connect you with an agent."

	RecognitionApologyMessage = "I apologize, I'm having trouble hearing you right now. Please call us again in a moment."
)

// Transfer and end reasons
const (
	ReasonTechnicalError     = "technical_error"
	ReasonRecognitionFailure = "recognition_failure"
	ReasonCompleted          = "completed"
	ReasonTransferred        = "transferred"
	ReasonCancelled          = "cancelled"
	ReasonScriptEnded        = "script_ended"
)
