package safety

import "tutorgate/internal/domain"

// RefusalPhase identifies which failure branch requested a substitute
// message.
type RefusalPhase int

const (
	// RefusalOutputKeyword: the keyword layer blocked the model's output.
	RefusalOutputKeyword RefusalPhase = iota
	// RefusalOutputSemantic: the judge model blocked the model's output.
	RefusalOutputSemantic
	// RefusalCheckFailed: the output could not be verified at all.
	RefusalCheckFailed
)

// Fixed refusal texts. Never derived from the blocked content.
const (
	refusalBlockedText = "I'm sorry, but I can't share that response. Let's try a different question. I'm happy to help with your schoolwork!"

	refusalUnverifiedText = "I'm sorry, I wasn't able to double-check that answer, so I'd rather not share it. Could you ask me again in a moment?"
)

// Refusal produces the fixed substitute message for a detection phase. The
// orchestrator never constructs refusal messages itself.
func Refusal(phase RefusalPhase) domain.Message {
	text := refusalBlockedText
	if phase == RefusalCheckFailed {
		text = refusalUnverifiedText
	}
	return domain.NewTextMessage(domain.RoleAssistant, text)
}
