package dialogue

import "fmt"

const (
	MessageCollectionComplete = "Thank you! I've gathered all the information about your AI initiative. Is there anything else you'd like to share, or another initiative you're working on?"
	MessageEarlyExit          = "Thank you for your time! If you'd like to add anything else about your initiative, just let me know."
	MessageClosing            = "Thank you for the conversation! Everything you shared has been saved. Have a great day!"
	MessageDeclineAck         = "No problem! Is there anything else you'd like to discuss?"
	MessageApology            = "I apologize, could you please repeat that?"
)

func OfferAdditional(topic string) string {
	return fmt.Sprintf("It sounds like you're also working on %s. Would you like to tell me more about it so I can record it as a separate initiative?", topic)
}

func AdditionalComplete(topic string) string {
	return fmt.Sprintf("Thank you! I've recorded the details about %s. Is there anything else you'd like to share?", topic)
}
