package conversation

// User-facing texts.
const (
	msgGreeting           = "Hello! Please choose a service:"
	msgServicesDown       = "Sorry, we couldn't load the services right now. Please try again later."
	msgChooseService      = "Please choose a service from the list."
	msgChooseDate         = "Please choose a date from the suggested options."
	msgNoSlots            = "Sorry, there are no openings on that date. Please pick another date."
	msgChooseTime         = "Choose a convenient time:"
	msgChooseOfferedTime  = "Please choose one of the offered times."
	msgAskName            = "What is your name?"
	msgAskPhone           = "Please enter your phone number:"
	msgThanks             = "Thank you! We will contact you to confirm the booking. ✨"
	msgAskIntent          = "Hello! Tell us which service you'd like and when it suits you."
	msgAskIntentAgain     = "Please describe the service you'd like."
	msgIntentAccepted     = "Got it: %s\n\nWhat is your name?"
	msgCancelled          = "Booking cancelled. Send any message to start again."
	msgNothingToCancel    = "There is no booking in progress. Send any message to start."
	msgServiceSelectedFmt = "You selected: %s\nChoose a date:"
)
