package conversation

const (
	replyWelcome          = "👋 Welcome to *SickleCare*! Please reply with your *name* to register."
	replyNamePrompt       = "Please reply with your *name* to register."
	replyRolePromptFormat = "Thanks %s! Are you a *Patient*, *Caregiver*, or *Donor*?"
	replyRoleInvalid      = "Please reply with one of: Patient, Caregiver, or Donor."
	replyRegistered       = "✅ Registration complete! Type *menu* to see options."

	replyMenu = "📋 *Main Menu*\n" +
		"1️⃣ Sickle Cell Info\n" +
		"2️⃣ Find Resources\n" +
		"3️⃣ Crisis Support\n\n" +
		"Type 1, 2, or 3.\n\n" +
		"More: *reminder*, *my reminders*, *add contact*, *clear contacts*, *clear location*, *reset*"

	replyInfo = "🧬 You can ask me anything about Sickle Cell Disease.\nExample: What causes sickle cell disease?"

	replyCrisisGuide = "🚨 *Crisis Support Guide:*\n" +
		"1️⃣ Stay hydrated.\n" +
		"2️⃣ Use a warm compress.\n" +
		"3️⃣ Contact your doctor or go to the nearest hospital.\n\n" +
		"If severe, call emergency services immediately.\n" +
		"Type *add contact* to save an emergency contact we can alert for you."

	replyHistoryCleared  = "🔄 Conversation history cleared."
	replyLocationCleared = "📍 Location cleared."
	replyContactsCleared = "📞 Emergency contacts cleared."

	replyReminderTextPrompt   = "📌 Sure! What should I remind you about?"
	replyReminderTimePrompt   = "⏰ Great! What time? (24hr format HH:MM)"
	replyReminderSetFormat    = "✅ Daily reminder set for *%s*"
	replyReminderInvalidTime  = "❌ Invalid time format. Use HH:MM (24hr)"
	replyReminderSaveFailed   = "⚠️ Could not save your reminder. Please try again later."
	replyReminderRequestAgain = "⚠️ Something went wrong with your reminder. Please request this again by typing *reminder*."
	replyNoReminders          = "📭 You have no active reminders. Type *reminder* to set one."

	replyResourceCategoriesHeader = "📚 *Resource Library*\nReply *resources <topic>* or *resources <number>* with one of:"
	replyNoResourcesFormat        = "⚠️ Sorry, no resources available for *%s* yet."
	replyResourcesHeaderFormat    = "📎 *Resources for %s*:"
	replyResourcesFooter          = "✅ Reply *menu* to go back."
	replyResourcesUnavailable     = "⚠️ Resources are unavailable right now. Please try again later."

	replyBusy        = "⏳ Still working on your previous message. Please try again in a moment."
	replyError       = "⚠️ Something went wrong. Please try again."
	replySaveFailed  = "⚠️ We could not save your progress. Please try again."
	replyUnavailable = "⚠️ This service is temporarily unavailable. Please try again later."
)
