package dialogue

// Replies holds every user-visible string the engine produces. Failures are
// always surfaced as natural-language text, never as raw technical errors.
type Replies struct {
	Greeting      string
	FormatPrompt  string
	ConfirmPrompt string // fmt: specialist, formatted time
	Booked        string // fmt: specialist, formatted time
	BookingFailed string
	Declined      string
}

// DefaultReplies returns the standard Russian reply set.
func DefaultReplies() Replies {
	return Replies{
		Greeting:      "Здравствуйте. Вы обратились в систему записи к врачу. Сообщите ваше Имя и опишите симптомы.",
		FormatPrompt:  "Пожалуйста, укажите в формате: Имя. Описание симптомов",
		ConfirmPrompt: "Рекомендуем обратиться к %s. Предлагаем запись на %s. Подтвердите согласие (Да/Нет).",
		Booked:        "Запись к %s на %s оформлена.",
		BookingFailed: "Ошибка записи. Пожалуйста, свяжитесь с регистратурой.",
		Declined:      "В случае ухудшения состояния обратитесь в скорую помощь по телефону 103.",
	}
}
