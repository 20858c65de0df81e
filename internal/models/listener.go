package models

// TopUpPackage is a purchasable bundle of credits priced in Telegram Stars
type TopUpPackage struct {
	Id      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Credits int64  `yaml:"credits" json:"credits"`
	Stars   int    `yaml:"stars" json:"stars"`
}

// ChatEvent is an inbound prompt from the chat transport
type ChatEvent struct {
	AccountId       int64
	ChatId          int64
	MessageId       int
	Username        string
	Text            string
	ReferenceImages []string
}
