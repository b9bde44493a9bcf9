package interfaces

// Repository is the durable store of moderation state. Every backend
// (memory, firestore, sqlite, postgres) implements it.
type Repository interface {
	ActionRecord() ActionRecordRepository
	Modlog() ModlogRepository

	Close() error
}
